package config

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getValidRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		SRAM: SRAMConfig{
			Mode:         "page",
			StartupDelay: 0,
			CycleDelay:   500 * time.Millisecond,
			OnMismatch:   "continue",
			Keep:         5,
		},
		Tracker: TrackerConfig{
			PollDelay: 5 * time.Millisecond,
			Lockstep:  false,
		},
	}
}

func TestConfigHandler_Get(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	handler := ConfigHandler(configFile)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got RuntimeConfig
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "continue", got.SRAM.OnMismatch)
	assert.Equal(t, time.Second, got.SRAM.CycleDelay)
	assert.True(t, got.Tracker.Lockstep)
	assert.Empty(t, got.Tracker.Channels, "channel layout is not exposed")
}

func TestConfigHandler_MethodNotAllowed(t *testing.T) {
	handler := ConfigHandler(createConfigFile(t, getBaseConfig()))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestConfigHandler_SetValidation(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	tests := []struct {
		name         string
		payload      RuntimeConfig
		wantStatus   int
		wantErrorMsg string
		shouldModify bool
	}{
		{
			name:         "Valid Update",
			payload:      getValidRuntimeConfig(),
			wantStatus:   http.StatusOK,
			shouldModify: true,
		},
		{
			name: "Unknown Mode",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.SRAM.Mode = "burst"
				c.SRAM.CycleDelay = 3 * time.Second
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "unknown sram mode",
		},
		{
			name: "Negative Duration",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.SRAM.CycleDelay = -5 * time.Second
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "must be non-negative",
		},
		{
			name: "Zero Poll Delay",
			payload: func() RuntimeConfig {
				c := getValidRuntimeConfig()
				c.Tracker.PollDelay = 0
				return c
			}(),
			wantStatus:   http.StatusBadRequest,
			wantErrorMsg: "Tracker.PollDelay must be positive",
		},
	}

	handler := ConfigHandler(configFile)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.payload)
			req := httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBuffer(body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantErrorMsg != "" {
				assert.Contains(t, w.Body.String(), tt.wantErrorMsg)
			}

			current, err := ReadConfig(configFile, false)
			require.NoError(t, err)
			// The valid update runs first, so the file holds its values.
			assert.Equal(t, 500*time.Millisecond, current.SRAM.CycleDelay)
			assert.Equal(t, "page", current.SRAM.Mode)
			assert.Len(t, current.Tracker.Channels, 2, "channels survive the rewrite")
			assert.Equal(t, 20*time.Microsecond, current.SPI.Delay, "pins and timing survive the rewrite")
		})
	}
}

func TestConfigHandler_BadBody(t *testing.T) {
	handler := ConfigHandler(createConfigFile(t, getBaseConfig()))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/config", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatch_ReloadsValidChanges(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, configFile, false, func(c *Config) { reloaded <- c }) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid file is skipped.
	require.NoError(t, os.WriteFile(configFile, []byte("SRAM:\n  Keep: 0\n"), 0o644))
	select {
	case c := <-reloaded:
		t.Fatalf("invalid config was delivered: %+v", c.SRAM)
	case <-time.After(3 * settle):
	}

	require.NoError(t, os.WriteFile(configFile, []byte("SRAM:\n  Keep: 7\n"), 0o644))
	select {
	case c := <-reloaded:
		assert.Equal(t, 7, c.SRAM.Keep)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after a valid change")
	}

	cancel()
	assert.NoError(t, <-done)
}
