package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the runtime part of the configuration at
// /api/config. GET returns it as JSON, POST merges it into cfile. A
// successful POST rewrites the file, which the running command picks up
// through Watch.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			getConfigHandler(w, r, cfile)
		case http.MethodPost:
			setConfigHandler(w, r, cfile)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func getConfigHandler(w http.ResponseWriter, _ *http.Request, cfile string) {
	slog.Debug("Handling GET /api/config request")
	// Always read the file so the answer reflects the latest version.
	fullConfig, err := ReadConfig(cfile, false)
	if err != nil {
		slog.Error("Failed to read config file for API", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fullConfig.Runtime()); err != nil {
		slog.Error("Failed to encode runtime config to JSON", "error", err)
		http.Error(w, "Failed to serialize configuration", http.StatusInternalServerError)
	}
}

func setConfigHandler(w http.ResponseWriter, r *http.Request, cfile string) {
	slog.Info("Handling POST /api/config request")
	defer r.Body.Close()

	var newRuntimeConfig RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&newRuntimeConfig); err != nil {
		slog.Error("Failed to decode incoming JSON", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Pins and display layout come from the file on disk.
	fullConfig, err := ReadConfig(cfile, false)
	if err != nil {
		slog.Error("Failed to read existing config for update", "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	fullConfig.MergeRuntime(newRuntimeConfig)

	if err := fullConfig.Validate(); err != nil {
		slog.Error("Validation failed for new config", "error", err)
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	yamlData, err := yaml.Marshal(fullConfig)
	if err != nil {
		slog.Error("Failed to marshal merged config to YAML", "error", err)
		http.Error(w, "Failed to prepare configuration for saving", http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(cfile, yamlData, 0o644); err != nil {
		slog.Error("Failed to write updated config file", "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("Successfully updated config file, application will reload.")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Configuration updated successfully.")
}
