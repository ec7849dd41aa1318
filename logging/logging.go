// Package logging sets up slog for the board. In the terminal simulation
// the log pane only exists after the first draw, so records are held back
// until SetOutput names it.
package logging

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"lautenbacher.net/sramboard/config"
)

// paneWriter sends records to target, or keeps them in held while no
// target is attached. Every record is also appended to file if set.
type paneWriter struct {
	mu      sync.Mutex
	held    bytes.Buffer
	holding bool
	target  io.Writer
	file    *os.File
}

func (w *paneWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	switch {
	case w.holding:
		w.held.Write(p)
	case w.target != nil:
		if _, err := w.target.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

// attach flushes held records to target and makes it the live output.
func (w *paneWriter) attach(target io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.held.Len() > 0 {
		if _, err := target.Write(w.held.Bytes()); err != nil {
			return err
		}
		w.held.Reset()
	}
	w.target = target
	w.holding = false
	return nil
}

func (w *paneWriter) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target = nil
	w.holding = true
}

// close hands records nobody saw to stderr, unless a file has them.
func (w *paneWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.held.Len() > 0 && w.file == nil && w.target == nil {
		if _, err := os.Stderr.Write(w.held.Bytes()); err != nil {
			errs = append(errs, err)
		}
	}
	w.held.Reset()
	if w.file != nil {
		errs = append(errs, w.file.Close())
		w.file = nil
	}
	return errors.Join(errs...)
}

var writer = &paneWriter{target: os.Stderr}

// Init installs the default slog logger. With hold set, records wait
// for SetOutput (the TUI log pane); otherwise they go to stderr. A
// configured File receives every record in addition.
func Init(hold bool, cfg config.LogConfig) error {
	w := &paneWriter{holding: hold}
	if !hold {
		w.target = os.Stderr
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		w.file = f
	}
	writer = w

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels. Anything
// else is INFO.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Writer is the output of the default logger, for libraries logging
// through the standard log package.
func Writer() io.Writer {
	return writer
}

// SetOutput writes the held records to newTarget and logs there from now on.
func SetOutput(newTarget io.Writer) error {
	return writer.attach(newTarget)
}

// BufferOutput holds records again, e.g. while the TUI shuts down.
func BufferOutput() {
	writer.detach()
}

// Close closes the log file. Held records end up on stderr.
func Close() error {
	return writer.close()
}
