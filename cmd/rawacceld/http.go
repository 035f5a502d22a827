package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"rawaccel"
)

// ============================================================================
// HTTP API
// ============================================================================
//   GET  /api/settings   active settings as JSON
//   PUT  /api/settings   replace the settings (blocks for the settle delay)
//   GET  /api/health     liveness plus the degraded flag
//   GET  /ws             settings websocket (see state_ws.go)
// ============================================================================

// healthStatus is the body of GET /api/health.
type healthStatus struct {
	Status    string `json:"status"`
	Degraded  bool   `json:"degraded"`
	Devices   int    `json:"devices"`
	WSClients int    `json:"ws_clients"`
}

type apiError struct {
	Error string `json:"error"`
}

// maxSettingsBody bounds PUT bodies; a settings document is well under 4 KiB.
const maxSettingsBody = 64 << 10

// apiServer serves the HTTP routes over the shared filter state.
type apiServer struct {
	state   *rawaccel.State
	hub     *Hub
	devices int
	logger  *slog.Logger
}

func (a *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/settings", a.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", a.handlePutSettings)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /ws", handleSettingsWS(a.hub, a.state, a.logger))
	return mux
}

func (a *apiServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.state.Read(), a.logger)
}

func (a *apiServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: err.Error()}, a.logger)
		return
	}

	// Fields missing from the body keep their current values.
	s, err := patchSettings(a.state.Read(), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()}, a.logger)
		return
	}

	a.logger.Info("settings write via http", "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusOK, a.state.Write(s), a.logger)
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{
		Status:    "ok",
		Degraded:  a.state.Degraded(),
		Devices:   a.devices,
		WSClients: a.hub.Clients(),
	}, a.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("http encode failed", "error", err)
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("http server listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
