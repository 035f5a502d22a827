package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"rawaccel"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server is the configuration channel of the filter. Clients read
// and replace the active settings, either as JSON or as the fixed-size binary
// record (base64 in JSON).
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "read"|"write"|"read_raw"|"write_raw", ...}
//   - Server responds: {"status": "ok", ...} or
//     {"status": "error", "code": "...", "error": "msg"}
//
// A write blocks its connection for the settle delay. Other connections are
// served meanwhile.
// ============================================================================

// IPC request types
const (
	ipcRead     = "read"
	ipcWrite    = "write"
	ipcReadRaw  = "read_raw"
	ipcWriteRaw = "write_raw"
)

// IPC error codes
const (
	codeBadRequestSize = "bad_request_size"
	codeBadRequest     = "bad_request"
	codeInternal       = "internal"
)

// IPCRequest is one line sent by a client. Settings is a JSON settings
// document patched over the active record, as for PUT /api/settings.
type IPCRequest struct {
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Raw      []byte          `json:"raw,omitempty"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status   string             `json:"status"`          // "ok" or "error"
	Code     string             `json:"code,omitempty"`  // set when status == "error"
	Error    string             `json:"error,omitempty"` // error message if status == "error"
	Settings *rawaccel.Settings `json:"settings,omitempty"`
	Raw      []byte             `json:"raw,omitempty"`
}

// configChannel is the part of rawaccel.State the IPC server drives.
type configChannel interface {
	Read() rawaccel.Settings
	Write(rawaccel.Settings) rawaccel.Settings
	ReadRaw(dst []byte) (int, error)
	WriteRaw(b []byte) (rawaccel.Settings, error)
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, state configChannel, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Settings changes need the same privilege as the daemon.
	if err := os.Chmod(socketPath, 0600); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, state, logger)
	}
}

// handleIPCConnection serves requests on one connection until it closes.
func handleIPCConnection(conn net.Conn, state configChannel, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "bytes", len(line))

		var req IPCRequest
		var resp IPCResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp = ipcError(codeBadRequest, fmt.Errorf("parse request: %w", err))
		} else {
			resp = serveIPCRequest(state, req)
		}
		if resp.Status != "ok" {
			logger.Warn("IPC request failed", "type", req.Type, "code", resp.Code, "error", resp.Error)
		}

		if err := encoder.Encode(resp); err != nil {
			// Encode writes nothing when marshaling fails (a record holding an
			// unknown mode, say), so the client still gets one line.
			var jsonErr *json.UnsupportedValueError
			var marshalErr *json.MarshalerError
			if errors.As(err, &jsonErr) || errors.As(err, &marshalErr) {
				err = encoder.Encode(ipcError(codeInternal, fmt.Errorf("encode response: %w", err)))
			}
			if err != nil {
				logger.Error("IPC failed to send response", "error", err)
				return
			}
		}
	}

	logger.Debug("IPC connection closed")
}

// serveIPCRequest executes one request against state.
func serveIPCRequest(state configChannel, req IPCRequest) IPCResponse {
	switch req.Type {
	case ipcRead:
		s := state.Read()
		return IPCResponse{Status: "ok", Settings: &s}

	case ipcWrite:
		if len(req.Settings) == 0 || string(req.Settings) == "null" {
			return ipcError(codeBadRequest, errors.New("write: missing settings"))
		}
		next, err := patchSettings(state.Read(), req.Settings)
		if err != nil {
			return ipcError(codeBadRequest, fmt.Errorf("write: %w", err))
		}
		s := state.Write(next)
		return IPCResponse{Status: "ok", Settings: &s}

	case ipcReadRaw:
		raw := make([]byte, rawaccel.SettingsSize)
		if _, err := state.ReadRaw(raw); err != nil {
			return ipcError(codeInternal, err)
		}
		return IPCResponse{Status: "ok", Raw: raw}

	case ipcWriteRaw:
		s, err := state.WriteRaw(req.Raw)
		if err != nil {
			return ipcError(errorCode(err), err)
		}
		return IPCResponse{Status: "ok", Settings: &s}

	default:
		return ipcError(codeBadRequest, fmt.Errorf("unknown request type %q", req.Type))
	}
}

func ipcError(code string, err error) IPCResponse {
	return IPCResponse{Status: "error", Code: code, Error: err.Error()}
}

// errorCode maps filter errors to stable IPC codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, rawaccel.ErrBadRequestSize):
		return codeBadRequestSize
	case errors.Is(err, rawaccel.ErrMessageLost):
		return codeBadRequest
	default:
		return codeInternal
	}
}
