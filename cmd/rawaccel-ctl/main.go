package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"rawaccel"
)

// ============================================================================
// rawaccel-ctl - Command-line IPC Client
// ============================================================================
// Reads and replaces the settings of a running rawacceld.
//
// Usage:
//   rawaccel-ctl get
//   rawaccel-ctl set settings.yaml
//   rawaccel-ctl reset
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/rawaccel.sock)
// ============================================================================

const defaultSocketPath = "/tmp/rawaccel.sock"

// IPCRequest and IPCResponse are duplicated from the daemon for a standalone
// binary.
type IPCRequest struct {
	Type     string             `json:"type"`
	Settings *rawaccel.Settings `json:"settings,omitempty"`
}

type IPCResponse struct {
	Status   string             `json:"status"`
	Code     string             `json:"code,omitempty"`
	Error    string             `json:"error,omitempty"`
	Settings *rawaccel.Settings `json:"settings,omitempty"`
}

// client talks to the daemon over one connection per command.
type client struct {
	dial func() (net.Conn, error)
}

func unixClient(socketPath string) *client {
	return &client{dial: func() (net.Conn, error) {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
		}
		return conn, nil
	}}
}

func (c *client) call(req IPCRequest) (rawaccel.Settings, error) {
	conn, err := c.dial()
	if err != nil {
		return rawaccel.Settings{}, err
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return rawaccel.Settings{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return rawaccel.Settings{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(bufio.NewReader(conn)).Decode(&resp); err != nil {
		return rawaccel.Settings{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return rawaccel.Settings{}, fmt.Errorf("daemon error (%s): %s", resp.Code, resp.Error)
	}
	if resp.Settings == nil {
		return rawaccel.Settings{}, errors.New("daemon returned no settings")
	}
	return *resp.Settings, nil
}

// overlaySettings decodes a YAML settings document on top of base. Keys
// missing from the document keep the values of base, except inside args
// entries, which start from the defaults.
func overlaySettings(base rawaccel.Settings, doc []byte) (rawaccel.Settings, error) {
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(&base); err != nil && !errors.Is(err, io.EOF) {
		return rawaccel.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return base, nil
}

func printSettings(w io.Writer, s rawaccel.Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// run executes one command and returns the process exit code.
func run(c *client, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}

	var (
		s   rawaccel.Settings
		err error
	)
	switch args[0] {
	case "get", "show":
		s, err = c.call(IPCRequest{Type: "read"})

	case "set", "apply":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "error: set requires a settings file")
			return 1
		}
		var doc []byte
		if doc, err = os.ReadFile(args[1]); err != nil {
			break
		}
		if s, err = c.call(IPCRequest{Type: "read"}); err != nil {
			break
		}
		if s, err = overlaySettings(s, doc); err != nil {
			break
		}
		s, err = c.call(IPCRequest{Type: "write", Settings: &s})

	case "reset":
		def := rawaccel.DefaultSettings()
		s, err = c.call(IPCRequest{Type: "write", Settings: &def})

	case "help", "-h", "--help":
		printUsage(stdout)
		return 0

	default:
		fmt.Fprintf(stderr, "error: unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := printSettings(stdout, s); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	socketPath := defaultSocketPath
	args := os.Args[1:]

	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	os.Exit(run(unixClient(socketPath), args, os.Stdout, os.Stderr))
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `rawaccel-ctl - Read and change rawacceld settings via IPC

Usage:
  rawaccel-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  get, show              Print the active settings as YAML
  set, apply <file>      Apply a YAML settings file over the active settings
  reset                  Restore the default settings
  help, -h, --help       Show this help message

Writes take effect after the daemon's settle delay (one second by default).

Examples:
  rawaccel-ctl get > current.yaml
  rawaccel-ctl set current.yaml
  rawaccel-ctl -socket /run/rawaccel.sock reset
`, defaultSocketPath)
}
