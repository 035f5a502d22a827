package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"rawaccel"
)

// fakeDaemon answers read and write requests over net.Pipe and records the
// last written settings.
type fakeDaemon struct {
	current rawaccel.Settings
	writes  int
}

func (d *fakeDaemon) client() *client {
	return &client{dial: func() (net.Conn, error) {
		server, conn := net.Pipe()
		go d.serve(server)
		return conn, nil
	}}
}

func (d *fakeDaemon) serve(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req IPCRequest
	resp := IPCResponse{Status: "ok"}
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		resp = IPCResponse{Status: "error", Code: "bad_request", Error: err.Error()}
	}
	switch req.Type {
	case "read":
	case "write":
		d.current = *req.Settings
		d.writes++
	default:
		resp = IPCResponse{Status: "error", Code: "bad_request", Error: "unknown request type"}
	}
	if resp.Status == "ok" {
		s := d.current
		resp.Settings = &s
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func TestRun_Get(t *testing.T) {
	d := &fakeDaemon{current: rawaccel.DefaultSettings()}
	var stdout, stderr bytes.Buffer
	if code := run(d.client(), []string{"get"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}

	var got rawaccel.Settings
	if err := yaml.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not settings YAML: %v\n%s", err, stdout.String())
	}
	if got != rawaccel.DefaultSettings() {
		t.Fatalf("printed %+v", got)
	}
	if !strings.Contains(stdout.String(), "modes:") {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestRun_SetOverlays(t *testing.T) {
	start := rawaccel.DefaultSettings()
	start.DegreesRotation = 3
	d := &fakeDaemon{current: start}

	path := filepath.Join(t.TempDir(), "s.yaml")
	if err := os.WriteFile(path, []byte("modes: [power, power]\nsensitivity: {x: 0.5, y: 0.5}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(d.client(), []string{"set", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if d.writes != 1 {
		t.Fatalf("writes = %d, want 1", d.writes)
	}
	if d.current.Modes[0] != rawaccel.ModePower || d.current.Sensitivity.Y != 0.5 {
		t.Fatalf("written %+v", d.current)
	}
	if d.current.DegreesRotation != 3 {
		t.Fatalf("rotation not kept from the active settings: %+v", d.current)
	}
}

func TestRun_Errors(t *testing.T) {
	d := &fakeDaemon{current: rawaccel.DefaultSettings()}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("sensitivty: {x: 1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{
		nil,
		{"set"},
		{"set", bad},
		{"set", filepath.Join(t.TempDir(), "missing.yaml")},
		{"frobnicate"},
	} {
		var stdout, stderr bytes.Buffer
		if code := run(d.client(), args, &stdout, &stderr); code == 0 {
			t.Fatalf("run(%v) succeeded", args)
		}
	}
	if d.writes != 0 {
		t.Fatalf("failed commands wrote settings")
	}

	unreachable := unixClient(filepath.Join(t.TempDir(), "none.sock"))
	var stdout, stderr bytes.Buffer
	if code := run(unreachable, []string{"reset"}, &stdout, &stderr); code == 0 || !strings.Contains(stderr.String(), "connect") {
		t.Fatalf("exit %d, stderr %q", code, stderr.String())
	}
}

func TestRun_Reset(t *testing.T) {
	s := rawaccel.DefaultSettings()
	s.SpeedCap = 12
	d := &fakeDaemon{current: s}
	var stdout, stderr bytes.Buffer
	if code := run(d.client(), []string{"reset"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if d.current != rawaccel.DefaultSettings() {
		t.Fatalf("reset wrote %+v", d.current)
	}
}
