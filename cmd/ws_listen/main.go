package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"rawaccel"
)

// message mirrors the daemon's websocket envelope.
type message struct {
	Type string            `json:"type"`
	Ts   *time.Time        `json:"ts,omitempty"`
	Data rawaccel.Settings `json:"data"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8457/ws", "rawacceld settings websocket URL")
		full  = flag.Bool("full", false, "Print the whole record on every change")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The daemon pings every 20s. Answer and extend the read deadline.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p := printer{w: os.Stdout, full: *full}
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType == websocket.TextMessage {
				p.handle(raw)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printer tracks the last record seen and prints what changed.
type printer struct {
	w    io.Writer
	full bool
	last *rawaccel.Settings
}

func (p *printer) handle(raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		fmt.Fprintf(p.w, "[TEXT] %s\n", raw)
		return
	}

	if p.last == nil || p.full || msg.Type == "settings_init" {
		pretty, _ := json.MarshalIndent(msg.Data, "", "  ")
		fmt.Fprintf(p.w, "[%s]\n%s\n", msg.Type, pretty)
	} else {
		changes := describeChanges(*p.last, msg.Data)
		if len(changes) == 0 {
			fmt.Fprintf(p.w, "[%s] no change\n", msg.Type)
		}
		for _, c := range changes {
			fmt.Fprintf(p.w, "[%s] %s\n", msg.Type, c)
		}
	}
	s := msg.Data
	p.last = &s
}

// describeChanges lists the fields that differ between two records.
func describeChanges(prev, next rawaccel.Settings) []string {
	var out []string
	add := func(name string, a, b any) {
		if a != b {
			out = append(out, fmt.Sprintf("%s: %v -> %v", name, a, b))
		}
	}
	add("degrees_rotation", prev.DegreesRotation, next.DegreesRotation)
	add("combine_magnitudes", prev.CombineMagnitudes, next.CombineMagnitudes)
	for axis, name := range [2]string{"x", "y"} {
		add("modes."+name, prev.Modes[axis].String(), next.Modes[axis].String())
		add("args."+name, fmt.Sprintf("%+v", prev.Args[axis]), fmt.Sprintf("%+v", next.Args[axis]))
	}
	add("sensitivity", prev.Sensitivity, next.Sensitivity)
	add("dir_multipliers", prev.DirMultipliers, next.DirMultipliers)
	add("speed_cap", prev.SpeedCap, next.SpeedCap)
	add("time_min", prev.TimeMin, next.TimeMin)
	return out
}
