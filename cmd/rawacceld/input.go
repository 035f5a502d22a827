package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"rawaccel"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// frame is the events between two SYN_REPORTs, without the SYN_REPORT.
type frame struct {
	events []inputEvent

	motion   rawaccel.Motion
	hasRel   bool // carries REL_X or REL_Y
	absolute bool // carries ABS_X or ABS_Y
}

// hasMotion reports whether the frame becomes a sample of the batch.
func (f *frame) hasMotion() bool { return f.hasRel || f.absolute }

// frameSplitter groups a stream of input events into frames. Events after the
// last SYN_REPORT of a read are kept for the next one.
type frameSplitter struct {
	partial  []inputEvent
	dropping bool
}

// split appends the frames completed by events to dst.
func (s *frameSplitter) split(dst []frame, events []inputEvent) []frame {
	for _, ev := range events {
		if ev.Type != EV_SYN {
			if !s.dropping {
				s.partial = append(s.partial, ev)
			}
			continue
		}
		switch ev.Code {
		case SYN_DROPPED:
			// The kernel queue overflowed; everything up to the next
			// SYN_REPORT is incomplete.
			s.partial = s.partial[:0]
			s.dropping = true
		case SYN_REPORT:
			if s.dropping {
				s.dropping = false
				s.partial = s.partial[:0]
				continue
			}
			if len(s.partial) == 0 {
				continue
			}
			dst = append(dst, newFrame(s.partial))
			s.partial = s.partial[:0]
		}
	}
	return dst
}

func newFrame(events []inputEvent) frame {
	f := frame{events: append([]inputEvent(nil), events...)}
	for _, ev := range f.events {
		switch {
		case ev.Type == EV_REL && ev.Code == REL_X:
			f.motion.X += ev.Value
			f.hasRel = true
		case ev.Type == EV_REL && ev.Code == REL_Y:
			f.motion.Y += ev.Value
			f.hasRel = true
		case ev.Type == EV_ABS && ev.Code == ABS_X:
			f.motion.X = ev.Value
			f.absolute = true
		case ev.Type == EV_ABS && ev.Code == ABS_Y:
			f.motion.Y = ev.Value
			f.absolute = true
		}
	}
	if f.absolute {
		f.motion.Flags |= rawaccel.MoveAbsolute
	}
	return f
}

// decodeEvents parses whole input_event records from b.
func decodeEvents(dst []inputEvent, b []byte) ([]inputEvent, error) {
	n := len(b) / inputEventSize
	if n*inputEventSize != len(b) {
		return dst[:0], fmt.Errorf("short input read: %d bytes", len(b))
	}
	if cap(dst) < n {
		dst = make([]inputEvent, n)
	}
	dst = dst[:n]
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, dst); err != nil {
		return dst[:0], fmt.Errorf("decode input events: %w", err)
	}
	return dst, nil
}

// ============================================================================
// Device reader
// ============================================================================
// One reader per evdev node. Each read returns everything queued by the
// kernel, so a reader that fell behind gets several frames at once. Those
// frames form one batch, and a batch of more than one sample is not
// accelerated.
// ============================================================================

type inputDevice struct {
	path    string
	session uuid.UUID
	file    *os.File
	grabbed bool
	caps    capabilities
	stream  *rawaccel.Stream
	fwd     *forwarder
	logger  *slog.Logger
}

// openInputDevice opens path, grabs it if asked, and reads its capabilities.
// The device produces nothing until connect is called.
func openInputDevice(path string, grab bool, logger *slog.Logger) (*inputDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	d := &inputDevice{
		path:    path,
		session: uuid.New(),
		file:    f,
	}
	d.logger = logger.With("device", path, "session", d.session.String())

	if d.caps, err = queryCapabilities(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	if grab {
		if err := ioctlFile(f, EVIOCGRAB, 1); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
		d.grabbed = true
	}
	return d, nil
}

// connect attaches a new stream of state to a forwarder over out.
func (d *inputDevice) connect(state *rawaccel.State, out io.Writer) error {
	d.stream = state.NewStream()
	d.fwd = newForwarder(out)
	if err := d.stream.Connect(d.fwd); err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	return nil
}

// Close releases the grab and closes the device.
func (d *inputDevice) Close() error {
	if d.grabbed {
		_ = ioctlFile(d.file, EVIOCGRAB, 0)
		d.grabbed = false
	}
	return d.file.Close()
}

// run reads until ctx is canceled or the device goes away.
func (d *inputDevice) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.file.Close()
	}()

	d.logger.Info("input device reading")
	err := pumpFrames(d.file, d.stream, d.fwd, d.logger)
	if ctx.Err() != nil {
		d.logger.Debug("input device closed (shutdown)")
		return nil
	}
	return fmt.Errorf("input %s: %w", d.path, err)
}

// pumpFrames moves frames from r through stream until r fails.
func pumpFrames(r io.Reader, stream *rawaccel.Stream, fwd *forwarder, logger *slog.Logger) error {
	buf := make([]byte, defaultReadBatchLimit*inputEventSize)
	var (
		events   []inputEvent
		frames   []frame
		splitter frameSplitter
		batch    []rawaccel.Motion
	)
	for {
		n, err := r.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		events, err = decodeEvents(events, buf[:n])
		if err != nil {
			logger.Warn("skipping malformed input", "error", err)
			continue
		}

		frames = splitter.split(frames[:0], events)
		if len(frames) == 0 {
			continue
		}

		batch = batch[:0]
		for i := range frames {
			if frames[i].hasMotion() {
				batch = append(batch, frames[i].motion)
			}
		}

		fwd.frames = frames
		if len(batch) == 0 {
			fwd.Consume(nil)
		} else if _, err := stream.Process(batch); err != nil {
			return err
		}
		if err := fwd.Err(); err != nil {
			return err
		}
	}
}
