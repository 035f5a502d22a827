package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"rawaccel"
)

// ============================================================================
// Forwarder - rawaccel.Sink writing frames back out as input events
// ============================================================================

// forwarder is the downstream sink of one stream. Before each Process call the
// reader hands it the frames the batch was built from; Consume pairs them with
// the transformed samples and writes the whole batch in one write.
type forwarder struct {
	w io.Writer

	frames []frame
	out    []inputEvent
	buf    bytes.Buffer
	err    error
}

func newForwarder(w io.Writer) *forwarder {
	return &forwarder{w: w}
}

var synReport = inputEvent{Type: EV_SYN, Code: SYN_REPORT}

// Consume rebuilds the pending frames with the values in batch and writes
// them. REL_X/REL_Y are replaced; a zero axis is dropped. Absolute frames and
// frames without motion are written unchanged.
func (f *forwarder) Consume(batch []rawaccel.Motion) int {
	f.out = f.out[:0]
	used := 0
	for i := range f.frames {
		fr := &f.frames[i]
		if !fr.hasMotion() || fr.absolute {
			if fr.hasMotion() {
				used++
			}
			f.out = append(f.out, fr.events...)
			f.out = append(f.out, synReport)
			continue
		}
		if used >= len(batch) {
			break
		}
		m := batch[used]
		used++

		start := len(f.out)
		for _, ev := range fr.events {
			if ev.Type == EV_REL && (ev.Code == REL_X || ev.Code == REL_Y) {
				continue
			}
			f.out = append(f.out, ev)
		}
		if m.X != 0 {
			f.out = append(f.out, inputEvent{Type: EV_REL, Code: REL_X, Value: m.X})
		}
		if m.Y != 0 {
			f.out = append(f.out, inputEvent{Type: EV_REL, Code: REL_Y, Value: m.Y})
		}
		if len(f.out) > start {
			f.out = append(f.out, synReport)
		}
	}
	f.frames = nil

	if len(f.out) == 0 {
		return used
	}
	f.buf.Reset()
	if err := binary.Write(&f.buf, binary.LittleEndian, f.out); err != nil {
		f.err = fmt.Errorf("encode output events: %w", err)
		return 0
	}
	if _, err := f.w.Write(f.buf.Bytes()); err != nil {
		f.err = fmt.Errorf("write output events: %w", err)
		return 0
	}
	return used
}

// Err returns and clears the last write error.
func (f *forwarder) Err() error {
	err := f.err
	f.err = nil
	return err
}

// ============================================================================
// Virtual mouse (uinput)
// ============================================================================

type uinputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         uinputID
	EffectsMax uint32
	Absmax     [uinputAbsCnt]int32
	Absmin     [uinputAbsCnt]int32
	Absfuzz    [uinputAbsCnt]int32
	Absflat    [uinputAbsCnt]int32
}

// virtualMouse is the relative pointer device every stream writes to. Writes
// are serialized so batches from different devices never interleave.
type virtualMouse struct {
	mu   sync.Mutex
	file *os.File
}

// ioctlFile issues an integer-argument ioctl without taking the file out of
// the runtime poller, so a blocked Read still returns when f is closed.
func ioctlFile(f *os.File, req uint, arg int) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetInt(int(fd), req, arg)
	}); err != nil {
		return err
	}
	return ioErr
}

// createVirtualMouse creates a uinput device advertising caps.
func createVirtualMouse(path, name string, caps capabilities) (*virtualMouse, error) {
	f, err := os.OpenFile(path, unix.O_WRONLY|unix.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fail := func(what string, err error) (*virtualMouse, error) {
		_ = f.Close()
		return nil, fmt.Errorf("uinput %s: %w", what, err)
	}

	for _, call := range caps.setupCalls() {
		if err := ioctlFile(f, call.req, call.arg); err != nil {
			return fail(fmt.Sprintf("ioctl %#x(%#x)", call.req, call.arg), err)
		}
	}

	dev := caps.userDev(name)
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &dev); err != nil {
		return fail("encode device", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fail("write device", err)
	}
	if err := ioctlFile(f, UI_DEV_CREATE, 0); err != nil {
		return fail("create device", err)
	}
	return &virtualMouse{file: f}, nil
}

func (m *virtualMouse) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Write(b)
}

func (m *virtualMouse) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = ioctlFile(m.file, UI_DEV_DESTROY, 0)
	return m.file.Close()
}
