package main

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Device capabilities
// ============================================================================
// A grabbed device only reaches userspace through the virtual mouse, so the
// virtual mouse advertises the union of what the source devices report, on
// top of a plain mouse baseline. Events of a type or code the uinput device
// does not advertise are discarded by the kernel.
// ============================================================================

// Bit counts from <linux/input-event-codes.h>.
const (
	relCnt = 0x10
	keyCnt = 0x300
	absCnt = uinputAbsCnt
)

// bitset is a kernel capability mask, one bit per code, little-endian bytes.
type bitset []byte

func newBitset(n int) bitset { return make(bitset, (n+7)/8) }

func (b bitset) has(i int) bool {
	return i >= 0 && i/8 < len(b) && b[i/8]&(1<<(i%8)) != 0
}

func (b bitset) set(i int) { b[i/8] |= 1 << (i % 8) }

func (b bitset) or(o bitset) {
	for i := range b {
		if i < len(o) {
			b[i] |= o[i]
		}
	}
}

func (b bitset) list() []int {
	var out []int
	for i := 0; i < len(b)*8; i++ {
		if b.has(i) {
			out = append(out, i)
		}
	}
	return out
}

func (b bitset) empty() bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

type capabilities struct {
	keys bitset
	rels bitset
	abs  bitset

	absInfo [absCnt]absInfo
}

func newCapabilities() capabilities {
	return capabilities{
		keys: newBitset(keyCnt),
		rels: newBitset(relCnt),
		abs:  newBitset(absCnt),
	}
}

// mouseCapabilities is the baseline every virtual mouse advertises.
func mouseCapabilities() capabilities {
	c := newCapabilities()
	for _, rel := range []int{REL_X, REL_Y, REL_HWHEEL, REL_WHEEL} {
		c.rels.set(rel)
	}
	for btn := BTN_LEFT; btn <= BTN_TASK; btn++ {
		c.keys.set(btn)
	}
	return c
}

// merge adds o's codes to c. An axis range comes from the first device that
// reports the axis.
func (c *capabilities) merge(o capabilities) {
	for _, code := range o.abs.list() {
		if !c.abs.has(code) {
			c.absInfo[code] = o.absInfo[code]
		}
	}
	c.keys.or(o.keys)
	c.rels.or(o.rels)
	c.abs.or(o.abs)
}

type ioctlCall struct {
	req uint
	arg int
}

// setupCalls lists the UI_SET_*BIT ioctls that declare c on a uinput device.
func (c capabilities) setupCalls() []ioctlCall {
	calls := []ioctlCall{{UI_SET_EVBIT, EV_SYN}}
	groups := []struct {
		ev   int
		bits bitset
		req  uint
	}{
		{EV_KEY, c.keys, UI_SET_KEYBIT},
		{EV_REL, c.rels, UI_SET_RELBIT},
		{EV_ABS, c.abs, UI_SET_ABSBIT},
	}
	for _, g := range groups {
		if g.bits.empty() {
			continue
		}
		calls = append(calls, ioctlCall{UI_SET_EVBIT, g.ev})
		for _, code := range g.bits.list() {
			calls = append(calls, ioctlCall{g.req, code})
		}
	}
	return calls
}

// userDev builds the uinput_user_dev record carrying c's axis ranges.
func (c capabilities) userDev(name string) uinputUserDev {
	dev := uinputUserDev{
		ID: uinputID{Bustype: busUSB, Vendor: 0x4711, Product: 0x0819, Version: 1},
	}
	copy(dev.Name[:], name)
	for _, code := range c.abs.list() {
		info := c.absInfo[code]
		dev.Absmin[code] = info.Min
		dev.Absmax[code] = info.Max
		dev.Absfuzz[code] = info.Fuzz
		dev.Absflat[code] = info.Flat
	}
	return dev
}

// ioctl request encoding (the _IOC macro).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocRead = 2
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// evioCGBit is EVIOCGBIT(ev, size) = _IOC(_IOC_READ, 'E', 0x20 + ev, size).
func evioCGBit(ev int, size int) uintptr {
	return ioc(iocRead, 'E', uint32(0x20+ev), uint32(size))
}

// evioCGAbs is EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo).
func evioCGAbs(code int) uintptr {
	return ioc(iocRead, 'E', uint32(0x40+code), uint32(unsafe.Sizeof(absInfo{})))
}

// ioctlPtr issues a pointer-argument ioctl the same way ioctlFile does.
func ioctlPtr(f *os.File, req uintptr, p unsafe.Pointer) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(p)); errno != 0 {
			ioErr = errno
		}
	}); err != nil {
		return err
	}
	return ioErr
}

// queryCapabilities reads the key, relative and absolute masks of an evdev
// device, plus the range of every absolute axis.
func queryCapabilities(f *os.File) (capabilities, error) {
	c := newCapabilities()
	for _, g := range []struct {
		ev   int
		bits bitset
	}{{EV_KEY, c.keys}, {EV_REL, c.rels}, {EV_ABS, c.abs}} {
		if err := ioctlPtr(f, evioCGBit(g.ev, len(g.bits)), unsafe.Pointer(&g.bits[0])); err != nil {
			return capabilities{}, fmt.Errorf("EVIOCGBIT %#x: %w", g.ev, err)
		}
	}
	for _, code := range c.abs.list() {
		if err := ioctlPtr(f, evioCGAbs(code), unsafe.Pointer(&c.absInfo[code])); err != nil {
			return capabilities{}, fmt.Errorf("EVIOCGABS %#x: %w", code, err)
		}
	}
	return c, nil
}
