package main

import "testing"

func hasCall(calls []ioctlCall, req uint, arg int) bool {
	for _, c := range calls {
		if c.req == req && c.arg == arg {
			return true
		}
	}
	return false
}

func TestMouseCapabilities_Buttons(t *testing.T) {
	calls := mouseCapabilities().setupCalls()
	for btn := BTN_LEFT; btn <= BTN_TASK; btn++ {
		if !hasCall(calls, UI_SET_KEYBIT, btn) {
			t.Fatalf("button %#x not advertised", btn)
		}
	}
	for _, rel := range []int{REL_X, REL_Y, REL_WHEEL, REL_HWHEEL} {
		if !hasCall(calls, UI_SET_RELBIT, rel) {
			t.Fatalf("rel %#x not advertised", rel)
		}
	}
	// A plain mouse has no absolute axes; advertising them changes how
	// the device is classified.
	if hasCall(calls, UI_SET_EVBIT, EV_ABS) {
		t.Fatalf("baseline advertises EV_ABS")
	}
}

func TestCapabilities_MergeAbsolute(t *testing.T) {
	tablet := newCapabilities()
	tablet.abs.set(ABS_X)
	tablet.abs.set(ABS_Y)
	tablet.absInfo[ABS_X] = absInfo{Min: 0, Max: 32767, Fuzz: 4}
	tablet.absInfo[ABS_Y] = absInfo{Min: 0, Max: 16383}
	tablet.keys.set(0x14a) // BTN_TOUCH

	other := newCapabilities()
	other.abs.set(ABS_X)
	other.absInfo[ABS_X] = absInfo{Min: -1, Max: 1}

	caps := mouseCapabilities()
	caps.merge(tablet)
	caps.merge(other)

	calls := caps.setupCalls()
	for _, want := range []ioctlCall{
		{UI_SET_EVBIT, EV_ABS},
		{UI_SET_ABSBIT, ABS_X},
		{UI_SET_ABSBIT, ABS_Y},
		{UI_SET_KEYBIT, 0x14a},
		{UI_SET_KEYBIT, BTN_LEFT},
	} {
		if !hasCall(calls, want.req, want.arg) {
			t.Fatalf("missing ioctl %#x(%#x)", want.req, want.arg)
		}
	}

	dev := caps.userDev("virtual")
	if dev.Absmax[ABS_X] != 32767 || dev.Absfuzz[ABS_X] != 4 || dev.Absmax[ABS_Y] != 16383 {
		t.Fatalf("axis ranges not carried: max %v fuzz %v", dev.Absmax[:2], dev.Absfuzz[:2])
	}
	if string(dev.Name[:7]) != "virtual" {
		t.Fatalf("name = %q", dev.Name[:7])
	}
}

func TestIoctlEncoding(t *testing.T) {
	cases := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"EVIOCGBIT(EV_KEY, 96)", evioCGBit(EV_KEY, keyCnt/8), 0x80604521},
		{"EVIOCGBIT(EV_REL, 2)", evioCGBit(EV_REL, relCnt/8), 0x80024522},
		{"EVIOCGABS(ABS_Y)", evioCGAbs(ABS_Y), 0x80184541},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s = %#x, want %#x", tc.name, tc.got, tc.want)
		}
	}
}

func TestBitset(t *testing.T) {
	b := newBitset(keyCnt)
	if !b.empty() || len(b) != 96 {
		t.Fatalf("new bitset: len %d empty %v", len(b), b.empty())
	}
	b.set(0x116)
	b.set(3)
	if got := b.list(); len(got) != 2 || got[0] != 3 || got[1] != 0x116 {
		t.Fatalf("list = %v", got)
	}
	if b.has(keyCnt + 8) {
		t.Fatalf("out of range bit reported")
	}
}
