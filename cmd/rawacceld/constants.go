package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_ABS = 0x03

	SYN_REPORT  = 0
	SYN_DROPPED = 3

	REL_X      = 0x00
	REL_Y      = 0x01
	REL_HWHEEL = 0x06
	REL_WHEEL  = 0x08

	ABS_X = 0x00
	ABS_Y = 0x01

	BTN_LEFT   = 0x110
	BTN_RIGHT  = 0x111
	BTN_MIDDLE = 0x112
	BTN_SIDE   = 0x113
	BTN_EXTRA  = 0x114
	BTN_TASK   = 0x117
)

// ioctl requests (from <linux/input.h> and <linux/uinput.h>)
const (
	EVIOCGRAB = 0x40044590

	UI_DEV_CREATE  = 0x5501
	UI_DEV_DESTROY = 0x5502
	UI_SET_EVBIT   = 0x40045564
	UI_SET_KEYBIT  = 0x40045565
	UI_SET_RELBIT  = 0x40045566
	UI_SET_ABSBIT  = 0x40045567

	uinputMaxNameSize = 80
	uinputAbsCnt      = 64
	busUSB            = 0x03
)

// Daemon defaults
const (
	defaultUinputPath     = "/dev/uinput"
	defaultVirtualName    = "rawaccel virtual mouse"
	defaultSocketPath     = "/tmp/rawaccel.sock"
	defaultHTTPAddr       = "127.0.0.1:8457"
	defaultSettleDelayMS  = 1000
	defaultWatchDebounce  = 250 // ms
	defaultReadBatchLimit = 64  // input_event records per read
)
