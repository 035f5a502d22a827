package rawaccel

import "errors"

var (
	// ErrBadRequestSize is returned when a binary settings buffer does not
	// have exactly SettingsSize bytes. Nothing is changed.
	ErrBadRequestSize = errors.New("bad request size")

	// ErrMessageLost is returned when a correctly sized settings buffer
	// could not be decoded.
	ErrMessageLost = errors.New("settings could not be retrieved")

	// ErrSharingViolation is returned by Connect on an already connected stream.
	ErrSharingViolation = errors.New("stream already connected")

	// ErrNotSupported is returned by Disconnect. A connected stream cannot be
	// released.
	ErrNotSupported = errors.New("disconnect not supported")

	// ErrNotConnected is returned when a batch is delivered to a stream that
	// has no downstream sink.
	ErrNotConnected = errors.New("stream not connected")
)
