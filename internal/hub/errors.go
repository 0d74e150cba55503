package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrUnknownEvent      = errors.New("unknown event")
)
