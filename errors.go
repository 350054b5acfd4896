package shopbus

import "errors"

// ErrClientClosed is returned by every operation after Close
var ErrClientClosed = errors.New("shopbus: client closed")
