package shogi

import "errors"

// ErrMalformedInput is wrapped by every SFEN and move parse failure.
var ErrMalformedInput = errors.New("malformed input")
