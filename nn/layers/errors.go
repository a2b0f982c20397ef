package layers

import "errors"

// ErrShape is returned when a layer receives a tensor whose rank it does not
// support.
var ErrShape = errors.New("unsupported tensor shape")
