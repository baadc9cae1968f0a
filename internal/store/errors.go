package store

import "errors"

// ErrValidation marks input rejected before it reaches the database.
var ErrValidation = errors.New("validation failed")
