package lc

import "errors"

var ErrAlreadyStarted = errors.New("lc: already started")
var ErrAlreadyStopped = errors.New("lc: already stopped")
var ErrNotStarted = errors.New("lc: not started")
var ErrNotStopping = errors.New("lc: stop was not requested")
var ErrStartInProgress = errors.New("lc: start is still in progress")
var ErrInvalidRegistration = errors.New("lc: invalid registration")
var ErrServicePanicked = errors.New("lc: service panicked")
