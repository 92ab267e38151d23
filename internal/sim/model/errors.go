package model

import "errors"

// Sentinel errors for the model layer. Callers branch with errors.Is; the
// control plane maps them onto wire error codes.
var (
	ErrValidation          = errors.New("validation")
	ErrBadTransition       = errors.New("invalid status transition")
	ErrUnknownPackage      = errors.New("unknown package")
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrParkingFull         = errors.New("parking at capacity")
	ErrParkingNodeMismatch = errors.New("parking not on current node")
	ErrNotOccupant         = errors.New("agent does not hold a parking slot")
)
