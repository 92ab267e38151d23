package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrQueueFull       = "E_QUEUE_FULL"

	// Control-plane action layer.
	ErrUnknownKind = "E_UNKNOWN_KIND"
	ErrValidation  = "E_VALIDATION"
	ErrNotFound    = "E_NOT_FOUND"
	ErrLifecycle   = "E_LIFECYCLE"
	ErrInternal    = "E_INTERNAL"
)

// GenericError tags the payload of every error signal: handler and
// validation failures cross the queue boundary as data, never as faults.
const GenericError = "GENERIC_ERROR"

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrQueueFull:       {},
	ErrUnknownKind:     {},
	ErrValidation:      {},
	ErrNotFound:        {},
	ErrLifecycle:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
