package negentropy

import "errors"

var (
	// ErrProtocol is returned for malformed wire data: unknown protocol version,
	// truncated or over-long varints, unknown range modes.
	ErrProtocol = errors.New("negentropy: protocol error")
	// ErrStorage is returned when Storage is queried before it is sealed or modified
	// after that.
	ErrStorage = errors.New("negentropy: storage error")
	// ErrMessage is returned for structurally invalid messages, such as ranges with
	// non-increasing upper bounds.
	ErrMessage = errors.New("negentropy: invalid message")
)
