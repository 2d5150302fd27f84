package producer

import "errors"

// Sentinel errors for digest production.
var (
	// ErrInsufficientContent indicates too few source items to produce a
	// meaningful digest. Expected and recoverable: the source may simply
	// have been quiet during the window.
	ErrInsufficientContent = errors.New("producer: insufficient content")
)

// IsInsufficient reports whether the error is the expected too-little-input
// condition rather than an infrastructure fault.
func IsInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientContent)
}
