package armor

import "errors"

var (
	ErrOddLength         = errors.New("armor: message length is odd")
	ErrAmbiguousOrder    = errors.New("armor: fragment order cannot be determined")
	ErrDuplicateFragment = errors.New("armor: duplicate fragment order")
	ErrIncompleteMessage = errors.New("armor: incomplete message")
)
