package forest

import "errors"

// Errors reported by the forest engine. They describe corrupt or mismatched
// inputs and are never retried; callers match them with errors.Is.
var (
	ErrInvalidNode      = errors.New("invalid node id")
	ErrDegenerateLeaf   = errors.New("leaf value sums to zero")
	ErrEmptyEnsemble    = errors.New("forest has no trees")
	ErrNoQualifyingTree = errors.New("no tree attains positive accuracy")
	ErrMalformedRecord  = errors.New("malformed portable record")
	ErrFieldMismatch    = errors.New("vector does not match field list")
)
