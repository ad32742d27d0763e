package types

import "errors"

// Record input errors. Record operations themselves are total; these are
// returned only by the parsers that map user spelling onto fields.
var (
	ErrUnknownField     = errors.New("unknown record field")
	ErrUnknownAttribute = errors.New("unknown custom field attribute")
)
