package errors

import (
	"github.com/cockroachdb/errors"
)

// Re-exports so callers can depend on a single errors package.
var (
	New    = errors.New
	Newf   = errors.Newf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
