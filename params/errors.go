package params

import "errors"

var (
	// ErrConfiguration is wrapped by errors returned when a parameterisation
	// is constructed from size-inconsistent parts. Fatal: the caller must fix
	// its configuration.
	ErrConfiguration = errors.New("inconsistent parameterisation")

	// ErrLengthMismatch is wrapped by errors returned when a value vector of
	// the wrong length is supplied. No partial mutation is performed.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrNotComposed is returned when model state or derivatives are read
	// before the first Compose call. This signals a caller ordering bug.
	ErrNotComposed = errors.New("model state has not been composed")

	// ErrNotImplemented is returned when Compose is invoked on the base
	// ModelParameterisation rather than a concrete model type.
	ErrNotImplemented = errors.New("not implemented by the base parameterisation")
)
