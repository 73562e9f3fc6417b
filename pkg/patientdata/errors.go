package patientdata

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks failures caused by pipeline configuration or
	// inconsistent inputs, e.g. an unknown gender key.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvariant marks a broken data invariant, e.g. too few positive
	// patients after a stage.
	ErrInvariant = errors.New("invariant violation")
)

func ConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func InvariantError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsInvariantError(err error) bool {
	return errors.Is(err, ErrInvariant)
}
