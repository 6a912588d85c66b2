package projector

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned for an event the contract kind does not emit.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrUnknownContract is returned for an event of a contract that is not configured.
	ErrUnknownContract = errors.New("unknown contract")

	// ErrConfigurationMissing is matched by every ConfigurationMissingError.
	ErrConfigurationMissing = errors.New("configuration missing")

	errMissingArg = errors.New("missing argument")
	errOutOfRange = errors.New("value out of range")
)

// DecodeError is returned when an event argument is absent or malformed.
type DecodeError struct {
	Event string
	Arg   string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: argument %s: %v", e.Event, e.Arg, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConfigurationMissingError is returned at startup when a parameter needed to
// project events of a chain is unset or zero.
type ConfigurationMissingError struct {
	ChainID  uint64
	Contract string
	Field    string
}

// NewConfigurationMissingError creates a new ConfigurationMissingError.
func NewConfigurationMissingError(chainID uint64, contract, field string) *ConfigurationMissingError {
	return &ConfigurationMissingError{
		ChainID:  chainID,
		Contract: contract,
		Field:    field,
	}
}

func (e *ConfigurationMissingError) Error() string {
	if e.Contract == "" {
		return fmt.Sprintf("chain %d: %s is not configured", e.ChainID, e.Field)
	}
	return fmt.Sprintf("chain %d, contract %s: %s is not configured", e.ChainID, e.Contract, e.Field)
}

func (e *ConfigurationMissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}
