package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRegistration is returned when a message type is registered twice.
	ErrDuplicateRegistration = errors.New("message type already registered")
	// ErrDuplicateEntity is returned when a network id or handle is already bound.
	ErrDuplicateEntity = errors.New("entity already bound")
	// ErrUnregisteredMessage is returned when sending a message type the
	// transport's table does not know.
	ErrUnregisteredMessage = errors.New("message type not registered")
)

// RegistrationError reports a configuration error found while wiring a
// channel.
type RegistrationError struct {
	Message MessageType
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s: %v", e.Message, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}
