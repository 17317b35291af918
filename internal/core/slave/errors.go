package slave

import "errors"

var (
	ErrModelNotRegistered    = errors.New("model is not registered")
	ErrWrongInterface        = errors.New("model does not declare the requested interface")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrInstanceClosed        = errors.New("instance is closed")
	ErrSetupRequired         = errors.New("setup experiment has not been called")
	ErrBadStepSize           = errors.New("communication step size must be positive")
	ErrBadCommunicationPoint = errors.New("communication point does not match instance time")
	ErrUnknownVariable       = errors.New("unknown variable")
	ErrWrongVariableType     = errors.New("variable has a different type")
	ErrVariableNotSettable   = errors.New("variable is not settable in current state")
	ErrSizeMismatch          = errors.New("value count does not match reference count")
	ErrStateNotSupported     = errors.New("model does not support state snapshots")
	ErrSnapshotInvalidated   = errors.New("snapshot predates the no-rollback point")
	ErrUnknownLogCategory    = errors.New("log category not declared by model")
)
