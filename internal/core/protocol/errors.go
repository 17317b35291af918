package protocol

import (
	"errors"

	"github.com/fmukit/fmukit/internal/core/slave"
)

// Transport errors
var (
	ErrTransportClosed  = errors.New("transport is closed")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrMessageTooLarge  = errors.New("message too large")
	ErrInvalidMessage   = errors.New("invalid message")
)

// Session errors carried over the wire
var (
	ErrUnknownInstance = errors.New("unknown instance handle")
	ErrUnknownAction   = errors.New("unknown action")
	ErrBadPayload      = errors.New("malformed payload")
	ErrUnknownModel    = errors.New("unknown model")
)

// ErrorCode identifies a failure class on the wire so clients can
// recover the matching sentinel error.
type ErrorCode int

const (
	CodeUnknown ErrorCode = 0

	// Lifecycle codes (1000-1999)

	CodeModelNotRegistered ErrorCode = 1001
	CodeWrongInterface     ErrorCode = 1002
	CodeInvalidState       ErrorCode = 1003
	CodeInstanceClosed     ErrorCode = 1004
	CodeSetupRequired      ErrorCode = 1005

	// Stepping codes (2000-2999)

	CodeBadStepSize           ErrorCode = 2001
	CodeBadCommunicationPoint ErrorCode = 2002

	// Variable access codes (3000-3999)

	CodeUnknownVariable     ErrorCode = 3001
	CodeWrongVariableType   ErrorCode = 3002
	CodeVariableNotSettable ErrorCode = 3003
	CodeSizeMismatch        ErrorCode = 3004

	// Snapshot codes (4000-4999)

	CodeStateNotSupported   ErrorCode = 4001
	CodeSnapshotInvalidated ErrorCode = 4002

	// Logging codes (5000-5999)

	CodeUnknownLogCategory ErrorCode = 5001

	// Session codes (6000-6999)

	CodeUnknownInstance ErrorCode = 6001
	CodeUnknownAction   ErrorCode = 6002
	CodeBadPayload      ErrorCode = 6003
	CodeUnknownModel    ErrorCode = 6004
)

// wireCodes pairs every sentinel that may cross the wire with its
// code.
var wireCodes = []struct {
	err  error
	code ErrorCode
}{
	{slave.ErrModelNotRegistered, CodeModelNotRegistered},
	{slave.ErrWrongInterface, CodeWrongInterface},
	{slave.ErrInvalidState, CodeInvalidState},
	{slave.ErrInstanceClosed, CodeInstanceClosed},
	{slave.ErrSetupRequired, CodeSetupRequired},
	{slave.ErrBadStepSize, CodeBadStepSize},
	{slave.ErrBadCommunicationPoint, CodeBadCommunicationPoint},
	{slave.ErrUnknownVariable, CodeUnknownVariable},
	{slave.ErrWrongVariableType, CodeWrongVariableType},
	{slave.ErrVariableNotSettable, CodeVariableNotSettable},
	{slave.ErrSizeMismatch, CodeSizeMismatch},
	{slave.ErrStateNotSupported, CodeStateNotSupported},
	{slave.ErrSnapshotInvalidated, CodeSnapshotInvalidated},
	{slave.ErrUnknownLogCategory, CodeUnknownLogCategory},
	{ErrUnknownInstance, CodeUnknownInstance},
	{ErrUnknownAction, CodeUnknownAction},
	{ErrBadPayload, CodeBadPayload},
	{ErrUnknownModel, CodeUnknownModel},
}

var codeToErr = func() map[ErrorCode]error {
	m := make(map[ErrorCode]error, len(wireCodes))
	for _, wc := range wireCodes {
		m[wc.code] = wc.err
	}
	return m
}()

// ErrorInfo is the wire form of an error.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorInfoFrom classifies err for transmission.
func ErrorInfoFrom(err error) *ErrorInfo {
	info := &ErrorInfo{Code: CodeUnknown, Message: err.Error()}
	for _, wc := range wireCodes {
		if errors.Is(err, wc.err) {
			info.Code = wc.code
			break
		}
	}
	return info
}

// Err reconstructs the error on the receiving side. The result keeps
// the remote message and unwraps to the sentinel matching the code, so
// errors.Is works across the wire.
func (e *ErrorInfo) Err() error {
	if e == nil {
		return nil
	}
	sentinel, ok := codeToErr[e.Code]
	if !ok {
		return errors.New(e.Message)
	}
	if e.Message == "" || e.Message == sentinel.Error() {
		return sentinel
	}
	return &remoteError{message: e.Message, sentinel: sentinel}
}

type remoteError struct {
	message  string
	sentinel error
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.sentinel }
