// Package slave hosts simulation model instances: the contract models
// implement, the driver registry they announce themselves through, and
// the Instance wrapper that enforces the co-simulation calling
// sequence around them.
package slave

import "github.com/fmukit/fmukit/internal/core/modeldesc"

// Kind selects which declared interface of a model is instantiated.
type Kind uint8

const (
	KindCoSimulation Kind = iota
	KindModelExchange
)

func (k Kind) String() string {
	switch k {
	case KindCoSimulation:
		return "CoSimulation"
	case KindModelExchange:
		return "ModelExchange"
	default:
		return "Unknown"
	}
}

// Experiment carries the run settings handed to a slave before
// initialization. StopTime and Tolerance are undefined when nil.
type Experiment struct {
	StartTime float64
	StopTime  *float64
	Tolerance *float64
}

// Slave is the contract model implementations fulfil. Calls arrive in
// the co-simulation order enforced by Instance; implementations are
// never called concurrently and need no internal locking.
type Slave interface {
	SetupExperiment(exp Experiment) error
	EnterInitializationMode() error
	ExitInitializationMode() error

	// DoStep advances the model from communication point t by h.
	DoStep(t, h float64) error

	GetReal(vrs []modeldesc.ValueReference) ([]float64, error)
	SetReal(vrs []modeldesc.ValueReference, values []float64) error
	GetInteger(vrs []modeldesc.ValueReference) ([]int32, error)
	SetInteger(vrs []modeldesc.ValueReference, values []int32) error
	GetBoolean(vrs []modeldesc.ValueReference) ([]bool, error)
	SetBoolean(vrs []modeldesc.ValueReference, values []bool) error

	Terminate() error
	Reset() error
}

// StateSnapshotter is the optional snapshot capability. Instance
// detects it by assertion; models that also declare
// canGetAndSetFMUstate in their description become restorable.
type StateSnapshotter interface {
	SaveState() ([]byte, error)
	RestoreState(data []byte) error
}

// Snapshot is a captured instance state.
type Snapshot struct {
	Time float64
	Data []byte
}
