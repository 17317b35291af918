// Package sim drives model instances through co-simulation
// experiments: a fixed communication grid, recorded outputs and
// optional lockstep coupling of several instances.
package sim

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
)

// Experiment describes one simulation run over a fixed communication
// grid.
type Experiment struct {
	StartTime float64  `json:"start_time" yaml:"start_time"`
	StopTime  float64  `json:"stop_time" yaml:"stop_time"`
	StepSize  float64  `json:"step_size" yaml:"step_size"`
	Tolerance *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	LoggingOn bool     `json:"logging_on,omitempty" yaml:"logging_on,omitempty"`

	// Outputs selects the variables recorded after every step. Empty
	// means every output the model declares.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Parameters are applied before initialization mode is entered.
	Parameters        map[string]float64 `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	IntegerParameters map[string]int32   `json:"integer_parameters,omitempty" yaml:"integer_parameters,omitempty"`
}

// DefaultExperiment returns the fallback run settings used when
// neither the caller nor the model description provides any.
func DefaultExperiment() Experiment {
	return Experiment{
		StartTime: 0,
		StopTime:  1,
		StepSize:  1e-2,
	}
}

// LoadExperiment reads an experiment from a YAML file and validates
// it.
func LoadExperiment(path string) (*Experiment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open experiment")
	}
	defer func() { _ = f.Close() }()

	exp := DefaultExperiment()
	if err := yaml.NewDecoder(f).Decode(&exp); err != nil {
		return nil, errors.Wrapf(err, "parse experiment %q", path)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

// Validate checks the grid is well formed.
func (e *Experiment) Validate() error {
	if e.StopTime <= e.StartTime {
		return errors.Errorf("stop time %v must be after start time %v", e.StopTime, e.StartTime)
	}
	if e.StepSize <= 0 {
		return errors.Errorf("step size must be positive, got %v", e.StepSize)
	}
	if e.StepSize > e.StopTime-e.StartTime {
		return errors.Errorf("step size %v exceeds the simulation horizon %v", e.StepSize, e.StopTime-e.StartTime)
	}
	if e.Tolerance != nil && *e.Tolerance <= 0 {
		return errors.Errorf("tolerance must be positive, got %v", *e.Tolerance)
	}
	return nil
}

// ExperimentFromDescription builds an experiment from the model's
// DefaultExperiment element, falling back to DefaultExperiment for
// attributes the model omits. The model's outputs become the recorded
// set.
func ExperimentFromDescription(desc *modeldesc.Description) Experiment {
	exp := DefaultExperiment()
	if de := desc.DefaultExperiment; de != nil {
		if de.StartTime != nil {
			exp.StartTime = *de.StartTime
		}
		if de.StopTime != nil {
			exp.StopTime = *de.StopTime
		}
		if de.StepSize != nil {
			exp.StepSize = *de.StepSize
		}
		if de.Tolerance != nil {
			tol := *de.Tolerance
			exp.Tolerance = &tol
		}
	}
	for _, sv := range desc.Outputs() {
		exp.Outputs = append(exp.Outputs, sv.Name)
	}
	return exp
}
