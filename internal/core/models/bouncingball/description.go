package bouncingball

import (
	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// Identifier is the name the model registers under.
const Identifier = "BouncingBall"

const guid = "{4d2c9a7e-6f18-4b03-b5a2-91e7c04d3f66}"

// Real value references.
const (
	vrHStart modeldesc.ValueReference = iota
	vrRestitution
	vrGravity
	vrHeight
	vrVelocity
	vrDerHeight
	vrDerVelocity
)

type driver struct{}

func (driver) Create() slave.Slave { return newModel() }

func (driver) Description() *modeldesc.Description { return Description() }

func init() {
	slave.Register(Identifier, driver{})
}

// Description builds the model description instances of this model
// report.
func Description() *modeldesc.Description {
	return &modeldesc.Description{
		FMIVersion:     "2.0",
		ModelName:      Identifier,
		GUID:           guid,
		Description:    "ball bouncing on the floor under gravity",
		GenerationTool: "fmukit",
		CoSimulation: &modeldesc.CoSimulation{
			ModelIdentifier:                        Identifier,
			CanHandleVariableCommunicationStepSize: true,
			CanGetAndSetFMUstate:                   true,
			CanSerializeFMUstate:                   true,
		},
		UnitDefinitions: &modeldesc.UnitDefinitions{Units: []modeldesc.Unit{
			{Name: "m", BaseUnit: &modeldesc.BaseUnit{M: 1}},
			{Name: "m/s", BaseUnit: &modeldesc.BaseUnit{M: 1, S: -1}},
			{Name: "m/s2", BaseUnit: &modeldesc.BaseUnit{M: 1, S: -2}},
		}},
		LogCategories: &modeldesc.LogCategories{Categories: []modeldesc.LogCategory{
			{Name: "logEvents", Description: "impact events"},
			{Name: "logStatusError", Description: "error reporting"},
		}},
		DefaultExperiment: &modeldesc.DefaultExperiment{
			StartTime: f64(0),
			StopTime:  f64(3),
			StepSize:  f64(0.01),
		},
		ModelVariables: modeldesc.ModelVariables{Variables: []modeldesc.ScalarVariable{
			parameter("h_start", vrHStart, "initial height of the ball", "m", 10),
			parameter("e", vrRestitution, "coefficient of restitution", "", 0.7),
			parameter("g", vrGravity, "gravitational acceleration", "m/s2", 9.81),
			{
				Name:           "h_m",
				ValueReference: vrHeight,
				Description:    "height of the ball",
				Causality:      modeldesc.CausalityOutput,
				Variability:    modeldesc.VariabilityContinuous,
				Initial:        modeldesc.InitialCalculated,
				Real:           &modeldesc.RealType{Unit: "m"},
			},
			{
				Name:           "v_m_s",
				ValueReference: vrVelocity,
				Description:    "velocity of the ball",
				Causality:      modeldesc.CausalityOutput,
				Variability:    modeldesc.VariabilityContinuous,
				Initial:        modeldesc.InitialCalculated,
				Real:           &modeldesc.RealType{Unit: "m/s"},
			},
			{
				Name:           "der(h)",
				ValueReference: vrDerHeight,
				Causality:      modeldesc.CausalityLocal,
				Variability:    modeldesc.VariabilityContinuous,
				Initial:        modeldesc.InitialCalculated,
				// derivative refers to the 1-based index of h_m.
				Real: &modeldesc.RealType{Unit: "m/s", Derivative: u32(4)},
			},
			{
				Name:           "der(v)",
				ValueReference: vrDerVelocity,
				Causality:      modeldesc.CausalityLocal,
				Variability:    modeldesc.VariabilityContinuous,
				Initial:        modeldesc.InitialCalculated,
				Real:           &modeldesc.RealType{Unit: "m/s2", Derivative: u32(5)},
			},
		}},
	}
}

func parameter(name string, vr modeldesc.ValueReference, desc, unit string, start float64) modeldesc.ScalarVariable {
	return modeldesc.ScalarVariable{
		Name:           name,
		ValueReference: vr,
		Description:    desc,
		Causality:      modeldesc.CausalityParameter,
		Variability:    modeldesc.VariabilityFixed,
		Initial:        modeldesc.InitialExact,
		Real:           &modeldesc.RealType{Start: f64(start), Unit: unit},
	}
}

func f64(v float64) *float64 { return &v }
func u32(v uint32) *uint32   { return &v }
