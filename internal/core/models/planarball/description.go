package planarball

import (
	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// Identifier is the name the model registers under.
const Identifier = "PlanarBall"

const guid = "{8f1b9c0a-2d4e-4c6b-9a71-5e30c2f8d914}"

// Real value references.
const (
	vrMass modeldesc.ValueReference = iota
	vrPositionX
	vrPositionY
	vrVelocityX
	vrVelocityY
	vrForceX
	vrForceY
)

// Integer value references.
const vrInstanceID modeldesc.ValueReference = 0

type driver struct{}

func (driver) Create() slave.Slave { return newModel() }

func (driver) Description() *modeldesc.Description { return Description() }

func init() {
	slave.Register(Identifier, driver{})
}

// Description builds the model description instances of this model
// report. Tooling uses it to pack the model into an archive.
func Description() *modeldesc.Description {
	return &modeldesc.Description{
		FMIVersion:     "2.0",
		ModelName:      Identifier,
		GUID:           guid,
		Description:    "point mass on a plane driven by an injected force",
		GenerationTool: "fmukit",
		CoSimulation: &modeldesc.CoSimulation{
			ModelIdentifier:                        Identifier,
			CanHandleVariableCommunicationStepSize: true,
			CanGetAndSetFMUstate:                   true,
			CanSerializeFMUstate:                   true,
		},
		LogCategories: &modeldesc.LogCategories{Categories: []modeldesc.LogCategory{
			{Name: "logEvents", Description: "substep integration events"},
			{Name: "logStatusError", Description: "error reporting"},
		}},
		DefaultExperiment: &modeldesc.DefaultExperiment{
			StartTime: f64(0),
			StopTime:  f64(4),
			StepSize:  f64(0.1),
		},
		ModelVariables: modeldesc.ModelVariables{Variables: []modeldesc.ScalarVariable{
			{
				Name:           "instanceID",
				ValueReference: vrInstanceID,
				Description:    "forcing registry id sampled by the model",
				Causality:      modeldesc.CausalityParameter,
				Variability:    modeldesc.VariabilityFixed,
				Initial:        modeldesc.InitialExact,
				Integer:        &modeldesc.IntegerType{Start: i32(0)},
			},
			{
				Name:           "mass",
				ValueReference: vrMass,
				Description:    "mass of the ball",
				Causality:      modeldesc.CausalityParameter,
				Variability:    modeldesc.VariabilityFixed,
				Initial:        modeldesc.InitialExact,
				Real:           &modeldesc.RealType{Start: f64(1), Unit: "kg"},
			},
			realOutput("position[1]", vrPositionX, "m"),
			realOutput("position[2]", vrPositionY, "m"),
			realOutput("velocity[1]", vrVelocityX, "m/s"),
			realOutput("velocity[2]", vrVelocityY, "m/s"),
			realLocal("force[1]", vrForceX, "N"),
			realLocal("force[2]", vrForceY, "N"),
		}},
	}
}

func realOutput(name string, vr modeldesc.ValueReference, unit string) modeldesc.ScalarVariable {
	return modeldesc.ScalarVariable{
		Name:           name,
		ValueReference: vr,
		Causality:      modeldesc.CausalityOutput,
		Variability:    modeldesc.VariabilityContinuous,
		Initial:        modeldesc.InitialExact,
		Real:           &modeldesc.RealType{Start: f64(0), Unit: unit},
	}
}

func realLocal(name string, vr modeldesc.ValueReference, unit string) modeldesc.ScalarVariable {
	return modeldesc.ScalarVariable{
		Name:           name,
		ValueReference: vr,
		Causality:      modeldesc.CausalityLocal,
		Variability:    modeldesc.VariabilityContinuous,
		Initial:        modeldesc.InitialCalculated,
		Real:           &modeldesc.RealType{Unit: unit},
	}
}

func f64(v float64) *float64 { return &v }
func i32(v int32) *int32     { return &v }
