package slave

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
)

// testModel integrates x' = u and exposes a handful of variables
// covering every causality the instance layer distinguishes.
type testModel struct {
	*VarTable

	x    float64 // vr 1, output
	p    float64 // vr 2, fixed parameter
	k    float64 // vr 3, tunable parameter
	u    float64 // vr 4, input
	n    int32   // vr 5, fixed integer parameter
	flag bool    // vr 6, boolean local

	failDoStep     bool
	terminateCalls int
	resetCalls     int
}

func newTestModel() *testModel {
	m := &testModel{VarTable: NewVarTable(), p: 1, k: 1}
	m.BindReal(1, &m.x).BindReal(2, &m.p).BindReal(3, &m.k).BindReal(4, &m.u)
	m.BindInteger(5, &m.n)
	m.BindBoolean(6, &m.flag)
	return m
}

func (m *testModel) SetupExperiment(Experiment) error { return nil }
func (m *testModel) EnterInitializationMode() error   { return nil }
func (m *testModel) ExitInitializationMode() error    { return nil }

func (m *testModel) DoStep(t, h float64) error {
	if m.failDoStep {
		return errors.New("step exploded")
	}
	m.x += m.u * h * m.k
	return nil
}

func (m *testModel) Terminate() error { m.terminateCalls++; return nil }

func (m *testModel) Reset() error {
	m.resetCalls++
	m.x, m.u, m.p, m.k = 0, 0, 1, 1
	m.failDoStep = false
	return nil
}

func (m *testModel) SaveState() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(m.x))
	return buf, nil
}

func (m *testModel) RestoreState(data []byte) error {
	if len(data) != 8 {
		return errors.New("bad snapshot size")
	}
	m.x = math.Float64frombits(binary.LittleEndian.Uint64(data))
	return nil
}

type testDriver struct {
	desc *modeldesc.Description
}

func (d testDriver) Create() Slave { return newTestModel() }

func (d testDriver) Description() *modeldesc.Description { return d.desc }

func realVar(name string, vr modeldesc.ValueReference, c modeldesc.Causality, v modeldesc.Variability, start float64) modeldesc.ScalarVariable {
	return modeldesc.ScalarVariable{
		Name: name, ValueReference: vr, Causality: c, Variability: v,
		Real: &modeldesc.RealType{Start: &start},
	}
}

func testDescription(identifier string, snapshots bool) *modeldesc.Description {
	desc := &modeldesc.Description{
		FMIVersion: "2.0",
		ModelName:  identifier,
		GUID:       "{test-" + identifier + "}",
		CoSimulation: &modeldesc.CoSimulation{
			ModelIdentifier:      identifier,
			CanGetAndSetFMUstate: snapshots,
			CanSerializeFMUstate: snapshots,
		},
		LogCategories: &modeldesc.LogCategories{Categories: []modeldesc.LogCategory{
			{Name: "logEvents"}, {Name: "logStatusError"},
		}},
		ModelVariables: modeldesc.ModelVariables{Variables: []modeldesc.ScalarVariable{
			{Name: "time", ValueReference: 0, Causality: modeldesc.CausalityIndependent,
				Variability: modeldesc.VariabilityContinuous, Real: &modeldesc.RealType{}},
			realVar("x", 1, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, 0),
			realVar("p", 2, modeldesc.CausalityParameter, modeldesc.VariabilityFixed, 1),
			realVar("k", 3, modeldesc.CausalityParameter, modeldesc.VariabilityTunable, 1),
			realVar("u", 4, modeldesc.CausalityInput, modeldesc.VariabilityContinuous, 0),
			{Name: "n", ValueReference: 5, Causality: modeldesc.CausalityParameter,
				Variability: modeldesc.VariabilityFixed, Integer: &modeldesc.IntegerType{}},
			{Name: "flag", ValueReference: 6, Causality: modeldesc.CausalityLocal,
				Variability: modeldesc.VariabilityDiscrete, Boolean: &modeldesc.BooleanType{}},
		}},
	}
	if err := desc.Validate(); err != nil {
		panic(err)
	}
	return desc
}

func init() {
	Register("TestModel", testDriver{desc: testDescription("TestModel", true)})
	Register("NoSnapModel", testDriver{desc: testDescription("NoSnapModel", false)})
}

func mustInstance(t *testing.T, identifier string) *Instance {
	t.Helper()
	lib, err := Open(identifier, KindCoSimulation)
	require.NoError(t, err)
	inst, err := lib.Instantiate(WithLogger(log.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })
	return inst
}

// initialize drives an instance to the stepping state.
func initialize(t *testing.T, inst *Instance) {
	t.Helper()
	require.NoError(t, inst.SetupExperiment(Experiment{StartTime: 0}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.ExitInitializationMode())
}

func TestOpenErrors(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		_, err := Open("NoSuchModel", KindCoSimulation)
		require.ErrorIs(t, err, ErrModelNotRegistered)
	})

	t.Run("missing interface", func(t *testing.T) {
		_, err := Open("TestModel", KindModelExchange)
		require.ErrorIs(t, err, ErrWrongInterface)
	})
}

func TestInstanceNaming(t *testing.T) {
	lib, err := Open("TestModel", KindCoSimulation)
	require.NoError(t, err)

	a, err := lib.Instantiate(WithLogger(log.Nop()))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	b, err := lib.Instantiate(WithLogger(log.Nop()))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.Equal(t, "TestModel_0", a.Name())
	require.Equal(t, "TestModel_1", b.Name())
	require.Equal(t, "TestModel", a.ModelIdentifier())

	named, err := lib.Instantiate(WithName("custom"), WithLogger(log.Nop()))
	require.NoError(t, err)
	defer func() { _ = named.Close() }()
	require.Equal(t, "custom", named.Name())
}

func TestLifecycle(t *testing.T) {
	inst := mustInstance(t, "TestModel")
	require.Equal(t, StateInstantiated, inst.State())

	stop := 4.0
	require.NoError(t, inst.SetupExperiment(Experiment{StartTime: 0, StopTime: &stop}))
	require.NoError(t, inst.SetReals(map[string]float64{"p": 2.5}))
	require.NoError(t, inst.EnterInitializationMode())
	require.Equal(t, StateInitialization, inst.State())

	vals, err := inst.Reals("p")
	require.NoError(t, err)
	require.Equal(t, 2.5, vals["p"])

	require.NoError(t, inst.ExitInitializationMode())
	require.Equal(t, StateStepping, inst.State())

	require.NoError(t, inst.SetReals(map[string]float64{"u": 2}))
	for step := 0; step < 10; step++ {
		require.NoError(t, inst.DoStep(float64(step)*0.1, 0.1, true))
	}
	require.InDelta(t, 1.0, inst.Time(), 1e-9)

	vals, err = inst.Reals("x")
	require.NoError(t, err)
	require.InDelta(t, 2.0, vals["x"], 1e-9)

	require.NoError(t, inst.Terminate())
	require.Equal(t, StateTerminated, inst.State())

	// Values stay readable after terminate.
	_, err = inst.Reals("x")
	require.NoError(t, err)

	require.NoError(t, inst.Close())
	require.Equal(t, StateClosed, inst.State())
	require.NoError(t, inst.Close())
}

func TestCallingSequenceViolations(t *testing.T) {
	t.Run("enter without setup", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.ErrorIs(t, inst.EnterInitializationMode(), ErrSetupRequired)
	})

	t.Run("step before initialization", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.ErrorIs(t, inst.DoStep(0, 0.1, true), ErrInvalidState)
	})

	t.Run("exit without enter", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.SetupExperiment(Experiment{}))
		require.ErrorIs(t, inst.ExitInitializationMode(), ErrInvalidState)
	})

	t.Run("setup twice", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.SetupExperiment(Experiment{}))
		require.NoError(t, inst.EnterInitializationMode())
		require.ErrorIs(t, inst.SetupExperiment(Experiment{}), ErrInvalidState)
	})

	t.Run("bad step size", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)
		require.ErrorIs(t, inst.DoStep(0, 0, true), ErrBadStepSize)
		require.ErrorIs(t, inst.DoStep(0, -0.1, true), ErrBadStepSize)
	})

	t.Run("wrong communication point", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)
		require.NoError(t, inst.DoStep(0, 0.5, true))
		require.ErrorIs(t, inst.DoStep(0.25, 0.5, true), ErrBadCommunicationPoint)
		require.NoError(t, inst.DoStep(0.5, 0.5, true))
	})

	t.Run("operations after close", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.Close())
		require.ErrorIs(t, inst.SetupExperiment(Experiment{}), ErrInstanceClosed)
		_, err := inst.Reals("x")
		require.ErrorIs(t, err, ErrInstanceClosed)
		require.ErrorIs(t, inst.Reset(), ErrInstanceClosed)
	})
}

func TestVariableAccess(t *testing.T) {
	t.Run("unknown name", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		_, err := inst.Reals("missing")
		require.ErrorIs(t, err, ErrUnknownVariable)
	})

	t.Run("wrong type", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		_, err := inst.Integers("x")
		require.ErrorIs(t, err, ErrWrongVariableType)
		require.ErrorIs(t, inst.SetReals(map[string]float64{"n": 1}), ErrWrongVariableType)
	})

	t.Run("fixed parameter frozen after initialization", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)
		require.ErrorIs(t, inst.SetReals(map[string]float64{"p": 9}), ErrVariableNotSettable)
	})

	t.Run("tunable parameter stays settable", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)
		require.NoError(t, inst.SetReals(map[string]float64{"k": 3}))
	})

	t.Run("independent never settable", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.ErrorIs(t, inst.SetReals(map[string]float64{"time": 1}), ErrVariableNotSettable)
	})

	t.Run("output settable only before stepping", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.SetReals(map[string]float64{"x": 5}))
		initialize(t, inst)
		require.ErrorIs(t, inst.SetReals(map[string]float64{"x": 6}), ErrVariableNotSettable)
	})

	t.Run("integers and booleans", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.SetIntegers(map[string]int32{"n": 7}))
		require.NoError(t, inst.SetBooleans(map[string]bool{"flag": true}))

		ints, err := inst.Integers("n")
		require.NoError(t, err)
		require.Equal(t, int32(7), ints["n"])

		bools, err := inst.Booleans("flag")
		require.NoError(t, err)
		require.True(t, bools["flag"])
	})

	t.Run("by value reference", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		require.NoError(t, inst.SetRealsByVR([]modeldesc.ValueReference{4}, []float64{1.5}))

		vals, err := inst.RealsByVR([]modeldesc.ValueReference{4, 2})
		require.NoError(t, err)
		require.Equal(t, []float64{1.5, 1}, vals)

		_, err = inst.RealsByVR([]modeldesc.ValueReference{99})
		require.ErrorIs(t, err, ErrUnknownVariable)
		require.ErrorIs(t,
			inst.SetRealsByVR([]modeldesc.ValueReference{4}, []float64{1, 2}),
			ErrSizeMismatch)

		ints, err := inst.IntegersByVR([]modeldesc.ValueReference{5})
		require.NoError(t, err)
		require.Equal(t, []int32{0}, ints)
		require.NoError(t, inst.SetIntegersByVR([]modeldesc.ValueReference{5}, []int32{3}))
		require.NoError(t, inst.SetBooleansByVR([]modeldesc.ValueReference{6}, []bool{true}))
		bools, err := inst.BooleansByVR([]modeldesc.ValueReference{6})
		require.NoError(t, err)
		require.Equal(t, []bool{true}, bools)
	})
}

func TestSnapshots(t *testing.T) {
	t.Run("save and restore", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)
		require.NoError(t, inst.SetReals(map[string]float64{"u": 1}))

		require.NoError(t, inst.DoStep(0, 1, false))
		snap, err := inst.SaveState()
		require.NoError(t, err)
		require.InDelta(t, 1.0, snap.Time, 1e-9)

		require.NoError(t, inst.DoStep(1, 1, false))
		vals, _ := inst.Reals("x")
		require.InDelta(t, 2.0, vals["x"], 1e-9)

		require.NoError(t, inst.RestoreState(snap))
		require.InDelta(t, 1.0, inst.Time(), 1e-9)
		vals, _ = inst.Reals("x")
		require.InDelta(t, 1.0, vals["x"], 1e-9)

		// The run continues from the restored point.
		require.NoError(t, inst.DoStep(1, 1, false))
	})

	t.Run("no-rollback promise", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		initialize(t, inst)

		early, err := inst.SaveState()
		require.NoError(t, err)

		require.NoError(t, inst.DoStep(0, 1, false))
		require.NoError(t, inst.DoStep(1, 1, true))

		require.ErrorIs(t, inst.RestoreState(early), ErrSnapshotInvalidated)

		late, err := inst.SaveState()
		require.NoError(t, err)
		require.NoError(t, inst.RestoreState(late))
	})

	t.Run("unsupported model", func(t *testing.T) {
		inst := mustInstance(t, "NoSnapModel")
		initialize(t, inst)
		_, err := inst.SaveState()
		require.ErrorIs(t, err, ErrStateNotSupported)
		require.ErrorIs(t, inst.RestoreState(Snapshot{}), ErrStateNotSupported)
	})

	t.Run("before initialization", func(t *testing.T) {
		inst := mustInstance(t, "TestModel")
		_, err := inst.SaveState()
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestSlaveFailureEntersErrorState(t *testing.T) {
	lib, err := Open("TestModel", KindCoSimulation)
	require.NoError(t, err)
	inst, err := lib.Instantiate(WithLogger(log.Nop()))
	require.NoError(t, err)
	defer func() { _ = inst.Close() }()
	initialize(t, inst)

	inst.slave.(*testModel).failDoStep = true
	require.Error(t, inst.DoStep(0, 0.1, true))
	require.Equal(t, StateError, inst.State())

	// Stuck until reset or terminate.
	require.ErrorIs(t, inst.DoStep(0.1, 0.1, true), ErrInvalidState)

	require.NoError(t, inst.Reset())
	require.Equal(t, StateInstantiated, inst.State())
	require.Zero(t, inst.Time())

	initialize(t, inst)
	require.NoError(t, inst.DoStep(0, 0.1, true))
}

func TestTerminateFromErrorState(t *testing.T) {
	lib, err := Open("TestModel", KindCoSimulation)
	require.NoError(t, err)
	inst, err := lib.Instantiate(WithLogger(log.Nop()))
	require.NoError(t, err)
	defer func() { _ = inst.Close() }()
	initialize(t, inst)

	inst.slave.(*testModel).failDoStep = true
	require.Error(t, inst.DoStep(0, 0.1, true))
	require.NoError(t, inst.Terminate())
	require.Equal(t, StateTerminated, inst.State())
}

func TestSetDebugLogging(t *testing.T) {
	inst := mustInstance(t, "TestModel")

	require.NoError(t, inst.SetDebugLogging(true, []string{"logEvents", "logStatusError"}))
	require.Equal(t, []string{"logEvents", "logStatusError"}, inst.LogCategories())

	require.ErrorIs(t, inst.SetDebugLogging(true, []string{"logEverything"}), ErrUnknownLogCategory)

	require.NoError(t, inst.SetDebugLogging(false, nil))
	require.Empty(t, inst.LogCategories())
}

func TestDriverRegistry(t *testing.T) {
	models := Models()
	require.Contains(t, models, "TestModel")
	require.Contains(t, models, "NoSnapModel")

	desc, err := Describe("TestModel")
	require.NoError(t, err)
	require.Equal(t, "TestModel", desc.CoSimulation.ModelIdentifier)

	_, err = Describe("Nope")
	require.ErrorIs(t, err, ErrModelNotRegistered)

	require.Panics(t, func() { Register("TestModel", testDriver{}) })
	require.Panics(t, func() { Register("NilDriver", nil) })
}

func TestVarTable(t *testing.T) {
	var x float64
	var n int32
	var b bool
	vt := NewVarTable().BindReal(1, &x)
	vt.BindInteger(2, &n)
	vt.BindBoolean(3, &b)

	require.NoError(t, vt.SetReal([]modeldesc.ValueReference{1}, []float64{3.5}))
	require.Equal(t, 3.5, x)

	vals, err := vt.GetReal([]modeldesc.ValueReference{1})
	require.NoError(t, err)
	require.Equal(t, []float64{3.5}, vals)

	_, err = vt.GetReal([]modeldesc.ValueReference{9})
	require.ErrorIs(t, err, ErrUnknownVariable)
	require.ErrorIs(t, vt.SetReal([]modeldesc.ValueReference{1}, nil), ErrSizeMismatch)

	require.NoError(t, vt.SetInteger([]modeldesc.ValueReference{2}, []int32{-4}))
	require.Equal(t, int32(-4), n)
	require.NoError(t, vt.SetBoolean([]modeldesc.ValueReference{3}, []bool{true}))
	require.True(t, b)
}
