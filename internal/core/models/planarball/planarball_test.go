package planarball

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmukit/fmukit/internal/core/forcing"
	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/physics"
	"github.com/fmukit/fmukit/internal/core/slave"
)

func newTestInstance(t *testing.T) *slave.Instance {
	t.Helper()
	lib, err := slave.Open(Identifier, slave.KindCoSimulation)
	require.NoError(t, err)
	inst, err := lib.Instantiate(slave.WithLogger(log.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })
	return inst
}

func initialize(t *testing.T, inst *slave.Instance) {
	t.Helper()
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.ExitInitializationMode())
}

func TestDescriptionValidates(t *testing.T) {
	desc := Description()
	require.NoError(t, desc.Validate())

	var outputs []string
	for _, sv := range desc.Outputs() {
		outputs = append(outputs, sv.Name)
	}
	require.Equal(t, []string{"position[1]", "position[2]", "velocity[1]", "velocity[2]"}, outputs)
}

func TestAllDeclaredVariablesBound(t *testing.T) {
	inst := newTestInstance(t)
	for _, sv := range Description().Variables() {
		switch sv.Kind() {
		case modeldesc.KindReal:
			_, err := inst.Reals(sv.Name)
			require.NoError(t, err, sv.Name)
		case modeldesc.KindInteger:
			_, err := inst.Integers(sv.Name)
			require.NoError(t, err, sv.Name)
		}
	}
}

// TestForcedTrajectory drives the ball with f(t) = 10·cos(π·t) on both
// axes. The closed form is x(t) = 10/π²·(1-cos π·t), v(t) = 10/π·sin
// π·t; after two full periods both return to zero.
func TestForcedTrajectory(t *testing.T) {
	const id forcing.InstanceID = 2
	forcing.Register(id, func(t float64) physics.Vec2 {
		f := 10 * math.Cos(math.Pi*t)
		return physics.Vec2{X: f, Y: f}
	})
	t.Cleanup(func() { forcing.Unregister(id) })

	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{StartTime: 0}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.SetIntegers(map[string]int32{"instanceID": int32(id)}))
	require.NoError(t, inst.ExitInitializationMode())

	const step = 0.1
	for k := 0; k < 5; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), step, true))
	}
	out, err := inst.Reals("position[1]", "velocity[1]")
	require.NoError(t, err)
	require.InDelta(t, 10/(math.Pi*math.Pi), out["position[1]"], 0.02)
	require.InDelta(t, 10/math.Pi, out["velocity[1]"], 0.02)

	for k := 5; k < 40; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), step, true))
	}
	require.InDelta(t, 4.0, inst.Time(), 1e-9)

	out, err = inst.Reals("position[1]", "position[2]", "velocity[1]", "velocity[2]")
	require.NoError(t, err)
	require.InDelta(t, 0, out["position[1]"], 0.05)
	require.InDelta(t, 0, out["velocity[1]"], 0.02)
	require.Equal(t, out["position[1]"], out["position[2]"])
	require.Equal(t, out["velocity[1]"], out["velocity[2]"])
}

func TestUnboundInstanceCoasts(t *testing.T) {
	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.SetIntegers(map[string]int32{"instanceID": 7}))
	require.NoError(t, inst.SetReals(map[string]float64{"velocity[1]": 1.5}))
	require.NoError(t, inst.ExitInitializationMode())

	for k := 0; k < 10; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), 0.1, true))
	}

	out, err := inst.Reals("position[1]", "position[2]", "velocity[1]", "force[1]", "force[2]")
	require.NoError(t, err)
	require.InDelta(t, 1.5, out["position[1]"], 1e-9)
	require.Zero(t, out["position[2]"])
	require.InDelta(t, 1.5, out["velocity[1]"], 1e-12)
	require.Zero(t, out["force[1]"])
	require.Zero(t, out["force[2]"])
}

func TestMassScalesAcceleration(t *testing.T) {
	const id forcing.InstanceID = 11
	forcing.Register(id, forcing.Constant(physics.Vec2{X: 2}))
	t.Cleanup(func() { forcing.Unregister(id) })

	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.SetReals(map[string]float64{"mass": 4}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.SetIntegers(map[string]int32{"instanceID": int32(id)}))
	require.NoError(t, inst.ExitInitializationMode())

	for k := 0; k < 10; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), 0.1, true))
	}

	// a = F/m = 0.5, so v = a·t and x = a·t²/2 + O(dt).
	out, err := inst.Reals("position[1]", "velocity[1]", "force[1]")
	require.NoError(t, err)
	require.InDelta(t, 0.5, out["velocity[1]"], 1e-9)
	require.InDelta(t, 0.25, out["position[1]"], 1e-3)
	require.Equal(t, 2.0, out["force[1]"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	const id forcing.InstanceID = 23
	forcing.Register(id, forcing.Constant(physics.Vec2{X: 1, Y: -1}))
	t.Cleanup(func() { forcing.Unregister(id) })

	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.SetIntegers(map[string]int32{"instanceID": int32(id)}))
	require.NoError(t, inst.ExitInitializationMode())

	for k := 0; k < 10; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), 0.1, false))
	}
	snap, err := inst.SaveState()
	require.NoError(t, err)
	require.InDelta(t, 1.0, snap.Time, 1e-9)

	for k := 0; k < 10; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), 0.1, false))
	}
	want, err := inst.Reals("position[1]", "position[2]", "velocity[1]", "velocity[2]")
	require.NoError(t, err)

	require.NoError(t, inst.RestoreState(snap))
	require.InDelta(t, 1.0, inst.Time(), 1e-9)
	for k := 0; k < 10; k++ {
		require.NoError(t, inst.DoStep(inst.Time(), 0.1, false))
	}
	got, err := inst.Reals("position[1]", "position[2]", "velocity[1]", "velocity[2]")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestInvalidMassRejected(t *testing.T) {
	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.SetReals(map[string]float64{"mass": 0}))
	require.NoError(t, inst.EnterInitializationMode())
	require.Error(t, inst.ExitInitializationMode())
	require.Equal(t, slave.StateError, inst.State())
}

func TestResetRestoresStarts(t *testing.T) {
	const id forcing.InstanceID = 31
	forcing.Register(id, forcing.Constant(physics.Vec2{X: 3}))
	t.Cleanup(func() { forcing.Unregister(id) })

	inst := newTestInstance(t)
	require.NoError(t, inst.SetupExperiment(slave.Experiment{}))
	require.NoError(t, inst.EnterInitializationMode())
	require.NoError(t, inst.SetIntegers(map[string]int32{"instanceID": int32(id)}))
	require.NoError(t, inst.ExitInitializationMode())
	require.NoError(t, inst.DoStep(0, 0.5, true))

	require.NoError(t, inst.Reset())
	require.Equal(t, slave.StateInstantiated, inst.State())

	reals, err := inst.Reals("mass", "position[1]", "velocity[1]")
	require.NoError(t, err)
	require.Equal(t, 1.0, reals["mass"])
	require.Zero(t, reals["position[1]"])
	require.Zero(t, reals["velocity[1]"])

	ints, err := inst.Integers("instanceID")
	require.NoError(t, err)
	require.Zero(t, ints["instanceID"])
}
