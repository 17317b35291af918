// Package planarball implements a point mass moving on a plane under
// an externally injected force. It is the canonical consumer of the
// forcing registry: each integration substep samples the force bound
// to the model's instanceID and applies it to the mass.
package planarball

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/forcing"
	"github.com/fmukit/fmukit/internal/core/physics"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// substep is the internal integration step. DoStep subdivides the
// communication interval into uniform substeps no larger than this.
const substep = 1e-3

type model struct {
	*slave.VarTable

	instanceID int32
	mass       float64
	pos        physics.Vec2
	vel        physics.Vec2
	force      physics.Vec2
}

func newModel() *model {
	m := &model{VarTable: slave.NewVarTable()}
	m.BindReal(vrMass, &m.mass).
		BindReal(vrPositionX, &m.pos.X).
		BindReal(vrPositionY, &m.pos.Y).
		BindReal(vrVelocityX, &m.vel.X).
		BindReal(vrVelocityY, &m.vel.Y).
		BindReal(vrForceX, &m.force.X).
		BindReal(vrForceY, &m.force.Y)
	m.BindInteger(vrInstanceID, &m.instanceID)
	m.applyStarts()
	return m
}

func (m *model) applyStarts() {
	m.instanceID = 0
	m.mass = 1
	m.pos = physics.Vec2{}
	m.vel = physics.Vec2{}
	m.force = physics.Vec2{}
}

func (m *model) SetupExperiment(slave.Experiment) error { return nil }

func (m *model) EnterInitializationMode() error { return nil }

func (m *model) ExitInitializationMode() error {
	if m.mass <= 0 {
		return errors.Errorf("mass must be positive, got %v", m.mass)
	}
	return nil
}

// DoStep advances the mass from t to t+h with semi-implicit Euler. The
// injected force is sampled at the start of every substep; an unbound
// instanceID yields the zero force and the mass coasts.
func (m *model) DoStep(t, h float64) error {
	id := forcing.InstanceID(m.instanceID)
	invMass := 1 / m.mass

	n := int(math.Ceil(h / substep))
	if n < 1 {
		n = 1
	}
	dt := h / float64(n)

	for i := 0; i < n; i++ {
		m.force = forcing.Force(id, t+float64(i)*dt)
		m.vel = m.vel.Add(m.force.Scale(dt * invMass))
		m.pos = m.pos.Add(m.vel.Scale(dt))
	}
	return nil
}

func (m *model) Terminate() error { return nil }

func (m *model) Reset() error {
	m.applyStarts()
	return nil
}

// state is the snapshot layout: fixed size, little endian.
type state struct {
	InstanceID     int32
	Mass           float64
	PosX, PosY     float64
	VelX, VelY     float64
	ForceX, ForceY float64
}

func (m *model) SaveState() ([]byte, error) {
	snap := state{
		InstanceID: m.instanceID,
		Mass:       m.mass,
		PosX:       m.pos.X, PosY: m.pos.Y,
		VelX: m.vel.X, VelY: m.vel.Y,
		ForceX: m.force.X, ForceY: m.force.Y,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &snap); err != nil {
		return nil, errors.Wrap(err, "encode planar ball state")
	}
	return buf.Bytes(), nil
}

func (m *model) RestoreState(data []byte) error {
	var snap state
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &snap); err != nil {
		return errors.Wrap(err, "decode planar ball state")
	}
	m.instanceID = snap.InstanceID
	m.mass = snap.Mass
	m.pos = physics.Vec2{X: snap.PosX, Y: snap.PosY}
	m.vel = physics.Vec2{X: snap.VelX, Y: snap.VelY}
	m.force = physics.Vec2{X: snap.ForceX, Y: snap.ForceY}
	return nil
}
