// Package bouncingball implements the classic vertically bouncing
// ball: free fall under gravity with a restitution impact when the
// ball hits the floor.
package bouncingball

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/slave"
)

const (
	// substep is the internal integration step.
	substep = 1e-3

	// restVelocity is the rebound speed below which the ball is
	// considered at rest and its velocity is killed.
	restVelocity = 0.1
)

type model struct {
	*slave.VarTable

	hStart float64
	e      float64
	g      float64
	h      float64
	v      float64
	derH   float64
	derV   float64
}

func newModel() *model {
	m := &model{VarTable: slave.NewVarTable()}
	m.BindReal(vrHStart, &m.hStart).
		BindReal(vrRestitution, &m.e).
		BindReal(vrGravity, &m.g).
		BindReal(vrHeight, &m.h).
		BindReal(vrVelocity, &m.v).
		BindReal(vrDerHeight, &m.derH).
		BindReal(vrDerVelocity, &m.derV)
	m.applyStarts()
	return m
}

func (m *model) applyStarts() {
	m.hStart = 10
	m.e = 0.7
	m.g = 9.81
	m.h = 0
	m.v = 0
	m.derH = 0
	m.derV = 0
}

func (m *model) SetupExperiment(slave.Experiment) error { return nil }

func (m *model) EnterInitializationMode() error { return nil }

// ExitInitializationMode latches the start height and the initial
// derivatives.
func (m *model) ExitInitializationMode() error {
	if m.hStart < 0 {
		return errors.Errorf("start height must be non-negative, got %v", m.hStart)
	}
	if m.e < 0 || m.e > 1 {
		return errors.Errorf("restitution must be in [0, 1], got %v", m.e)
	}
	m.h = m.hStart
	m.v = 0
	m.derH = m.v
	m.derV = -m.g
	return nil
}

// DoStep integrates free fall with semi-implicit Euler and reflects
// the velocity on floor contact. A rebound below restVelocity pins the
// ball to the floor.
func (m *model) DoStep(t, h float64) error {
	n := int(math.Ceil(h / substep))
	if n < 1 {
		n = 1
	}
	dt := h / float64(n)

	for i := 0; i < n; i++ {
		m.v -= m.g * dt
		m.h += m.v * dt
		if m.h <= 0 && m.v < 0 {
			m.h = 0
			m.v = -m.e * m.v
			if m.v < restVelocity {
				m.v = 0
			}
		}
	}
	m.derH = m.v
	m.derV = -m.g
	return nil
}

func (m *model) Terminate() error { return nil }

func (m *model) Reset() error {
	m.applyStarts()
	return nil
}

// state is the snapshot layout: fixed size, little endian.
type state struct {
	HStart, E, G float64
	H, V         float64
	DerH, DerV   float64
}

func (m *model) SaveState() ([]byte, error) {
	snap := state{
		HStart: m.hStart, E: m.e, G: m.g,
		H: m.h, V: m.v,
		DerH: m.derH, DerV: m.derV,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &snap); err != nil {
		return nil, errors.Wrap(err, "encode bouncing ball state")
	}
	return buf.Bytes(), nil
}

func (m *model) RestoreState(data []byte) error {
	var snap state
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &snap); err != nil {
		return errors.Wrap(err, "decode bouncing ball state")
	}
	m.hStart, m.e, m.g = snap.HStart, snap.E, snap.G
	m.h, m.v = snap.H, snap.V
	m.derH, m.derV = snap.DerH, snap.DerV
	return nil
}
