package slave

import (
	"fmt"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
)

// VarTable implements the typed get/set half of the Slave contract by
// binding value references to fields of the model struct. Models embed
// one, bind their fields at construction, and only implement dynamics.
// No locking: Instance serializes all slave calls.
type VarTable struct {
	reals map[modeldesc.ValueReference]*float64
	ints  map[modeldesc.ValueReference]*int32
	bools map[modeldesc.ValueReference]*bool
}

func NewVarTable() *VarTable {
	return &VarTable{
		reals: make(map[modeldesc.ValueReference]*float64),
		ints:  make(map[modeldesc.ValueReference]*int32),
		bools: make(map[modeldesc.ValueReference]*bool),
	}
}

// BindReal maps vr onto a float64 field.
func (vt *VarTable) BindReal(vr modeldesc.ValueReference, field *float64) *VarTable {
	vt.reals[vr] = field
	return vt
}

// BindInteger maps vr onto an int32 field.
func (vt *VarTable) BindInteger(vr modeldesc.ValueReference, field *int32) *VarTable {
	vt.ints[vr] = field
	return vt
}

// BindBoolean maps vr onto a bool field.
func (vt *VarTable) BindBoolean(vr modeldesc.ValueReference, field *bool) *VarTable {
	vt.bools[vr] = field
	return vt
}

func (vt *VarTable) GetReal(vrs []modeldesc.ValueReference) ([]float64, error) {
	out := make([]float64, len(vrs))
	for i, vr := range vrs {
		field, ok := vt.reals[vr]
		if !ok {
			return nil, fmt.Errorf("real vr=%d: %w", vr, ErrUnknownVariable)
		}
		out[i] = *field
	}
	return out, nil
}

func (vt *VarTable) SetReal(vrs []modeldesc.ValueReference, values []float64) error {
	if len(vrs) != len(values) {
		return ErrSizeMismatch
	}
	for i, vr := range vrs {
		field, ok := vt.reals[vr]
		if !ok {
			return fmt.Errorf("real vr=%d: %w", vr, ErrUnknownVariable)
		}
		*field = values[i]
	}
	return nil
}

func (vt *VarTable) GetInteger(vrs []modeldesc.ValueReference) ([]int32, error) {
	out := make([]int32, len(vrs))
	for i, vr := range vrs {
		field, ok := vt.ints[vr]
		if !ok {
			return nil, fmt.Errorf("integer vr=%d: %w", vr, ErrUnknownVariable)
		}
		out[i] = *field
	}
	return out, nil
}

func (vt *VarTable) SetInteger(vrs []modeldesc.ValueReference, values []int32) error {
	if len(vrs) != len(values) {
		return ErrSizeMismatch
	}
	for i, vr := range vrs {
		field, ok := vt.ints[vr]
		if !ok {
			return fmt.Errorf("integer vr=%d: %w", vr, ErrUnknownVariable)
		}
		*field = values[i]
	}
	return nil
}

func (vt *VarTable) GetBoolean(vrs []modeldesc.ValueReference) ([]bool, error) {
	out := make([]bool, len(vrs))
	for i, vr := range vrs {
		field, ok := vt.bools[vr]
		if !ok {
			return nil, fmt.Errorf("boolean vr=%d: %w", vr, ErrUnknownVariable)
		}
		out[i] = *field
	}
	return out, nil
}

func (vt *VarTable) SetBoolean(vrs []modeldesc.ValueReference, values []bool) error {
	if len(vrs) != len(values) {
		return ErrSizeMismatch
	}
	for i, vr := range vrs {
		field, ok := vt.bools[vr]
		if !ok {
			return fmt.Errorf("boolean vr=%d: %w", vr, ErrUnknownVariable)
		}
		*field = values[i]
	}
	return nil
}
