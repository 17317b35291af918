package slave

import (
	"fmt"
	"sort"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
)

// requireOpen rejects operations on closed instances. Callers hold mu.
func (i *Instance) requireOpen(op string) error {
	if i.State() == StateClosed {
		return fmt.Errorf("%s: %w", op, ErrInstanceClosed)
	}
	return nil
}

func (i *Instance) resolve(name string, kind modeldesc.Kind) (*modeldesc.ScalarVariable, error) {
	sv, ok := i.byName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownVariable)
	}
	if sv.Kind() != kind {
		return nil, fmt.Errorf("%q is %s, not %s: %w", name, sv.TypeName(), kind, ErrWrongVariableType)
	}
	return sv, nil
}

func (i *Instance) resolveVR(vr modeldesc.ValueReference, kind modeldesc.Kind) (*modeldesc.ScalarVariable, error) {
	sv, ok := i.byVR[kind][vr]
	if !ok {
		return nil, fmt.Errorf("%s vr=%d: %w", kind, vr, ErrUnknownVariable)
	}
	return sv, nil
}

// settable applies the causality and variability rules for the current
// state. Callers hold mu and have already gated the overall state.
func (i *Instance) settable(sv *modeldesc.ScalarVariable) error {
	st := i.State()
	switch sv.Causality {
	case modeldesc.CausalityIndependent, modeldesc.CausalityCalculatedParameter:
		return fmt.Errorf("%q (%s): %w", sv.Name, sv.Causality, ErrVariableNotSettable)
	case modeldesc.CausalityParameter:
		if sv.Variability == modeldesc.VariabilityTunable {
			return nil
		}
		// Fixed parameters freeze once initialization is done.
		if st == StateInstantiated || st == StateInitialization {
			return nil
		}
		return fmt.Errorf("fixed parameter %q after initialization: %w", sv.Name, ErrVariableNotSettable)
	case modeldesc.CausalityInput:
		return nil
	default:
		// Outputs and locals only accept start-value overrides.
		if st == StateInstantiated || st == StateInitialization {
			return nil
		}
		return fmt.Errorf("%q (%s) while stepping: %w", sv.Name, sv.Causality, ErrVariableNotSettable)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reals reads Real variables by name.
func (i *Instance) Reals(names ...string) (map[string]float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetReal"); err != nil {
		return nil, err
	}
	vrs := make([]modeldesc.ValueReference, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindReal)
		if err != nil {
			return nil, err
		}
		vrs[idx] = sv.ValueReference
	}
	vals, err := i.slave.GetReal(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetReal: %w", err)
	}
	if len(vals) != len(vrs) {
		return nil, fmt.Errorf("GetReal: %w", ErrSizeMismatch)
	}
	out := make(map[string]float64, len(names))
	for idx, name := range names {
		out[name] = vals[idx]
	}
	return out, nil
}

// SetReals writes Real variables by name, honoring causality rules.
func (i *Instance) SetReals(values map[string]float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetReal", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	names := sortedKeys(values)
	vrs := make([]modeldesc.ValueReference, len(names))
	vals := make([]float64, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindReal)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
		vrs[idx] = sv.ValueReference
		vals[idx] = values[name]
	}
	if err := i.slave.SetReal(vrs, vals); err != nil {
		return fmt.Errorf("SetReal: %w", err)
	}
	return nil
}

// Integers reads Integer variables by name.
func (i *Instance) Integers(names ...string) (map[string]int32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetInteger"); err != nil {
		return nil, err
	}
	vrs := make([]modeldesc.ValueReference, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindInteger)
		if err != nil {
			return nil, err
		}
		vrs[idx] = sv.ValueReference
	}
	vals, err := i.slave.GetInteger(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetInteger: %w", err)
	}
	if len(vals) != len(vrs) {
		return nil, fmt.Errorf("GetInteger: %w", ErrSizeMismatch)
	}
	out := make(map[string]int32, len(names))
	for idx, name := range names {
		out[name] = vals[idx]
	}
	return out, nil
}

// SetIntegers writes Integer variables by name.
func (i *Instance) SetIntegers(values map[string]int32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetInteger", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	names := sortedKeys(values)
	vrs := make([]modeldesc.ValueReference, len(names))
	vals := make([]int32, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindInteger)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
		vrs[idx] = sv.ValueReference
		vals[idx] = values[name]
	}
	if err := i.slave.SetInteger(vrs, vals); err != nil {
		return fmt.Errorf("SetInteger: %w", err)
	}
	return nil
}

// Booleans reads Boolean variables by name.
func (i *Instance) Booleans(names ...string) (map[string]bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetBoolean"); err != nil {
		return nil, err
	}
	vrs := make([]modeldesc.ValueReference, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindBoolean)
		if err != nil {
			return nil, err
		}
		vrs[idx] = sv.ValueReference
	}
	vals, err := i.slave.GetBoolean(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetBoolean: %w", err)
	}
	if len(vals) != len(vrs) {
		return nil, fmt.Errorf("GetBoolean: %w", ErrSizeMismatch)
	}
	out := make(map[string]bool, len(names))
	for idx, name := range names {
		out[name] = vals[idx]
	}
	return out, nil
}

// SetBooleans writes Boolean variables by name.
func (i *Instance) SetBooleans(values map[string]bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetBoolean", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	names := sortedKeys(values)
	vrs := make([]modeldesc.ValueReference, len(names))
	vals := make([]bool, len(names))
	for idx, name := range names {
		sv, err := i.resolve(name, modeldesc.KindBoolean)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
		vrs[idx] = sv.ValueReference
		vals[idx] = values[name]
	}
	if err := i.slave.SetBoolean(vrs, vals); err != nil {
		return fmt.Errorf("SetBoolean: %w", err)
	}
	return nil
}

// RealsByVR reads Real variables by raw value reference.
func (i *Instance) RealsByVR(vrs []modeldesc.ValueReference) ([]float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetReal"); err != nil {
		return nil, err
	}
	for _, vr := range vrs {
		if _, err := i.resolveVR(vr, modeldesc.KindReal); err != nil {
			return nil, err
		}
	}
	vals, err := i.slave.GetReal(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetReal: %w", err)
	}
	return vals, nil
}

// SetRealsByVR writes Real variables by raw value reference.
func (i *Instance) SetRealsByVR(vrs []modeldesc.ValueReference, values []float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetReal", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetReal: %w", ErrSizeMismatch)
	}
	for _, vr := range vrs {
		sv, err := i.resolveVR(vr, modeldesc.KindReal)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
	}
	if err := i.slave.SetReal(vrs, values); err != nil {
		return fmt.Errorf("SetReal: %w", err)
	}
	return nil
}

// IntegersByVR reads Integer variables by raw value reference.
func (i *Instance) IntegersByVR(vrs []modeldesc.ValueReference) ([]int32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetInteger"); err != nil {
		return nil, err
	}
	for _, vr := range vrs {
		if _, err := i.resolveVR(vr, modeldesc.KindInteger); err != nil {
			return nil, err
		}
	}
	vals, err := i.slave.GetInteger(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetInteger: %w", err)
	}
	return vals, nil
}

// SetIntegersByVR writes Integer variables by raw value reference.
func (i *Instance) SetIntegersByVR(vrs []modeldesc.ValueReference, values []int32) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetInteger", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetInteger: %w", ErrSizeMismatch)
	}
	for _, vr := range vrs {
		sv, err := i.resolveVR(vr, modeldesc.KindInteger)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
	}
	if err := i.slave.SetInteger(vrs, values); err != nil {
		return fmt.Errorf("SetInteger: %w", err)
	}
	return nil
}

// BooleansByVR reads Boolean variables by raw value reference.
func (i *Instance) BooleansByVR(vrs []modeldesc.ValueReference) ([]bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.requireOpen("GetBoolean"); err != nil {
		return nil, err
	}
	for _, vr := range vrs {
		if _, err := i.resolveVR(vr, modeldesc.KindBoolean); err != nil {
			return nil, err
		}
	}
	vals, err := i.slave.GetBoolean(vrs)
	if err != nil {
		return nil, fmt.Errorf("GetBoolean: %w", err)
	}
	return vals, nil
}

// SetBooleansByVR writes Boolean variables by raw value reference.
func (i *Instance) SetBooleansByVR(vrs []modeldesc.ValueReference, values []bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetBoolean", StateInstantiated, StateInitialization, StateStepping); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetBoolean: %w", ErrSizeMismatch)
	}
	for _, vr := range vrs {
		sv, err := i.resolveVR(vr, modeldesc.KindBoolean)
		if err != nil {
			return err
		}
		if err := i.settable(sv); err != nil {
			return err
		}
	}
	if err := i.slave.SetBoolean(vrs, values); err != nil {
		return fmt.Errorf("SetBoolean: %w", err)
	}
	return nil
}
