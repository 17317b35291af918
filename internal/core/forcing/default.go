package forcing

import "github.com/fmukit/fmukit/internal/core/physics"

// defaultRegistry serves models that do not carry an explicit registry
// reference.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register binds h to id in the default registry.
func Register(id InstanceID, h Handler) { defaultRegistry.Register(id, h) }

// Unregister removes id's binding from the default registry.
func Unregister(id InstanceID) { defaultRegistry.Unregister(id) }

// Force returns the force for id at time t from the default registry.
func Force(id InstanceID, t float64) physics.Vec2 { return defaultRegistry.Force(id, t) }

// ForceInto writes the force for id at time t into out.
func ForceInto(id InstanceID, t float64, out *physics.Vec2) {
	defaultRegistry.ForceInto(id, t, out)
}

// Handles reports whether the default registry has a binding for id.
func Handles(id InstanceID) bool { return defaultRegistry.Handles(id) }

// Len returns the number of bindings in the default registry.
func Len() int { return defaultRegistry.Len() }

// Reset clears the default registry. Tests use this between cases.
func Reset() { defaultRegistry.Reset() }
