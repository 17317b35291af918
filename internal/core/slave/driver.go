package slave

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
)

// Driver creates slaves for one model. Implementations register under
// their model identifier, usually from an init func, so importing a
// model package makes it instantiable.
type Driver interface {
	// Create returns a fresh slave in its pre-setup state.
	Create() Slave
	// Description returns the model's description document. Callers
	// must not mutate it.
	Description() *modeldesc.Description
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a model available under its identifier. It panics on
// a nil driver or a duplicate identifier.
func Register(identifier string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("slave: Register driver is nil")
	}
	if _, dup := drivers[identifier]; dup {
		panic(fmt.Sprintf("slave: Register called twice for model %q", identifier))
	}
	drivers[identifier] = driver
}

// Lookup returns the driver registered under identifier.
func Lookup(identifier string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	driver, ok := drivers[identifier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotRegistered, identifier)
	}
	return driver, nil
}

// Models returns the registered identifiers, sorted.
func Models() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the description of the model registered under
// identifier.
func Describe(identifier string) (*modeldesc.Description, error) {
	driver, err := Lookup(identifier)
	if err != nil {
		return nil, err
	}
	return driver.Description(), nil
}
