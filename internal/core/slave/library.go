package slave

import (
	"fmt"
	"sync/atomic"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
)

// Library is a model bound for instantiation: its description, the
// driver producing slaves, and a factory issuing unique instance
// names.
type Library struct {
	desc   *modeldesc.Description
	driver Driver
	kind   Kind
	names  nameFactory
	logger log.Log
}

// Open binds the registered model identified by identifier for the
// given simulation kind, using the driver's own description.
func Open(identifier string, kind Kind) (*Library, error) {
	driver, err := Lookup(identifier)
	if err != nil {
		return nil, err
	}
	return OpenDescription(driver.Description(), kind)
}

// OpenDescription binds a model against an externally supplied
// description, typically the one parsed from an archive. The driver is
// resolved through the identifier the description declares for kind.
func OpenDescription(desc *modeldesc.Description, kind Kind) (*Library, error) {
	identifier, err := identifierFor(desc, kind)
	if err != nil {
		return nil, err
	}
	driver, err := Lookup(identifier)
	if err != nil {
		return nil, err
	}

	lib := &Library{
		desc:   desc,
		driver: driver,
		kind:   kind,
		logger: log.Provide().With(log.String("model", identifier)),
	}
	lib.names.prefix = identifier
	return lib, nil
}

func identifierFor(desc *modeldesc.Description, kind Kind) (string, error) {
	switch kind {
	case KindCoSimulation:
		if desc.CoSimulation == nil {
			return "", fmt.Errorf("%w: %s has no CoSimulation element", ErrWrongInterface, desc.ModelName)
		}
		return desc.CoSimulation.ModelIdentifier, nil
	case KindModelExchange:
		if desc.ModelExchange == nil {
			return "", fmt.Errorf("%w: %s has no ModelExchange element", ErrWrongInterface, desc.ModelName)
		}
		return desc.ModelExchange.ModelIdentifier, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %d", ErrWrongInterface, kind)
	}
}

// Description returns the bound description. Callers must not mutate it.
func (l *Library) Description() *modeldesc.Description { return l.desc }

// Kind returns the simulation kind the library was opened for.
func (l *Library) Kind() Kind { return l.kind }

// Identifier returns the model identifier for the library's kind.
func (l *Library) Identifier() string { return l.names.prefix }

// canSnapshot reports whether the description declares the get/set
// state capability for the library's kind.
func (l *Library) canSnapshot() bool {
	switch l.kind {
	case KindCoSimulation:
		return l.desc.CoSimulation != nil && l.desc.CoSimulation.CanGetAndSetFMUstate
	case KindModelExchange:
		return l.desc.ModelExchange != nil && l.desc.ModelExchange.CanGetAndSetFMUstate
	default:
		return false
	}
}

// nameFactory issues model_0, model_1, ... instance names.
type nameFactory struct {
	prefix  string
	counter atomic.Uint64
}

func (f *nameFactory) next() string {
	n := f.counter.Add(1) - 1
	return fmt.Sprintf("%s_%d", f.prefix, n)
}

// InstanceOption tunes Instantiate.
type InstanceOption func(*instanceOptions)

type instanceOptions struct {
	name      string
	loggingOn bool
	logger    log.Log
}

// WithName overrides the generated instance name.
func WithName(name string) InstanceOption {
	return func(o *instanceOptions) { o.name = name }
}

// WithLogging enables instance debug logging from the start.
func WithLogging(on bool) InstanceOption {
	return func(o *instanceOptions) { o.loggingOn = on }
}

// WithLogger routes the instance's log output.
func WithLogger(logger log.Log) InstanceOption {
	return func(o *instanceOptions) { o.logger = logger }
}

// Instantiate creates a fresh instance of the bound model.
func (l *Library) Instantiate(opts ...InstanceOption) (*Instance, error) {
	options := instanceOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.name == "" {
		options.name = l.names.next()
	}
	logger := options.logger
	if logger == nil {
		logger = l.logger
	}

	inst := newInstance(l, l.driver.Create(), options.name, options.loggingOn,
		logger.With(log.String("instance", options.name)))

	inst.logger.Info("instance created",
		log.String("kind", l.kind.String()),
		log.Bool("logging_on", options.loggingOn))
	return inst, nil
}
