package slave

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
)

// State is the lifecycle position of an instance.
type State int32

const (
	StateInstantiated State = iota
	StateInitialization
	StateStepping
	StateTerminated
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInstantiated:
		return "instantiated"
	case StateInitialization:
		return "initialization"
	case StateStepping:
		return "stepping"
	case StateTerminated:
		return "terminated"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// communicationEps is the tolerance for matching communication points.
const communicationEps = 1e-9

// Instance wraps a slave with the co-simulation calling-sequence
// rules: state machine enforcement, variable resolution through the
// model description, snapshots and per-instance logging. All methods
// are safe for concurrent use; slave calls are serialized.
type Instance struct {
	name   string
	lib    *Library
	slave  Slave
	logger log.Log

	mu              sync.Mutex
	state           atomic.Int32
	simTime         float64
	setupDone       bool
	exp             Experiment
	noRollbackPoint float64
	hasNoRollback   bool

	loggingOn  bool
	categories map[string]struct{}

	touched atomic.Int64

	byName map[string]*modeldesc.ScalarVariable
	byVR   map[modeldesc.Kind]map[modeldesc.ValueReference]*modeldesc.ScalarVariable
}

func newInstance(lib *Library, s Slave, name string, loggingOn bool, logger log.Log) *Instance {
	inst := &Instance{
		name:      name,
		lib:       lib,
		slave:     s,
		logger:    logger,
		loggingOn: loggingOn,
		byName:    make(map[string]*modeldesc.ScalarVariable),
		byVR:      make(map[modeldesc.Kind]map[modeldesc.ValueReference]*modeldesc.ScalarVariable),
	}
	for _, sv := range lib.desc.Variables() {
		inst.byName[sv.Name] = sv
		kindMap := inst.byVR[sv.Kind()]
		if kindMap == nil {
			kindMap = make(map[modeldesc.ValueReference]*modeldesc.ScalarVariable)
			inst.byVR[sv.Kind()] = kindMap
		}
		if _, exists := kindMap[sv.ValueReference]; !exists {
			kindMap[sv.ValueReference] = sv
		}
	}
	inst.touch()
	return inst
}

// Name returns the unique instance name.
func (i *Instance) Name() string { return i.name }

// ModelIdentifier returns the identifier of the instantiated model.
func (i *Instance) ModelIdentifier() string { return i.lib.Identifier() }

// Description returns the model description the instance resolves
// variables against.
func (i *Instance) Description() *modeldesc.Description { return i.lib.desc }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

// Time returns the instance's current communication point.
func (i *Instance) Time() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.simTime
}

// LastActivity returns the wall-clock time of the last operation,
// used by hosts to reap idle instances.
func (i *Instance) LastActivity() time.Time {
	return time.Unix(0, i.touched.Load())
}

func (i *Instance) touch() { i.touched.Store(time.Now().UnixNano()) }

func (i *Instance) setState(s State) { i.state.Store(int32(s)) }

// require verifies the instance is in one of the allowed states.
// Callers hold mu.
func (i *Instance) require(op string, allowed ...State) error {
	st := i.State()
	if st == StateClosed {
		return fmt.Errorf("%s: %w", op, ErrInstanceClosed)
	}
	for _, a := range allowed {
		if st == a {
			return nil
		}
	}
	return fmt.Errorf("%s in state %s: %w", op, st, ErrInvalidState)
}

// fail records a slave failure and moves the instance to the error
// state. Callers hold mu.
func (i *Instance) fail(op string, err error) error {
	i.setState(StateError)
	i.logger.Error("slave call failed", log.String("op", op), log.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func (i *Instance) debugf(msg string, fields ...log.Field) {
	if i.loggingOn {
		i.logger.Debug(msg, fields...)
	}
}

// SetupExperiment hands the run settings to the slave. Only valid
// before initialization.
func (i *Instance) SetupExperiment(exp Experiment) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SetupExperiment", StateInstantiated); err != nil {
		return err
	}
	if err := i.slave.SetupExperiment(exp); err != nil {
		return i.fail("SetupExperiment", err)
	}
	i.exp = exp
	i.simTime = exp.StartTime
	i.setupDone = true
	i.debugf("experiment set up", log.Float64("start_time", exp.StartTime))
	return nil
}

// EnterInitializationMode moves the instance into initialization.
// SetupExperiment must have been called.
func (i *Instance) EnterInitializationMode() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("EnterInitializationMode", StateInstantiated); err != nil {
		return err
	}
	if !i.setupDone {
		return fmt.Errorf("EnterInitializationMode: %w", ErrSetupRequired)
	}
	if err := i.slave.EnterInitializationMode(); err != nil {
		return i.fail("EnterInitializationMode", err)
	}
	i.setState(StateInitialization)
	i.debugf("entered initialization mode")
	return nil
}

// ExitInitializationMode completes initialization; the instance is
// ready to step from the experiment's start time.
func (i *Instance) ExitInitializationMode() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("ExitInitializationMode", StateInitialization); err != nil {
		return err
	}
	if err := i.slave.ExitInitializationMode(); err != nil {
		return i.fail("ExitInitializationMode", err)
	}
	i.setState(StateStepping)
	i.simTime = i.exp.StartTime
	i.debugf("exited initialization mode", log.Float64("time", i.simTime))
	return nil
}

// DoStep advances the slave from communication point t by h. t must
// match the instance's current time. When noRollbackPrior is true the
// caller promises never to restore a snapshot taken before t, and the
// instance rejects such restores afterwards.
func (i *Instance) DoStep(t, h float64, noRollbackPrior bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("DoStep", StateStepping); err != nil {
		return err
	}
	if h <= 0 {
		return fmt.Errorf("DoStep h=%v: %w", h, ErrBadStepSize)
	}
	if math.Abs(t-i.simTime) > communicationEps {
		return fmt.Errorf("DoStep t=%v, instance at %v: %w", t, i.simTime, ErrBadCommunicationPoint)
	}

	if err := i.slave.DoStep(t, h); err != nil {
		return i.fail("DoStep", err)
	}
	i.simTime = t + h
	if noRollbackPrior {
		i.noRollbackPoint = t
		i.hasNoRollback = true
	}
	i.debugf("step complete",
		log.Float64("t", t),
		log.Float64("h", h),
		log.Float64("time", i.simTime))
	return nil
}

// Terminate ends the run. The instance keeps its values readable.
func (i *Instance) Terminate() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("Terminate", StateInitialization, StateStepping, StateError); err != nil {
		return err
	}
	if err := i.slave.Terminate(); err != nil {
		return i.fail("Terminate", err)
	}
	i.setState(StateTerminated)
	i.debugf("terminated", log.Float64("time", i.simTime))
	return nil
}

// Reset returns the instance to its freshly instantiated state. The
// experiment must be set up again before initialization.
func (i *Instance) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if st := i.State(); st == StateClosed {
		return fmt.Errorf("Reset: %w", ErrInstanceClosed)
	}
	if err := i.slave.Reset(); err != nil {
		return i.fail("Reset", err)
	}
	i.setState(StateInstantiated)
	i.simTime = 0
	i.setupDone = false
	i.hasNoRollback = false
	i.noRollbackPoint = 0
	i.debugf("reset")
	return nil
}

// Close frees the instance. Active instances are terminated best
// effort first. Closing twice is a no-op.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	st := i.State()
	if st == StateClosed {
		return nil
	}
	if st == StateInitialization || st == StateStepping {
		if err := i.slave.Terminate(); err != nil {
			i.logger.Warn("terminate during close failed", log.Error(err))
		}
	}
	i.setState(StateClosed)
	i.logger.Info("instance closed", log.Float64("time", i.simTime))
	return nil
}

// SetDebugLogging toggles instance debug logging. Named categories
// must be declared by the model description.
func (i *Instance) SetDebugLogging(on bool, categories []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if st := i.State(); st == StateClosed {
		return fmt.Errorf("SetDebugLogging: %w", ErrInstanceClosed)
	}
	for _, c := range categories {
		if !i.lib.desc.HasLogCategory(c) {
			return fmt.Errorf("%q: %w", c, ErrUnknownLogCategory)
		}
	}
	i.loggingOn = on
	i.categories = make(map[string]struct{}, len(categories))
	for _, c := range categories {
		i.categories[c] = struct{}{}
	}
	return nil
}

// LogCategories returns the categories enabled by SetDebugLogging.
func (i *Instance) LogCategories() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	cats := make([]string, 0, len(i.categories))
	for c := range i.categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// SaveState captures the slave's state. The model must implement the
// snapshot capability and declare it in its description.
func (i *Instance) SaveState() (Snapshot, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("SaveState", StateInitialization, StateStepping, StateTerminated); err != nil {
		return Snapshot{}, err
	}
	snapshotter, err := i.snapshotter()
	if err != nil {
		return Snapshot{}, fmt.Errorf("SaveState: %w", err)
	}
	data, err := snapshotter.SaveState()
	if err != nil {
		return Snapshot{}, i.fail("SaveState", err)
	}
	i.debugf("state saved", log.Float64("time", i.simTime), log.Int("bytes", len(data)))
	return Snapshot{Time: i.simTime, Data: data}, nil
}

// RestoreState rewinds the slave to a snapshot. Restoring past the
// no-rollback point promised through DoStep is rejected.
func (i *Instance) RestoreState(snap Snapshot) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.touch()

	if err := i.require("RestoreState", StateStepping, StateTerminated); err != nil {
		return err
	}
	snapshotter, err := i.snapshotter()
	if err != nil {
		return fmt.Errorf("RestoreState: %w", err)
	}
	if i.hasNoRollback && snap.Time < i.noRollbackPoint-communicationEps {
		return fmt.Errorf("RestoreState to t=%v before %v: %w",
			snap.Time, i.noRollbackPoint, ErrSnapshotInvalidated)
	}
	if err := snapshotter.RestoreState(snap.Data); err != nil {
		return i.fail("RestoreState", err)
	}
	i.simTime = snap.Time
	i.setState(StateStepping)
	i.debugf("state restored", log.Float64("time", snap.Time))
	return nil
}

func (i *Instance) snapshotter() (StateSnapshotter, error) {
	if !i.lib.canSnapshot() {
		return nil, ErrStateNotSupported
	}
	snapshotter, ok := i.slave.(StateSnapshotter)
	if !ok {
		return nil, ErrStateNotSupported
	}
	return snapshotter, nil
}
