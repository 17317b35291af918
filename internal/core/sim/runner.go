package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// gridEps is the tolerance used when deciding whether the current time
// has landed on the stop time.
const gridEps = 1e-9

// StepEvent describes one completed communication step.
type StepEvent struct {
	Index  int
	Time   float64
	Values map[string]float64
}

// Observer receives a StepEvent after every completed step.
type Observer func(StepEvent)

// StepHook runs before every step. Returning an error aborts the run.
type StepHook func(inst *slave.Instance, t float64) error

// Result summarizes a completed run.
type Result struct {
	Steps     int
	FinalTime float64
	Elapsed   time.Duration
}

// Runner drives a single instance through an experiment: setup,
// parameter application, initialization, the stepping loop and
// termination.
type Runner struct {
	inst      *slave.Instance
	exp       Experiment
	recorders []Recorder
	observers []Observer
	hooks     []StepHook
	logger    log.Log
}

type RunnerOption func(*Runner)

// WithRecorder attaches a recorder. The runner does not close it.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorders = append(r.recorders, rec) }
}

// WithObserver attaches a step observer.
func WithObserver(fn Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, fn) }
}

// WithStepHook attaches a hook invoked before every step, typically to
// feed inputs.
func WithStepHook(fn StepHook) RunnerOption {
	return func(r *Runner) { r.hooks = append(r.hooks, fn) }
}

func WithLogger(l log.Log) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

func NewRunner(inst *slave.Instance, exp Experiment, opts ...RunnerOption) *Runner {
	r := &Runner{inst: inst, exp: exp, logger: log.Provide()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the experiment. The final step is shortened so the run
// lands exactly on the stop time. Cancelling the context stops the run
// between steps and leaves the instance terminated.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{FinalTime: r.exp.StartTime}

	if err := r.exp.Validate(); err != nil {
		return res, err
	}

	stop := r.exp.StopTime
	err := r.inst.SetupExperiment(slave.Experiment{
		StartTime: r.exp.StartTime,
		StopTime:  &stop,
		Tolerance: r.exp.Tolerance,
	})
	if err != nil {
		return res, err
	}
	if r.exp.LoggingOn {
		if err := r.inst.SetDebugLogging(true, nil); err != nil {
			return res, err
		}
	}
	if len(r.exp.Parameters) > 0 {
		if err := r.inst.SetReals(r.exp.Parameters); err != nil {
			return res, err
		}
	}
	if len(r.exp.IntegerParameters) > 0 {
		if err := r.inst.SetIntegers(r.exp.IntegerParameters); err != nil {
			return res, err
		}
	}
	if err := r.inst.EnterInitializationMode(); err != nil {
		return res, err
	}
	if err := r.inst.ExitInitializationMode(); err != nil {
		return res, err
	}

	outputs := r.exp.Outputs
	if len(outputs) == 0 {
		for _, sv := range r.inst.Description().Outputs() {
			outputs = append(outputs, sv.Name)
		}
	}

	t := r.exp.StartTime
	for t < r.exp.StopTime-gridEps {
		select {
		case <-ctx.Done():
			_ = r.inst.Terminate()
			res.FinalTime = t
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		default:
		}

		h := r.exp.StepSize
		if t+h > r.exp.StopTime {
			h = r.exp.StopTime - t
		}
		for _, hook := range r.hooks {
			if err := hook(r.inst, t); err != nil {
				res.FinalTime = t
				res.Elapsed = time.Since(start)
				return res, err
			}
		}
		if err := r.inst.DoStep(t, h, true); err != nil {
			res.FinalTime = t
			res.Elapsed = time.Since(start)
			return res, errors.Wrapf(err, "step %d", res.Steps)
		}
		t = r.inst.Time()
		res.Steps++

		values, err := r.inst.Reals(outputs...)
		if err != nil {
			res.FinalTime = t
			res.Elapsed = time.Since(start)
			return res, err
		}
		for _, rec := range r.recorders {
			if err := rec.Record(t, values); err != nil {
				res.FinalTime = t
				res.Elapsed = time.Since(start)
				return res, errors.Wrap(err, "record step")
			}
		}
		ev := StepEvent{Index: res.Steps - 1, Time: t, Values: values}
		for _, obs := range r.observers {
			obs(ev)
		}
	}

	if err := r.inst.Terminate(); err != nil {
		res.FinalTime = t
		res.Elapsed = time.Since(start)
		return res, err
	}

	res.FinalTime = t
	res.Elapsed = time.Since(start)
	r.logger.Debug("run complete",
		log.String("instance", r.inst.Name()),
		log.Int("steps", res.Steps),
		log.Float64("final_time", res.FinalTime),
	)
	return res, nil
}
