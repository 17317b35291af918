package sim

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// Ensemble advances several instances over the same communication grid
// in lockstep: every instance completes the current step before any
// instance starts the next. Per-instance parameters are applied by the
// caller before Run, while the instances are still freshly
// instantiated.
type Ensemble struct {
	exp     Experiment
	members []*member
	logger  log.Log
}

type member struct {
	inst      *slave.Instance
	outputs   []string
	recorders []Recorder
}

func NewEnsemble(exp Experiment, instances ...*slave.Instance) *Ensemble {
	e := &Ensemble{exp: exp, logger: log.Provide()}
	for _, inst := range instances {
		e.members = append(e.members, &member{inst: inst})
	}
	return e
}

func (e *Ensemble) SetLogger(l log.Log) { e.logger = l }

// Record attaches a recorder to one member instance. The ensemble does
// not close it.
func (e *Ensemble) Record(inst *slave.Instance, rec Recorder) error {
	for _, m := range e.members {
		if m.inst == inst {
			m.recorders = append(m.recorders, rec)
			return nil
		}
	}
	return errors.Errorf("instance %s is not part of the ensemble", inst.Name())
}

// Run initializes every member, steps the shared grid to the stop time
// and terminates the members. The first failing member cancels the
// whole run at the next barrier.
func (e *Ensemble) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{FinalTime: e.exp.StartTime}

	if err := e.exp.Validate(); err != nil {
		return res, err
	}
	if len(e.members) == 0 {
		return res, errors.New("ensemble has no instances")
	}

	stop := e.exp.StopTime
	for _, m := range e.members {
		err := m.inst.SetupExperiment(slave.Experiment{
			StartTime: e.exp.StartTime,
			StopTime:  &stop,
			Tolerance: e.exp.Tolerance,
		})
		if err != nil {
			return res, errors.Wrapf(err, "instance %s", m.inst.Name())
		}
		if err := m.inst.EnterInitializationMode(); err != nil {
			return res, errors.Wrapf(err, "instance %s", m.inst.Name())
		}
		if err := m.inst.ExitInitializationMode(); err != nil {
			return res, errors.Wrapf(err, "instance %s", m.inst.Name())
		}

		if len(e.exp.Outputs) > 0 {
			m.outputs = e.exp.Outputs
		} else {
			for _, sv := range m.inst.Description().Outputs() {
				m.outputs = append(m.outputs, sv.Name)
			}
		}
	}

	t := e.exp.StartTime
	for t < e.exp.StopTime-gridEps {
		if err := ctx.Err(); err != nil {
			_ = e.terminateAll()
			res.FinalTime = t
			res.Elapsed = time.Since(start)
			return res, err
		}

		h := e.exp.StepSize
		if t+h > e.exp.StopTime {
			h = e.exp.StopTime - t
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, m := range e.members {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := m.inst.DoStep(t, h, true); err != nil {
					return errors.Wrapf(err, "instance %s", m.inst.Name())
				}
				if len(m.recorders) == 0 {
					return nil
				}
				values, err := m.inst.Reals(m.outputs...)
				if err != nil {
					return errors.Wrapf(err, "instance %s", m.inst.Name())
				}
				for _, rec := range m.recorders {
					if err := rec.Record(m.inst.Time(), values); err != nil {
						return errors.Wrapf(err, "record %s", m.inst.Name())
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			_ = e.terminateAll()
			res.FinalTime = t
			res.Elapsed = time.Since(start)
			return res, err
		}

		t += h
		res.Steps++
	}

	if err := e.terminateAll(); err != nil {
		res.FinalTime = t
		res.Elapsed = time.Since(start)
		return res, err
	}

	res.FinalTime = t
	res.Elapsed = time.Since(start)
	e.logger.Debug("ensemble run complete",
		log.Int("instances", len(e.members)),
		log.Int("steps", res.Steps),
		log.Float64("final_time", res.FinalTime),
	)
	return res, nil
}

func (e *Ensemble) terminateAll() error {
	var first error
	for _, m := range e.members {
		if err := m.inst.Terminate(); err != nil && first == nil {
			first = errors.Wrapf(err, "terminate %s", m.inst.Name())
		}
	}
	return first
}
