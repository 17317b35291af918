package client

import (
	"context"

	"github.com/fmukit/fmukit/internal/core/protocol"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// RemoteInstance drives one model instance on the server. Methods
// mirror the in-process instance; failures reported by the server
// come back as the matching sentinel errors.
type RemoteInstance struct {
	client *Client
	handle string
	name   string
	model  string

	// Last communication point reported by the server.
	simTime float64
}

// Handle returns the server-side instance handle.
func (ri *RemoteInstance) Handle() string { return ri.handle }

// Name returns the instance name.
func (ri *RemoteInstance) Name() string { return ri.name }

// Model returns the model identifier.
func (ri *RemoteInstance) Model() string { return ri.model }

// Time returns the last communication point the server reported.
func (ri *RemoteInstance) Time() float64 { return ri.simTime }

// SetupExperiment hands the run settings to the instance.
func (ri *RemoteInstance) SetupExperiment(ctx context.Context, exp slave.Experiment) error {
	_, err := ri.call(ctx, protocol.ActionSetupExperiment, protocol.SetupExperimentRequest{
		StartTime: exp.StartTime,
		StopTime:  exp.StopTime,
		Tolerance: exp.Tolerance,
	})
	if err == nil {
		ri.simTime = exp.StartTime
	}
	return err
}

// EnterInitializationMode moves the instance into initialization.
func (ri *RemoteInstance) EnterInitializationMode(ctx context.Context) error {
	_, err := ri.call(ctx, protocol.ActionEnterInit, nil)
	return err
}

// ExitInitializationMode completes initialization.
func (ri *RemoteInstance) ExitInitializationMode(ctx context.Context) error {
	_, err := ri.call(ctx, protocol.ActionExitInit, nil)
	return err
}

// DoStep advances the instance from communication point t by h.
func (ri *RemoteInstance) DoStep(ctx context.Context, t, h float64, noRollbackPrior bool) error {
	resp, err := ri.call(ctx, protocol.ActionDoStep, protocol.DoStepRequest{
		CurrentTime:     t,
		StepSize:        h,
		NoRollbackPrior: noRollbackPrior,
	})
	if err != nil {
		return err
	}
	var out protocol.DoStepResponse
	if err = resp.Bind(&out); err != nil {
		return err
	}
	ri.simTime = out.Time
	return nil
}

// Reals reads Real variables by name.
func (ri *RemoteInstance) Reals(ctx context.Context, names ...string) (map[string]float64, error) {
	resp, err := ri.call(ctx, protocol.ActionGetReal, protocol.GetRealRequest{Names: names})
	if err != nil {
		return nil, err
	}
	var out protocol.GetRealResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// SetReals writes Real variables by name.
func (ri *RemoteInstance) SetReals(ctx context.Context, values map[string]float64) error {
	_, err := ri.call(ctx, protocol.ActionSetReal, protocol.SetRealRequest{Values: values})
	return err
}

// Integers reads Integer variables by name.
func (ri *RemoteInstance) Integers(ctx context.Context, names ...string) (map[string]int32, error) {
	resp, err := ri.call(ctx, protocol.ActionGetInteger, protocol.GetIntegerRequest{Names: names})
	if err != nil {
		return nil, err
	}
	var out protocol.GetIntegerResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// SetIntegers writes Integer variables by name.
func (ri *RemoteInstance) SetIntegers(ctx context.Context, values map[string]int32) error {
	_, err := ri.call(ctx, protocol.ActionSetInteger, protocol.SetIntegerRequest{Values: values})
	return err
}

// Booleans reads Boolean variables by name.
func (ri *RemoteInstance) Booleans(ctx context.Context, names ...string) (map[string]bool, error) {
	resp, err := ri.call(ctx, protocol.ActionGetBoolean, protocol.GetBooleanRequest{Names: names})
	if err != nil {
		return nil, err
	}
	var out protocol.GetBooleanResponse
	if err = resp.Bind(&out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// SetBooleans writes Boolean variables by name.
func (ri *RemoteInstance) SetBooleans(ctx context.Context, values map[string]bool) error {
	_, err := ri.call(ctx, protocol.ActionSetBoolean, protocol.SetBooleanRequest{Values: values})
	return err
}

// SaveState captures the instance state for a later rewind.
func (ri *RemoteInstance) SaveState(ctx context.Context) (slave.Snapshot, error) {
	resp, err := ri.call(ctx, protocol.ActionSaveState, nil)
	if err != nil {
		return slave.Snapshot{}, err
	}
	var out protocol.SaveStateResponse
	if err = resp.Bind(&out); err != nil {
		return slave.Snapshot{}, err
	}
	return slave.Snapshot{Time: out.Time, Data: out.State}, nil
}

// RestoreState rewinds the instance to a snapshot.
func (ri *RemoteInstance) RestoreState(ctx context.Context, snap slave.Snapshot) error {
	_, err := ri.call(ctx, protocol.ActionRestoreState, protocol.RestoreStateRequest{
		Time:  snap.Time,
		State: snap.Data,
	})
	if err == nil {
		ri.simTime = snap.Time
	}
	return err
}

// Terminate ends the run. Values stay readable until Close.
func (ri *RemoteInstance) Terminate(ctx context.Context) error {
	_, err := ri.call(ctx, protocol.ActionTerminate, nil)
	return err
}

// Reset returns the instance to its freshly instantiated state.
func (ri *RemoteInstance) Reset(ctx context.Context) error {
	_, err := ri.call(ctx, protocol.ActionReset, nil)
	if err == nil {
		ri.simTime = 0
	}
	return err
}

// Close frees the instance on the server.
func (ri *RemoteInstance) Close(ctx context.Context) error {
	_, err := ri.call(ctx, protocol.ActionCloseInstance, nil)
	return err
}

func (ri *RemoteInstance) call(ctx context.Context, action protocol.Action, payload any) (*protocol.Message, error) {
	return ri.client.call(ctx, action, ri.handle, payload)
}
