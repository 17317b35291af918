package server

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/fmukit/fmukit/internal/core/fmu"
	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/protocol"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// session owns one client connection and the instances it created.
type session struct {
	id     string
	server *Server
	conn   protocol.Conn
	logger log.Log

	mu        sync.Mutex
	instances map[string]*slave.Instance
	archives  map[string]*fmu.Archive
}

func newSession(s *Server, conn protocol.Conn) *session {
	id := protocol.GenerateSessionID()
	return &session{
		id:        id,
		server:    s,
		conn:      conn,
		logger:    s.logger.With(log.String("session_id", id)),
		instances: make(map[string]*slave.Instance),
		archives:  make(map[string]*fmu.Archive),
	}
}

// run serves requests until the connection goes down.
func (sess *session) run() {
	defer sess.teardown()
	sess.logger.Debug("Session handler started")

	for {
		msg, err := sess.conn.Receive(context.Background())
		if err != nil {
			if !errors.Is(err, protocol.ErrConnectionClosed) {
				sess.logger.Error("Receive failed", log.Error(err))
			}
			return
		}
		sess.handle(msg)
	}
}

// shutdown closes the connection, which unblocks run.
func (sess *session) shutdown() {
	_ = sess.conn.Close()
}

func (sess *session) teardown() {
	sess.server.sessions.Delete(sess.id)
	atomic.AddInt64(&sess.server.sessionCount, -1)
	sess.closeAllInstances()
	_ = sess.conn.Close()

	sess.logger.Info("Session closed",
		log.Int64("total_sessions", atomic.LoadInt64(&sess.server.sessionCount)))
}

func (sess *session) handle(msg *protocol.Message) {
	atomic.AddUint64(&sess.server.requestCount, 1)

	if msg.Kind != protocol.KindRequest {
		sess.logger.Warn("Ignoring non-request envelope",
			log.String("kind", string(msg.Kind)),
			log.String("action", string(msg.Action)))
		return
	}

	sess.logger.Debug("Handling request",
		log.String("message_id", msg.ID),
		log.String("action", string(msg.Action)))

	var resp *protocol.Message
	payload, err := sess.execute(msg)
	if err != nil {
		resp = protocol.NewErrorResponse(msg, err)
	} else if resp, err = protocol.NewResponse(msg, payload); err != nil {
		resp = protocol.NewErrorResponse(msg, err)
	}

	if err = sess.conn.Send(resp); err != nil {
		sess.logger.Warn("Send failed", log.Error(err))
	}
}

// execute runs one request. A returned error becomes an error
// response; the session itself stays up.
func (sess *session) execute(msg *protocol.Message) (any, error) {
	switch msg.Action {
	case protocol.ActionPing:
		return protocol.PingResponse{ServerTime: time.Now().UTC()}, nil
	case protocol.ActionListModels:
		return sess.listModels(), nil
	case protocol.ActionDescribeModel:
		return sess.describeModel(msg)
	case protocol.ActionInstantiate:
		return sess.instantiate(msg)
	}

	inst, err := sess.instance(msg.Instance)
	if err != nil {
		return nil, err
	}

	switch msg.Action {
	case protocol.ActionSetupExperiment:
		var req protocol.SetupExperimentRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, inst.SetupExperiment(slave.Experiment{
			StartTime: req.StartTime,
			StopTime:  req.StopTime,
			Tolerance: req.Tolerance,
		})

	case protocol.ActionEnterInit:
		return nil, inst.EnterInitializationMode()

	case protocol.ActionExitInit:
		return nil, inst.ExitInitializationMode()

	case protocol.ActionDoStep:
		var req protocol.DoStepRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		if err = inst.DoStep(req.CurrentTime, req.StepSize, req.NoRollbackPrior); err != nil {
			return nil, err
		}
		return protocol.DoStepResponse{Time: inst.Time()}, nil

	case protocol.ActionGetReal:
		var req protocol.GetRealRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		values, err := inst.Reals(req.Names...)
		if err != nil {
			return nil, err
		}
		return protocol.GetRealResponse{Values: values}, nil

	case protocol.ActionSetReal:
		var req protocol.SetRealRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, inst.SetReals(req.Values)

	case protocol.ActionGetInteger:
		var req protocol.GetIntegerRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		values, err := inst.Integers(req.Names...)
		if err != nil {
			return nil, err
		}
		return protocol.GetIntegerResponse{Values: values}, nil

	case protocol.ActionSetInteger:
		var req protocol.SetIntegerRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, inst.SetIntegers(req.Values)

	case protocol.ActionGetBoolean:
		var req protocol.GetBooleanRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		values, err := inst.Booleans(req.Names...)
		if err != nil {
			return nil, err
		}
		return protocol.GetBooleanResponse{Values: values}, nil

	case protocol.ActionSetBoolean:
		var req protocol.SetBooleanRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, inst.SetBooleans(req.Values)

	case protocol.ActionSaveState:
		snap, err := inst.SaveState()
		if err != nil {
			return nil, err
		}
		return protocol.SaveStateResponse{Time: snap.Time, State: snap.Data}, nil

	case protocol.ActionRestoreState:
		var req protocol.RestoreStateRequest
		if err = msg.Bind(&req); err != nil {
			return nil, err
		}
		return nil, inst.RestoreState(slave.Snapshot{Time: req.Time, Data: req.State})

	case protocol.ActionTerminate:
		return nil, inst.Terminate()

	case protocol.ActionReset:
		return nil, inst.Reset()

	case protocol.ActionCloseInstance:
		sess.closeInstance(msg.Instance)
		return nil, nil

	default:
		return nil, errors.Wrapf(protocol.ErrUnknownAction, "%s", msg.Action)
	}
}

func (sess *session) instantiate(msg *protocol.Message) (any, error) {
	var req protocol.InstantiateRequest
	if err := msg.Bind(&req); err != nil {
		return nil, err
	}

	if int(atomic.LoadInt64(&sess.server.instanceCount)) >= sess.server.config.MaxInstances {
		return nil, ErrMaxInstancesReached
	}

	lib, arch, err := sess.openLibrary(req.Model)
	if err != nil {
		return nil, err
	}

	opts := []slave.InstanceOption{slave.WithLogger(sess.logger)}
	if req.Name != "" {
		opts = append(opts, slave.WithName(req.Name))
	}
	if req.LoggingOn {
		opts = append(opts, slave.WithLogging(true))
	}

	inst, err := lib.Instantiate(opts...)
	if err != nil {
		if arch != nil {
			_ = arch.Close()
		}
		return nil, err
	}

	handle := protocol.GenerateInstanceHandle()
	sess.mu.Lock()
	sess.instances[handle] = inst
	if arch != nil {
		sess.archives[handle] = arch
	}
	sess.mu.Unlock()
	atomic.AddInt64(&sess.server.instanceCount, 1)

	sess.logger.Info("Instance created",
		log.String("handle", handle),
		log.String("model", inst.ModelIdentifier()),
		log.String("name", inst.Name()))

	return protocol.InstantiateResponse{
		Instance: handle,
		Name:     inst.Name(),
		Model:    inst.ModelIdentifier(),
	}, nil
}

// openLibrary resolves a model by registry identifier, or by archive
// file name when the server allows archive loading.
func (sess *session) openLibrary(model string) (*slave.Library, *fmu.Archive, error) {
	if strings.HasSuffix(model, ".fmu") {
		dir := sess.server.config.ArchiveDir
		if dir == "" {
			return nil, nil, errors.Wrap(protocol.ErrUnknownModel, "archive loading disabled")
		}
		// Only bare file names resolve, so requests cannot walk out
		// of the archive directory.
		path := filepath.Join(dir, filepath.Base(model))
		arch, err := fmu.Unpack(path)
		if err != nil {
			return nil, nil, errors.Wrap(protocol.ErrUnknownModel, err.Error())
		}
		lib, err := arch.Load(slave.KindCoSimulation)
		if err != nil {
			_ = arch.Close()
			return nil, nil, err
		}
		return lib, arch, nil
	}

	lib, err := slave.Open(model, slave.KindCoSimulation)
	if err != nil {
		return nil, nil, err
	}
	return lib, nil, nil
}

func (sess *session) listModels() protocol.ListModelsResponse {
	names := slave.Models()
	infos := make([]protocol.ModelInfo, 0, len(names))
	for _, name := range names {
		desc, err := slave.Describe(name)
		if err != nil {
			continue
		}
		infos = append(infos, protocol.ModelInfo{
			Name:        name,
			GUID:        desc.GUID,
			Description: desc.Description,
		})
	}
	return protocol.ListModelsResponse{Models: infos}
}

func (sess *session) describeModel(msg *protocol.Message) (any, error) {
	var req protocol.DescribeModelRequest
	if err := msg.Bind(&req); err != nil {
		return nil, err
	}

	desc, err := slave.Describe(req.Model)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err = desc.Encode(&buf); err != nil {
		return nil, errors.Wrap(err, "encode description")
	}
	return protocol.DescribeModelResponse{ModelXML: buf.String()}, nil
}

func (sess *session) instance(handle string) (*slave.Instance, error) {
	if handle == "" {
		return nil, errors.Wrap(protocol.ErrUnknownInstance, "missing instance handle")
	}
	sess.mu.Lock()
	inst, ok := sess.instances[handle]
	sess.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(protocol.ErrUnknownInstance, "%s", handle)
	}
	return inst, nil
}

func (sess *session) closeInstance(handle string) {
	sess.mu.Lock()
	inst, ok := sess.instances[handle]
	arch := sess.archives[handle]
	delete(sess.instances, handle)
	delete(sess.archives, handle)
	sess.mu.Unlock()

	if !ok {
		return
	}
	_ = inst.Close()
	if arch != nil {
		_ = arch.Close()
	}
	atomic.AddInt64(&sess.server.instanceCount, -1)
}

func (sess *session) closeAllInstances() {
	sess.mu.Lock()
	handles := make([]string, 0, len(sess.instances))
	for handle := range sess.instances {
		handles = append(handles, handle)
	}
	sess.mu.Unlock()

	for _, handle := range handles {
		sess.closeInstance(handle)
	}
}

// reapIdle closes instances idle since before cutoff and notifies the
// client. Returns the number reaped.
func (sess *session) reapIdle(cutoff time.Time) int {
	sess.mu.Lock()
	var stale []string
	for handle, inst := range sess.instances {
		if inst.LastActivity().Before(cutoff) {
			stale = append(stale, handle)
		}
	}
	sess.mu.Unlock()

	for _, handle := range stale {
		sess.closeInstance(handle)
		ev, err := protocol.NewEvent(protocol.EventInstanceClosed, handle, protocol.InstanceClosedEvent{
			Instance: handle,
			Reason:   "idle timeout",
		})
		if err == nil {
			_ = sess.conn.Send(ev)
		}
		sess.logger.Info("Instance reaped", log.String("handle", handle))
	}
	return len(stale)
}
