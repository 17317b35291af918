package protocol

import "time"

// Action names an operation on the wire.
type Action string

const (
	ActionInstantiate     Action = "instantiate"
	ActionSetupExperiment Action = "setup_experiment"
	ActionEnterInit       Action = "enter_initialization"
	ActionExitInit        Action = "exit_initialization"
	ActionDoStep          Action = "do_step"
	ActionGetReal         Action = "get_real"
	ActionSetReal         Action = "set_real"
	ActionGetInteger      Action = "get_integer"
	ActionSetInteger      Action = "set_integer"
	ActionGetBoolean      Action = "get_boolean"
	ActionSetBoolean      Action = "set_boolean"
	ActionSaveState       Action = "save_state"
	ActionRestoreState    Action = "restore_state"
	ActionTerminate       Action = "terminate"
	ActionReset           Action = "reset"
	ActionCloseInstance   Action = "close_instance"
	ActionListModels      Action = "list_models"
	ActionDescribeModel   Action = "describe_model"
	ActionPing            Action = "ping"

	// EventInstanceClosed notifies a client that the server dropped an
	// instance, typically after idle reaping.
	EventInstanceClosed Action = "instance_closed"
)

// InstantiateRequest asks the server to create an instance of a
// registered model.
type InstantiateRequest struct {
	Model     string `json:"model"`
	Name      string `json:"name,omitempty"`
	LoggingOn bool   `json:"logging_on,omitempty"`
}

type InstantiateResponse struct {
	Instance string `json:"instance"`
	Name     string `json:"name"`
	Model    string `json:"model"`
}

type SetupExperimentRequest struct {
	StartTime float64  `json:"start_time"`
	StopTime  *float64 `json:"stop_time,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty"`
}

type DoStepRequest struct {
	CurrentTime     float64 `json:"current_time"`
	StepSize        float64 `json:"step_size"`
	NoRollbackPrior bool    `json:"no_rollback_prior,omitempty"`
}

type DoStepResponse struct {
	Time float64 `json:"time"`
}

type GetRealRequest struct {
	Names []string `json:"names"`
}

type GetRealResponse struct {
	Values map[string]float64 `json:"values"`
}

type SetRealRequest struct {
	Values map[string]float64 `json:"values"`
}

type GetIntegerRequest struct {
	Names []string `json:"names"`
}

type GetIntegerResponse struct {
	Values map[string]int32 `json:"values"`
}

type SetIntegerRequest struct {
	Values map[string]int32 `json:"values"`
}

type GetBooleanRequest struct {
	Names []string `json:"names"`
}

type GetBooleanResponse struct {
	Values map[string]bool `json:"values"`
}

type SetBooleanRequest struct {
	Values map[string]bool `json:"values"`
}

// SaveStateResponse carries an opaque snapshot. State travels base64
// encoded inside the JSON envelope.
type SaveStateResponse struct {
	Time  float64 `json:"time"`
	State []byte  `json:"state"`
}

type RestoreStateRequest struct {
	Time  float64 `json:"time"`
	State []byte  `json:"state"`
}

type ModelInfo struct {
	Name        string `json:"name"`
	GUID        string `json:"guid"`
	Description string `json:"description,omitempty"`
}

type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

type DescribeModelRequest struct {
	Model string `json:"model"`
}

// DescribeModelResponse carries the model description document as XML.
type DescribeModelResponse struct {
	ModelXML string `json:"model_xml"`
}

type PingResponse struct {
	ServerTime time.Time `json:"server_time"`
}

type InstanceClosedEvent struct {
	Instance string `json:"instance"`
	Reason   string `json:"reason"`
}
