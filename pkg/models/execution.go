package models

// ExecuteRequest is a batch of application plans handed to the workflow engine as one run
type ExecuteRequest struct {
	Applications []ExecutionTarget `json:"Applications"`

	// IsDrill selects a non-destructive drill instead of a failover
	IsDrill bool `json:"IsDrill"`

	// TopicARN receives engine notifications
	TopicARN string `json:"TopicARN"`

	User string `json:"user"`
}

// ExecutionTarget selects one plan of an application
type ExecutionTarget struct {
	Application Application `json:"application"`

	// Plan is the index of the plan within Application.Plans
	Plan int `json:"plan"`
}

// ExecutionRecord links a started workflow run to the request that started it.
// It is written once and never updated.
type ExecutionRecord struct {
	// ExecutionID is the workflow run ARN
	ExecutionID string `json:"ExecutionId"`

	// StartDate is the RFC 3339 start time reported by the workflow service
	StartDate string `json:"StartDate"`

	Params ExecutionParams `json:"params"`
}

// ExecutionParams are the arguments the workflow run was started with
type ExecutionParams struct {
	StateMachineArn string `json:"stateMachineArn"`
	Input           string `json:"input"`
	Name            string `json:"name,omitempty"`
}

// ExecutionStarted is returned to callers of the execute endpoint
type ExecutionStarted struct {
	ExecutionArn string `json:"executionArn"`
	StartDate    string `json:"startDate"`
}
