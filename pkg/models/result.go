package models

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

// Result statuses written by the orchestration engine
const (
	ResultStatusPending   = "pending"
	ResultStatusStarted   = "started"
	ResultStatusCompleted = "completed"
	ResultStatusFailed    = "failed"
)

// Result is the outcome of one plan within an execution. Results are written by the
// orchestration engine and are read-only to this service.
type Result struct {
	// AppIDPlanID is the partition key, AppId + "_" + PlanId
	AppIDPlanID string `json:"AppId_PlanId"`

	// ExecutionID is the sort key, the workflow run ARN
	ExecutionID string `json:"ExecutionId"`

	Status   string `json:"status,omitempty"`
	Duration string `json:"duration,omitempty"`
	User     string `json:"user,omitempty"`
	IsDrill  bool   `json:"isDrill"`
	TopicArn string `json:"topicArn,omitempty"`

	ExecutionStartTime   string `json:"ExecutionStartTime,omitempty"`
	ExecutionStartTimeMs int64  `json:"ExecutionStartTimeMs,omitempty"`
	ExecutionEndTime     string `json:"ExecutionEndTime,omitempty"`

	AppName   string `json:"AppName,omitempty"`
	KeyName   string `json:"KeyName,omitempty"`
	KeyValue  string `json:"KeyValue,omitempty"`
	Owner     string `json:"Owner,omitempty"`
	AccountID string `json:"AccountId,omitempty"`
	Region    string `json:"Region,omitempty"`

	PlanDetails   *Plan                    `json:"planDetails,omitempty"`
	Waves         []WaveResult             `json:"Waves,omitempty"`
	SourceServers []map[string]interface{} `json:"SourceServers,omitempty"`
	Log           LogLines                 `json:"log,omitempty"`

	// S3Bucket and S3Key are set instead of the body when the record was too large
	// for the results table
	S3Bucket string `json:"s3Bucket,omitempty"`
	S3Key    string `json:"s3Key,omitempty"`
}

// WaveResult is the outcome of one wave
type WaveResult struct {
	Status        string   `json:"status,omitempty"`
	SourceServers []string `json:"SourceServers,omitempty"`

	DRS RecoveryJob `json:"drs"`

	Log             LogLines       `json:"log,omitempty"`
	PreWaveActions  []ActionResult `json:"PreWaveActions,omitempty"`
	PostWaveActions []ActionResult `json:"PostWaveActions,omitempty"`

	ExecutionStartTime string `json:"ExecutionStartTime,omitempty"`
	ExecutionEndTime   string `json:"ExecutionEndTime,omitempty"`
	ExecutionEndTimeMs int64  `json:"ExecutionEndTimeMs,omitempty"`
	Duration           string `json:"duration,omitempty"`
}

// RecoveryJob is the state of the recovery job launched for a wave
type RecoveryJob struct {
	Status string                 `json:"status,omitempty"`
	Job    map[string]interface{} `json:"job,omitempty"`
}

// ActionResult is the outcome of one pre- or post-wave action
type ActionResult struct {
	Status string                 `json:"status,omitempty"`
	ID     string                 `json:"id,omitempty"`
	Job    map[string]interface{} `json:"job,omitempty"`
	Log    LogLines               `json:"log,omitempty"`
}

// IsArchived reports whether the record only points at its body in S3. The bucket
// may be empty when the engine ran without one configured.
func (r Result) IsArchived() bool {
	return r.S3Key != ""
}

// IsTerminal reports whether the engine has finished with this result
func (r Result) IsTerminal() bool {
	return r.Status == ResultStatusCompleted || r.Status == ResultStatusFailed
}

// LogLines is a list of log messages. The engine occasionally stores a single string
// instead of a list, so both shapes are accepted when decoding.
type LogLines []string

// UnmarshalJSON accepts a string, a list of strings or null
func (l *LogLines) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LogLines{s}
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("log must be a string or a list of strings: %w", err)
	}
	*l = lines
	return nil
}

// UnmarshalDynamoDBAttributeValue accepts an S, an SS, or an L of S values
func (l *LogLines) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	switch {
	case av == nil || aws.BoolValue(av.NULL):
		*l = nil
	case av.S != nil:
		*l = LogLines{aws.StringValue(av.S)}
	case av.SS != nil:
		*l = LogLines(aws.StringValueSlice(av.SS))
	case av.L != nil:
		lines := make(LogLines, 0, len(av.L))
		for _, item := range av.L {
			if item.S == nil {
				return fmt.Errorf("log entries must be strings")
			}
			lines = append(lines, aws.StringValue(item.S))
		}
		*l = lines
	default:
		return fmt.Errorf("unsupported attribute type for log")
	}
	return nil
}
