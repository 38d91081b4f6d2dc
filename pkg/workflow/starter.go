// Package workflow starts runs of the recovery state machine.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
)

// ErrMissingStateMachine is returned when no state machine ARN is configured
var ErrMissingStateMachine = errors.New("state machine ARN is not configured")

// Started describes a workflow run accepted by the workflow service
type Started struct {
	ExecutionArn string
	StartDate    time.Time
}

// Starter starts one workflow run
type Starter interface {
	// Start begins a run with the given unique name and JSON input
	Start(ctx context.Context, name, input string) (Started, error)

	// StateMachineArn identifies the workflow the runs belong to
	StateMachineArn() string
}

// SFNStarter starts AWS Step Functions executions
type SFNStarter struct {
	client          sfniface.SFNAPI
	stateMachineArn string
}

// NewSFNStarter creates a starter for one state machine
func NewSFNStarter(client sfniface.SFNAPI, stateMachineArn string) (*SFNStarter, error) {
	if stateMachineArn == "" {
		return nil, ErrMissingStateMachine
	}
	return &SFNStarter{client: client, stateMachineArn: stateMachineArn}, nil
}

// StateMachineArn returns the configured state machine
func (s *SFNStarter) StateMachineArn() string {
	return s.stateMachineArn
}

// Start calls StartExecution
func (s *SFNStarter) Start(ctx context.Context, name, input string) (Started, error) {
	out, err := s.client.StartExecutionWithContext(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.stateMachineArn),
		Name:            aws.String(name),
		Input:           aws.String(input),
	})
	if err != nil {
		return Started{}, fmt.Errorf("failed to start execution %s: %w", name, err)
	}

	return Started{
		ExecutionArn: aws.StringValue(out.ExecutionArn),
		StartDate:    aws.TimeValue(out.StartDate),
	}, nil
}

// MemoryStarter records runs without calling AWS. It backs local servers and tests.
type MemoryStarter struct {
	mu              sync.Mutex
	stateMachineArn string
	runs            map[string]string
	order           []string

	// Err, when set, fails every Start
	Err error
}

// NewMemoryStarter creates an in-memory starter
func NewMemoryStarter(stateMachineArn string) *MemoryStarter {
	if stateMachineArn == "" {
		stateMachineArn = "arn:aws:states:local:000000000000:stateMachine:drsplan"
	}
	return &MemoryStarter{
		stateMachineArn: stateMachineArn,
		runs:            make(map[string]string),
	}
}

// StateMachineArn returns the configured state machine
func (s *MemoryStarter) StateMachineArn() string {
	return s.stateMachineArn
}

// Start records the run. Names must be unique, as in Step Functions.
func (s *MemoryStarter) Start(ctx context.Context, name, input string) (Started, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return Started{}, s.Err
	}
	if _, exists := s.runs[name]; exists {
		return Started{}, fmt.Errorf("execution %s already exists", name)
	}

	s.runs[name] = input
	s.order = append(s.order, name)
	return Started{
		ExecutionArn: ExecutionArn(s.stateMachineArn, name),
		StartDate:    time.Now().UTC(),
	}, nil
}

// Inputs returns the input of every run in start order
func (s *MemoryStarter) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputs := make([]string, 0, len(s.order))
	for _, name := range s.order {
		inputs = append(inputs, s.runs[name])
	}
	return inputs
}

// ExecutionArn derives the ARN Step Functions assigns to a named run
// ("...:stateMachine:X" becomes "...:execution:X:name")
func ExecutionArn(stateMachineArn, name string) string {
	const marker = ":stateMachine:"
	if i := strings.Index(stateMachineArn, marker); i >= 0 {
		return stateMachineArn[:i] + ":execution:" + stateMachineArn[i+len(marker):] + ":" + name
	}
	return stateMachineArn + ":" + name
}
