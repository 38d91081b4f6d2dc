package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStateMachine = "arn:aws:states:us-east-1:123456789012:stateMachine:DRS-Orchestrator"

type mockSFN struct {
	sfniface.SFNAPI
	mock.Mock
}

func (m *mockSFN) StartExecutionWithContext(ctx aws.Context, input *sfn.StartExecutionInput, opts ...request.Option) (*sfn.StartExecutionOutput, error) {
	args := m.Called(ctx, input)
	if out := args.Get(0); out != nil {
		return out.(*sfn.StartExecutionOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSFNStarter(t *testing.T) {
	client := new(mockSFN)
	starter, err := NewSFNStarter(client, testStateMachine)
	require.NoError(t, err)

	startDate := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	client.On("StartExecutionWithContext", mock.Anything, mock.MatchedBy(func(in *sfn.StartExecutionInput) bool {
		return aws.StringValue(in.StateMachineArn) == testStateMachine &&
			aws.StringValue(in.Name) == "run-1" &&
			aws.StringValue(in.Input) == `{"Applications":[]}`
	})).Return(&sfn.StartExecutionOutput{
		ExecutionArn: aws.String(ExecutionArn(testStateMachine, "run-1")),
		StartDate:    aws.Time(startDate),
	}, nil).Once()

	started, err := starter.Start(context.Background(), "run-1", `{"Applications":[]}`)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:states:us-east-1:123456789012:execution:DRS-Orchestrator:run-1", started.ExecutionArn)
	assert.Equal(t, startDate, started.StartDate)
	client.AssertExpectations(t)
}

func TestSFNStarterError(t *testing.T) {
	client := new(mockSFN)
	starter, err := NewSFNStarter(client, testStateMachine)
	require.NoError(t, err)

	client.On("StartExecutionWithContext", mock.Anything, mock.Anything).
		Return(nil, errors.New("AccessDeniedException")).Once()

	_, err = starter.Start(context.Background(), "run-1", "{}")
	assert.ErrorContains(t, err, "AccessDeniedException")
}

func TestNewSFNStarterRequiresArn(t *testing.T) {
	_, err := NewSFNStarter(new(mockSFN), "")
	assert.ErrorIs(t, err, ErrMissingStateMachine)
}

func TestMemoryStarter(t *testing.T) {
	starter := NewMemoryStarter(testStateMachine)
	ctx := context.Background()

	started, err := starter.Start(ctx, "a", `{"n":1}`)
	require.NoError(t, err)
	assert.Equal(t, ExecutionArn(testStateMachine, "a"), started.ExecutionArn)
	assert.False(t, started.StartDate.IsZero())

	_, err = starter.Start(ctx, "a", `{"n":2}`)
	assert.Error(t, err)

	_, err = starter.Start(ctx, "b", `{"n":3}`)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, `{"n":3}`}, starter.Inputs())

	starter.Err = errors.New("throttled")
	_, err = starter.Start(ctx, "c", "{}")
	assert.EqualError(t, err, "throttled")
}

func TestExecutionArn(t *testing.T) {
	assert.Equal(t, "arn:aws:states:eu-west-1:1:execution:sm:x", ExecutionArn("arn:aws:states:eu-west-1:1:stateMachine:sm", "x"))
	assert.Equal(t, "custom:x", ExecutionArn("custom", "x"))
}
