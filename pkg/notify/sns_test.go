package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	snsiface.SNSAPI
	mock.Mock
}

func (m *mockSNS) PublishWithContext(ctx aws.Context, input *sns.PublishInput, opts ...request.Option) (*sns.PublishOutput, error) {
	args := m.Called(input)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, args.Error(0)
}

func TestSNSNotifier(t *testing.T) {
	client := new(mockSNS)
	client.On("PublishWithContext", mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.StringValue(in.TopicArn) == "arn:aws:sns:us-east-1:1:drs" &&
			aws.StringValue(in.Subject) == "Execution started" &&
			aws.StringValue(in.Message) == `{"executionArn":"arn:exec"}`
	})).Return(nil).Once()

	n := NewSNSNotifier(client)
	err := n.Notify(context.Background(), "arn:aws:sns:us-east-1:1:drs", "Execution started",
		map[string]string{"executionArn": "arn:exec"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSNSNotifierError(t *testing.T) {
	client := new(mockSNS)
	client.On("PublishWithContext", mock.Anything).Return(errors.New("NotFound")).Once()

	err := NewSNSNotifier(client).Notify(context.Background(), "arn:missing", "s", struct{}{})
	assert.ErrorContains(t, err, "arn:missing")
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard{}.Notify(context.Background(), "", "", nil))
}
