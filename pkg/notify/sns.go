// Package notify publishes execution notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
)

// Notifier publishes a message to a topic
type Notifier interface {
	Notify(ctx context.Context, topicArn, subject string, payload interface{}) error
}

// SNSNotifier publishes JSON messages to SNS topics
type SNSNotifier struct {
	client snsiface.SNSAPI
}

// NewSNSNotifier creates a notifier over an SNS client
func NewSNSNotifier(client snsiface.SNSAPI) *SNSNotifier {
	return &SNSNotifier{client: client}
}

// Notify publishes payload as JSON
func (n *SNSNotifier) Notify(ctx context.Context, topicArn, subject string, payload interface{}) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = n.client.PublishWithContext(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(string(message)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topicArn, err)
	}
	return nil
}

// Discard drops every notification
type Discard struct{}

// Notify does nothing
func (Discard) Notify(ctx context.Context, topicArn, subject string, payload interface{}) error {
	return nil
}
