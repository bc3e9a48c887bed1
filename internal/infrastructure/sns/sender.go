package sns

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/healthtrack-api/internal/config"
	"github.com/healthtrack-api/internal/domain"
)

// AlertPublisher pushes high-severity security events (ownership violations,
// suspicious clients) to an SNS topic for operator attention. Publishing is
// best-effort and never blocks or fails the request path.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, ev *domain.AuditEvent) error
}

type publisher struct {
	client   *sns.Client
	topicARN string
}

func NewPublisher(cfg *config.Config) (AlertPublisher, error) {
	if cfg.AlertTopicARN == "" {
		return nil, fmt.Errorf("ALERT_TOPIC_ARN is not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return &publisher{client: sns.NewFromConfig(awsCfg), topicARN: cfg.AlertTopicARN}, nil
}

func (p *publisher) PublishAlert(ctx context.Context, ev *domain.AuditEvent) error {
	msg := fmt.Sprintf("security event %s: type=%s identity=%s context=%s",
		ev.EventID, ev.EventType, ev.IdentityKey, ev.Context)
	subject := "healthtrack security alert: " + ev.EventType
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &p.topicARN,
		Subject:  &subject,
		Message:  &msg,
	})
	return err
}
