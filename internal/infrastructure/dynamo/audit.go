package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/healthtrack-api/internal/domain"
)

// AuditRepo is the append-only audit trail. PK: event_id (ULID). Rows are
// only ever inserted here; the retention sweep is the single delete path.
type AuditRepo struct {
	client    dynamoAPI
	tableName string
}

func NewAuditRepo(client *dynamodb.Client, tableName string) *AuditRepo {
	return &AuditRepo{client: client, tableName: tableName}
}

func (r *AuditRepo) Append(ctx context.Context, ev *domain.AuditEvent) error {
	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListOlderThan returns up to limit events created before the cutoff, for the
// retention sweep to archive and delete. Scan evaluates its size cap before
// the filter, so the scan is walked page by page until enough matches
// accumulate or the table is exhausted.
func (r *AuditRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]domain.AuditEvent, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("#c < :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCreatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
		},
	}
	var events []domain.AuditEvent
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, err
		}
		var page []domain.AuditEvent
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		events = append(events, page...)
		if int32(len(events)) >= limit {
			return events[:limit], nil
		}
		if out.LastEvaluatedKey == nil {
			return events, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ListByIdentity returns the most recent events recorded for one identity,
// newest first, via the identity_key-index.
func (r *AuditRepo) ListByIdentity(ctx context.Context, identityKey string, limit int32) ([]domain.AuditEvent, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("identity_key-index"),
		KeyConditionExpression: aws.String("#k = :k"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: identityKey},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	var events []domain.AuditEvent
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *AuditRepo) Delete(ctx context.Context, eventID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("event_id", eventID),
	})
	return err
}
