package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/healthtrack-api/internal/domain"
)

// SessionRepo provides typed DynamoDB operations for the sessions table.
// PK: identity_key — at most one session per identity. Put is therefore the
// whole create-or-replace operation: a second login overwrites the first
// session in one atomic write.
type SessionRepo struct {
	client    dynamoAPI
	tableName string
}

func NewSessionRepo(client *dynamodb.Client, tableName string) *SessionRepo {
	return &SessionRepo{client: client, tableName: tableName}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SessionRepo) Get(ctx context.Context, identityKey string) (*domain.Session, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIdentityKey, identityKey),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	var s domain.Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Revoke deactivates the identity's session (logout, or a security response).
func (r *SessionRepo) Revoke(ctx context.Context, identityKey string) error {
	return r.update(ctx, identityKey, map[string]interface{}{fieldActive: false})
}

// TouchLastAccessed records request activity on the session.
func (r *SessionRepo) TouchLastAccessed(ctx context.Context, identityKey string, at time.Time) error {
	return r.update(ctx, identityKey, map[string]interface{}{
		fieldLastAccessed: at.UTC().Format(time.RFC3339),
	})
}

func (r *SessionRepo) update(ctx context.Context, identityKey string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldIdentityKey, identityKey),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// DeleteExpired removes sessions whose refresh window has lapsed. Rows past
// refresh expiry can no longer be validated or refreshed, so the sweep can
// interleave freely with request handling.
func (r *SessionRepo) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#re < :now"),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#re": fieldRefreshExpiresAt,
			"#k":  fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(nowUnix, 10)},
		},
	}
	deleted := 0
	err := forEachScanPage(ctx, r.client, input, func(items []map[string]types.AttributeValue) error {
		for _, item := range items {
			keyAttr, ok := item[fieldIdentityKey].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       strKey(fieldIdentityKey, keyAttr.Value),
			}); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
