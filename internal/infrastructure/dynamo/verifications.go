package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/healthtrack-api/internal/domain"
)

// VerificationRepo manages one-time verification codes.
// PK: identity_key — one item per identity, so Put atomically invalidates any
// prior live code for that identity.
type VerificationRepo struct {
	client    dynamoAPI
	tableName string
}

func NewVerificationRepo(client *dynamodb.Client, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName}
}

// Put stores a fresh code, replacing whatever was there before.
func (r *VerificationRepo) Put(ctx context.Context, v *domain.VerificationCode) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal verification code: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *VerificationRepo) Get(ctx context.Context, identityKey string) (*domain.VerificationCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldIdentityKey, identityKey),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	var v domain.VerificationCode
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// IncrementAttempts bumps the attempt counter by one in a single atomic
// UpdateItem and returns the new value. Two concurrent verify calls can never
// observe the same count.
func (r *VerificationRepo) IncrementAttempts(ctx context.Context, identityKey string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentityKey, identityKey),
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#k": fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
		}
		return 0, err
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attempts attribute missing from update response")
	}
	attempts, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attempts: %w", err)
	}
	return attempts, nil
}

// Consume marks the code used. The condition beats a concurrent consumer: of
// two racing requests only one sees used=false, so a code can produce at most
// one Success even under contention.
func (r *VerificationRepo) Consume(ctx context.Context, identityKey string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentityKey, identityKey),
		UpdateExpression:    aws.String("SET #u = :t"),
		ConditionExpression: aws.String("attribute_exists(#k) AND #u = :f"),
		ExpressionAttributeNames: map[string]string{
			"#u": fieldUsed,
			"#k": fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("code already consumed: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

// DeleteExpired removes codes that are past their expiry or already used.
// Called from the sweeper; never touches a row a live verification could
// still succeed against.
func (r *VerificationRepo) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#e < :now OR #u = :t"),
		ProjectionExpression: aws.String("#k"),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldExpiresAt,
			"#u": fieldUsed,
			"#k": fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(nowUnix, 10)},
			":t":   &types.AttributeValueMemberBOOL{Value: true},
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
