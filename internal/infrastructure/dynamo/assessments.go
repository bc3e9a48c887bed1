package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/healthtrack-api/internal/domain"
)

// AssessmentRepo provides typed DynamoDB operations for the assessments
// table. PK: assessment_id, GSI: identity_key-index. Every list/sync query
// goes through the identity GSI — there is no way to read across identities.
type AssessmentRepo struct {
	client    dynamoAPI
	tableName string
}

func NewAssessmentRepo(client *dynamodb.Client, tableName string) *AssessmentRepo {
	return &AssessmentRepo{client: client, tableName: tableName}
}

func (r *AssessmentRepo) Put(ctx context.Context, a *domain.Assessment) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Get fetches by primary key. Ownership is checked by the caller against the
// authenticated identity; this repo never filters by a client-supplied one.
func (r *AssessmentRepo) Get(ctx context.Context, assessmentID string) (*domain.Assessment, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("assessment_id", assessmentID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("assessment not found: %w", domain.ErrNotFound)
	}
	var a domain.Assessment
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepo) Delete(ctx context.Context, assessmentID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("assessment_id", assessmentID),
	})
	return err
}

// QueryPage returns one page of the identity's assessments, newest first by
// ULID order. cursor is a base64-encoded assessment_id used as
// ExclusiveStartKey; empty next cursor means no more pages.
func (r *AssessmentRepo) QueryPage(ctx context.Context, identityKey, formType string, limit int32, cursor string) ([]domain.Assessment, string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("identity_key-index"),
		KeyConditionExpression: aws.String("#k = :key"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldIdentityKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: identityKey},
		},
		Limit:            aws.Int32(limit),
		ScanIndexForward: aws.Bool(false),
	}
	if formType != "" {
		input.FilterExpression = aws.String("form_type = :ft")
		input.ExpressionAttributeValues[":ft"] = &types.AttributeValueMemberS{Value: formType}
	}
	if cursor != "" {
		id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", domain.ErrBadRequest)
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"assessment_id": &types.AttributeValueMemberS{Value: id},
			fieldIdentityKey: &types.AttributeValueMemberS{Value: identityKey},
		}
	}
	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, "", err
	}
	var assessments []domain.Assessment
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &assessments); err != nil {
		return nil, "", err
	}
	nextCursor := ""
	if v, ok := out.LastEvaluatedKey["assessment_id"].(*types.AttributeValueMemberS); ok {
		nextCursor = encodeCursor(v.Value)
	}
	return assessments, nextCursor, nil
}

// QuerySince returns the identity's assessments submitted after the given
// instant, optionally restricted to form types, for incremental mobile sync.
func (r *AssessmentRepo) QuerySince(ctx context.Context, identityKey string, since time.Time, formTypes []string, limit int32) ([]domain.Assessment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("identity_key-index"),
		KeyConditionExpression: aws.String("#k = :key"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldIdentityKey,
			"#d": "submission_date",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key":   &types.AttributeValueMemberS{Value: identityKey},
			":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339)},
		},
		Limit:            aws.Int32(limit),
		ScanIndexForward: aws.Bool(false),
	}
	filter := "#d > :since"
	if len(formTypes) > 0 {
		placeholders := ""
		for i, ft := range formTypes {
			ph := fmt.Sprintf(":ft%d", i)
			input.ExpressionAttributeValues[ph] = &types.AttributeValueMemberS{Value: ft}
			if i > 0 {
				placeholders += ", "
			}
			placeholders += ph
		}
		filter += " AND form_type IN (" + placeholders + ")"
	}
	input.FilterExpression = aws.String(filter)

	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	var assessments []domain.Assessment
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &assessments); err != nil {
		return nil, err
	}
	return assessments, nil
}

// QueryAll returns every assessment for the identity (profile statistics).
func (r *AssessmentRepo) QueryAll(ctx context.Context, identityKey string) ([]domain.Assessment, error) {
	var all []domain.Assessment
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String("identity_key-index"),
			KeyConditionExpression: aws.String("#k = :key"),
			ExpressionAttributeNames: map[string]string{
				"#k": fieldIdentityKey,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":key": &types.AttributeValueMemberS{Value: identityKey},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.Assessment
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if out.LastEvaluatedKey == nil {
			return all, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func encodeCursor(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
