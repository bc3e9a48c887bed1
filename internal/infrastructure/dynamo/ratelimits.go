package dynamo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RateLimitRepo is a durable fixed-window request counter, one item per
// identifier. Both paths below are single conditional writes, so concurrent
// requests for the same identifier can never both slip past the limit — one
// of any two racing increments loses the condition check.
type RateLimitRepo struct {
	client    dynamoAPI
	tableName string
}

func NewRateLimitRepo(client *dynamodb.Client, tableName string) *RateLimitRepo {
	return &RateLimitRepo{client: client, tableName: tableName}
}

const fieldIdentifier = "identifier"

// CheckAndRecord counts this request against the identifier's window.
// Returns true (and records the request) while the window holds fewer than
// limit requests; returns false without recording once the limit is reached.
// Identifiers are independent: a tripped window for one never affects another.
func (r *RateLimitRepo) CheckAndRecord(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (bool, error) {
	cutoff := now.Add(-window).Unix()

	// Fast path: increment inside a live window that still has room.
	ok, err := r.tryIncrement(ctx, identifier, limit, cutoff)
	if ok || err != nil {
		return ok, err
	}

	// Either no window exists yet or the old one has lapsed. Try to start a
	// fresh window; the condition rejects the reset while a live window is
	// still in place.
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			fieldIdentifier:   &types.AttributeValueMemberS{Value: identifier},
			fieldWindowStart:  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			fieldRequestCount: &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #w <= :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#id": fieldIdentifier,
			"#w":  fieldWindowStart,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
		},
	})
	if err == nil {
		return true, nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return false, err
	}

	// A concurrent request won the reset between our two writes. The fresh
	// window it started may still have room, so retry the increment once;
	// a second condition failure means the live window really is full.
	return r.tryIncrement(ctx, identifier, limit, cutoff)
}

// tryIncrement adds one request to a live window with remaining capacity.
// Returns false with a nil error when the condition fails, which covers a
// missing item, a lapsed window, and a window at the limit alike.
func (r *RateLimitRepo) tryIncrement(ctx context.Context, identifier string, limit int, cutoff int64) (bool, error) {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentifier, identifier),
		UpdateExpression:    aws.String("ADD #c :one"),
		ConditionExpression: aws.String("attribute_exists(#id) AND #w > :cutoff AND #c < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#c":  fieldRequestCount,
			"#w":  fieldWindowStart,
			"#id": fieldIdentifier,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":    &types.AttributeValueMemberN{Value: "1"},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
			":limit":  &types.AttributeValueMemberN{Value: strconv.Itoa(limit)},
		},
	})
	if err == nil {
		return true, nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return false, nil
	}
	return false, err
}

// DeleteStale removes windows that lapsed before the cutoff. A stale window
// is never consulted by CheckAndRecord, so the sweep is safe to interleave
// with request handling.
func (r *RateLimitRepo) DeleteStale(ctx context.Context, cutoffUnix int64) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(r.tableName),
		FilterExpression:     aws.String("#w < :cutoff"),
		ProjectionExpression: aws.String("#id"),
		ExpressionAttributeNames: map[string]string{
			"#w":  fieldWindowStart,
			"#id": fieldIdentifier,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoffUnix, 10)},
		},
	}
	deleted := 0
	err := forEachScanPage(ctx, r.client, input, func(items []map[string]types.AttributeValue) error {
		for _, item := range items {
			idAttr, ok := item[fieldIdentifier].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       strKey(fieldIdentifier, idAttr.Value),
			}); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
