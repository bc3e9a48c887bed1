package dynamo

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo scripts the DynamoDB calls a repo makes. Unset methods return
// empty results.
type fakeDynamo struct {
	putFn    func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	getFn    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	updateFn func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	deleteFn func(*dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
	scanFn   func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	queryFn  func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putFn == nil {
		return &dynamodb.PutItemOutput{}, nil
	}
	return f.putFn(in)
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getFn == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getFn(in)
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateFn == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updateFn(in)
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteFn == nil {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	return f.deleteFn(in)
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.scanFn == nil {
		return &dynamodb.ScanOutput{}, nil
	}
	return f.scanFn(in)
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryFn == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryFn(in)
}

func ccfErr() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
}

func auditItem(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"event_id":     &types.AttributeValueMemberS{Value: eventID},
		"identity_key": &types.AttributeValueMemberS{Value: "abc123"},
		"event_type":   &types.AttributeValueMemberS{Value: "login-success"},
		"success":      &types.AttributeValueMemberBOOL{Value: true},
		"created_at":   &types.AttributeValueMemberS{Value: "2026-01-01T00:00:00Z"},
	}
}

func strItem(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// Scan applies its size limits before the filter, so matches can sit beyond
// the first page. The listing must keep following LastEvaluatedKey.
func TestListOlderThan_FollowsScanPagination(t *testing.T) {
	marker := strItem("event_id", "page-marker")
	calls := 0
	fake := &fakeDynamo{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			calls++
			switch calls {
			case 1:
				require.Nil(t, in.ExclusiveStartKey)
				// First page holds no matches at all.
				return &dynamodb.ScanOutput{LastEvaluatedKey: marker}, nil
			case 2:
				require.Equal(t, marker, in.ExclusiveStartKey)
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{auditItem("ev-1"), auditItem("ev-2")},
				}, nil
			default:
				t.Fatalf("unexpected scan call %d", calls)
				return nil, nil
			}
		},
	}
	repo := &AuditRepo{client: fake, tableName: "audit"}

	events, err := repo.ListOlderThan(context.Background(), time.Now(), 200)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].EventID)
	assert.Equal(t, "ev-2", events[1].EventID)
	assert.Equal(t, 2, calls)
}

func TestListOlderThan_StopsAtLimit(t *testing.T) {
	marker := strItem("event_id", "page-marker")
	calls := 0
	fake := &fakeDynamo{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			calls++
			return &dynamodb.ScanOutput{
				Items:            []map[string]types.AttributeValue{auditItem("ev-1"), auditItem("ev-2")},
				LastEvaluatedKey: marker,
			}, nil
		},
	}
	repo := &AuditRepo{client: fake, tableName: "audit"}

	events, err := repo.ListOlderThan(context.Background(), time.Now(), 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 2, calls)
}

func TestListByIdentity_QueriesIdentityIndex(t *testing.T) {
	var seen *dynamodb.QueryInput
	fake := &fakeDynamo{
		queryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			seen = in
			return &dynamodb.QueryOutput{
				Items: []map[string]types.AttributeValue{auditItem("ev-9"), auditItem("ev-8")},
			}, nil
		},
	}
	repo := &AuditRepo{client: fake, tableName: "audit"}

	events, err := repo.ListByIdentity(context.Background(), "abc123", 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-9", events[0].EventID)

	require.NotNil(t, seen)
	assert.Equal(t, "identity_key-index", aws.ToString(seen.IndexName))
	assert.False(t, aws.ToBool(seen.ScanIndexForward))
	assert.Equal(t, int32(50), aws.ToInt32(seen.Limit))
}

func TestVerificationDeleteExpired_SweepsAllPages(t *testing.T) {
	marker := strItem(fieldIdentityKey, "k1")
	scans := 0
	var deleted []string
	fake := &fakeDynamo{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			scans++
			if scans == 1 {
				return &dynamodb.ScanOutput{
					Items:            []map[string]types.AttributeValue{strItem(fieldIdentityKey, "k1")},
					LastEvaluatedKey: marker,
				}, nil
			}
			return &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{strItem(fieldIdentityKey, "k2")},
			}, nil
		},
		deleteFn: func(in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
			key := in.Key[fieldIdentityKey].(*types.AttributeValueMemberS)
			deleted = append(deleted, key.Value)
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}
	repo := &VerificationRepo{client: fake, tableName: "codes"}

	n, err := repo.DeleteExpired(context.Background(), time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"k1", "k2"}, deleted)
	assert.Equal(t, 2, scans)
}

func TestSessionDeleteExpired_SweepsAllPages(t *testing.T) {
	marker := strItem(fieldIdentityKey, "k1")
	scans := 0
	deletes := 0
	fake := &fakeDynamo{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			scans++
			out := &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{strItem(fieldIdentityKey, "k1")},
			}
			if scans == 1 {
				out.LastEvaluatedKey = marker
			}
			return out, nil
		},
		deleteFn: func(in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
			deletes++
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}
	repo := &SessionRepo{client: fake, tableName: "sessions"}

	n, err := repo.DeleteExpired(context.Background(), time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, deletes)
}

func TestRateLimitDeleteStale_SweepsAllPages(t *testing.T) {
	marker := strItem(fieldIdentifier, "id1")
	scans := 0
	deletes := 0
	fake := &fakeDynamo{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			scans++
			out := &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{strItem(fieldIdentifier, "id1")},
			}
			if scans == 1 {
				out.LastEvaluatedKey = marker
			}
			return out, nil
		},
		deleteFn: func(in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
			deletes++
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}
	repo := &RateLimitRepo{client: fake, tableName: "limits"}

	n, err := repo.DeleteStale(context.Background(), time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, deletes)
}

// Two requests racing to reset a lapsed window: the loser of the PutItem
// condition lands in a fresh window with room to spare and must be admitted,
// not refused.
func TestCheckAndRecord_RetriesIncrementAfterLostWindowReset(t *testing.T) {
	updates := 0
	puts := 0
	fake := &fakeDynamo{
		updateFn: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			updates++
			if updates == 1 {
				// Window had lapsed when we looked.
				return nil, ccfErr()
			}
			return &dynamodb.UpdateItemOutput{}, nil
		},
		putFn: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			puts++
			// A concurrent request reset the window first.
			return nil, ccfErr()
		},
	}
	repo := &RateLimitRepo{client: fake, tableName: "limits"}

	allowed, err := repo.CheckAndRecord(context.Background(), "ip:abc", 5, time.Minute, time.Now())
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2, updates)
	assert.Equal(t, 1, puts)
}

func TestCheckAndRecord_DeniesWhenRetriedWindowIsFull(t *testing.T) {
	fake := &fakeDynamo{
		updateFn: func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, ccfErr()
		},
		putFn: func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
			return nil, ccfErr()
		},
	}
	repo := &RateLimitRepo{client: fake, tableName: "limits"}

	allowed, err := repo.CheckAndRecord(context.Background(), "ip:abc", 5, time.Minute, time.Now())
	require.NoError(t, err)
	assert.False(t, allowed)
}
