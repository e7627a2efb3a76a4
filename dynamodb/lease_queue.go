package dynamodb

import (
	"context"
	"math/rand/v2"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/internal/queue"
	"github.com/gruntwork-io/clusterflow/pkg/log"
)

// LeaseQueue is a queue.Queue whose slots are items `<name>#<i>` in a DynamoDB table. A slot is
// free when its item is missing or its lease has expired; claiming and releasing are
// conditional writes, so any number of hosts can share the table.
type LeaseQueue struct {
	logger   log.Logger
	client   Client
	table    string
	name     string
	capacity int
	ttl      time.Duration
	now      func() time.Time
	host     string
	pid      int

	mu     sync.Mutex
	ticket string
	slot   string
}

// LeaseOption configures a LeaseQueue.
type LeaseOption func(*LeaseQueue)

// WithLeaseTTL sets the slot lease duration.
func WithLeaseTTL(ttl time.Duration) LeaseOption {
	return func(q *LeaseQueue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LeaseOption {
	return func(q *LeaseQueue) {
		q.now = now
	}
}

// NewLeaseQueue returns a queue named name with the given capacity, stored in table.
func NewLeaseQueue(logger log.Logger, client Client, table, name string, capacity int, opts ...LeaseOption) *LeaseQueue {
	host, _ := os.Hostname()

	q := &LeaseQueue{
		logger:   logger.WithField(log.FieldKeyPrefix, name),
		client:   client,
		table:    table,
		name:     name,
		capacity: capacity,
		ttl:      queue.DefaultLeaseTTL,
		now:      time.Now,
		host:     host,
		pid:      os.Getpid(),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// LeaseTTL returns the slot lease duration.
func (q *LeaseQueue) LeaseTTL() time.Duration {
	return q.ttl
}

func (q *LeaseQueue) Enter(ctx context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket != "" {
		return true, nil
	}

	ticket := uuid.NewString()

	// Start probing at a random slot so concurrent submitters do not all race for slot 0.
	offset := rand.IntN(max(q.capacity, 1)) //nolint:gosec

	for i := range q.capacity {
		slot := q.slotID((offset + i) % q.capacity)
		now := q.now()

		_, err := q.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(q.table),
			Item: map[string]types.AttributeValue{
				AttrLockID:    &types.AttributeValueMemberS{Value: slot},
				attrOwner:     &types.AttributeValueMemberS{Value: ticket},
				attrExpiresAt: millis(now.Add(q.ttl)),
				attrHost:      &types.AttributeValueMemberS{Value: q.host},
				attrPID:       &types.AttributeValueMemberN{Value: strconv.Itoa(q.pid)},
			},
			ConditionExpression: aws.String("attribute_not_exists(#id) OR #expires < :now"),
			ExpressionAttributeNames: map[string]string{
				"#id":      AttrLockID,
				"#expires": attrExpiresAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": millis(now),
			},
		})
		if isConditionFailed(err) {
			continue
		}

		if err != nil {
			return false, errors.WithStackTraceAndPrefix(err, "claiming %s in table %s", slot, q.table)
		}

		q.ticket = ticket
		q.slot = slot

		q.logger.Debugf("Entered queue, holding slot %s with ticket %s", slot, ticket)

		return true, nil
	}

	q.logger.Debugf("Queue is full (%d slots)", q.capacity)

	return false, nil
}

func (q *LeaseQueue) Exit(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket == "" {
		return nil
	}

	_, err := q.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(q.table),
		Key:                       q.key(),
		ConditionExpression:       aws.String("#owner = :owner"),
		ExpressionAttributeNames:  map[string]string{"#owner": attrOwner},
		ExpressionAttributeValues: map[string]types.AttributeValue{":owner": &types.AttributeValueMemberS{Value: q.ticket}},
	})

	switch {
	case isConditionFailed(err):
		q.logger.Debugf("Slot %s was already taken over, nothing to release", q.slot)
	case err != nil:
		return errors.WithStackTraceAndPrefix(err, "releasing %s in table %s", q.slot, q.table)
	default:
		q.logger.Debugf("Exited queue, released slot %s", q.slot)
	}

	q.ticket = ""
	q.slot = ""

	return nil
}

func (q *LeaseQueue) Refresh(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ticket == "" {
		return nil
	}

	_, err := q.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(q.table),
		Key:                      q.key(),
		UpdateExpression:         aws.String("SET #expires = :expires"),
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": attrOwner, "#expires": attrExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner":   &types.AttributeValueMemberS{Value: q.ticket},
			":expires": millis(q.now().Add(q.ttl)),
		},
	})
	if isConditionFailed(err) {
		return errors.Errorf("slot %s: %w", q.slot, queue.ErrSlotLost)
	}

	return errors.WithStackTrace(err)
}

func (q *LeaseQueue) slotID(i int) string {
	return q.name + "#" + strconv.Itoa(i)
}

func (q *LeaseQueue) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrLockID: &types.AttributeValueMemberS{Value: q.slot},
	}
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func isConditionFailed(err error) bool {
	var conditionFailed *types.ConditionalCheckFailedException

	return err != nil && errors.As(err, &conditionFailed)
}
