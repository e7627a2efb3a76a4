// Package dynamodb implements a bounded admission queue on a DynamoDB lease table, for
// submitters that do not share a filesystem.
package dynamodb

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/pkg/log"
	"golang.org/x/sync/semaphore"
)

// DynamoDB only allows 10 table creates/deletes simultaneously. To ensure we don't hit this error, especially when
// many submitters start at once against a fresh account, table operations go through a semaphore.
const dynamoParallelOperations = 10

var tableCreateDeleteSemaphore = semaphore.NewWeighted(dynamoParallelOperations) //nolint:gochecknoglobals

// AttrLockID is the name of the primary key for the lease table.
const AttrLockID = "LockID"

const (
	attrOwner     = "Owner"
	attrExpiresAt = "ExpiresAt"
	attrHost      = "Host"
	attrPID       = "Pid"
)

// MaxRetriesWaitingForTableToBeActive is the maximum number of times we
// will retry waiting for a table to be active.
//
// Default is to retry for up to 5 minutes
const MaxRetriesWaitingForTableToBeActive = 30

// SleepBetweenTableStatusChecks is the amount of time we will sleep between
// checks to see if a table is active.
const SleepBetweenTableStatusChecks = 10 * time.Second

// Client is the subset of the DynamoDB API the lease table uses.
type Client interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	TagResource(ctx context.Context, params *dynamodb.TagResourceInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TagResourceOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// NewClient creates an authenticated client for DynamoDB from the default credential chain.
func NewClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	var opts []func(*config.LoadOptions) error

	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "Error finding AWS credentials")
	}

	return dynamodb.NewFromConfig(cfg), nil
}

// CreateLeaseTableIfNecessary creates the lease table in DynamoDB if it doesn't already exist.
func CreateLeaseTableIfNecessary(ctx context.Context, logger log.Logger, client Client, tableName string, tags map[string]string) error {
	tableExists, err := LeaseTableExistsAndIsActive(ctx, client, tableName)
	if err != nil {
		return err
	}

	if !tableExists {
		logger.Debugf("Lease table %s does not exist in DynamoDB. Will need to create it just this first time.", tableName)
		return CreateLeaseTable(ctx, logger, client, tableName, tags)
	}

	return nil
}

// LeaseTableExistsAndIsActive returns true if the lease table exists in DynamoDB and is in "active" state.
func LeaseTableExistsAndIsActive(ctx context.Context, client Client, tableName string) (bool, error) {
	output, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, errors.New(err)
	}

	return output.Table != nil && output.Table.TableStatus == types.TableStatusActive, nil
}

// CreateLeaseTable creates the lease table in DynamoDB and waits until it is in "active" state.
// If the table already exists, merely wait until it is in "active" state.
func CreateLeaseTable(ctx context.Context, logger log.Logger, client Client, tableName string, tags map[string]string) error {
	if err := tableCreateDeleteSemaphore.Acquire(ctx, 1); err != nil {
		return errors.New(err)
	}
	defer tableCreateDeleteSemaphore.Release(1)

	logger.Debugf("Creating table %s in DynamoDB", tableName)

	createTableOutput, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(AttrLockID), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(AttrLockID), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		if !isTableAlreadyBeingCreatedOrUpdatedError(err) {
			return errors.New(err)
		}

		logger.Debugf("Looks like someone created table %s at the same time. Will wait for it to be in active state.", tableName)
	}

	if err := waitForTableToBeActive(ctx, logger, client, tableName, MaxRetriesWaitingForTableToBeActive, SleepBetweenTableStatusChecks, SleepBetweenTableStatusChecks); err != nil {
		return err
	}

	if createTableOutput != nil && createTableOutput.TableDescription != nil && createTableOutput.TableDescription.TableArn != nil {
		// Do not tag in case somebody else had created the table
		if err := tagTableIfTagsGiven(ctx, logger, client, createTableOutput.TableDescription.TableArn, tags); err != nil {
			return errors.New(err)
		}
	}

	return nil
}

func tagTableIfTagsGiven(ctx context.Context, logger log.Logger, client Client, tableArn *string, tags map[string]string) error {
	if len(tags) == 0 {
		logger.Debugf("No tags for lease table given.")
		return nil
	}

	logger.Debugf("Adding tags to lease table: %s", tags)

	tagsConverted := make([]types.Tag, 0, len(tags))

	for k, v := range tags {
		tagsConverted = append(tagsConverted, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}

	_, err := client.TagResource(ctx, &dynamodb.TagResourceInput{
		ResourceArn: tableArn,
		Tags:        tagsConverted,
	})

	return err
}

// DeleteTable deletes the given table in DynamoDB.
func DeleteTable(ctx context.Context, client Client, tableName string) error {
	const maxAttempts = 5

	if err := tableCreateDeleteSemaphore.Acquire(ctx, 1); err != nil {
		return errors.New(err)
	}
	defer tableCreateDeleteSemaphore.Release(1)

	// A table whose tags are still being updated rejects the delete with ResourceInUseException.
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)}, func(o *dynamodb.Options) {
		o.Retryer = retry.AddWithErrorCodes(retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts), "ResourceInUseException")
	})

	return errors.WithStackTrace(err)
}

// Return true if the given error is the error message returned by AWS when the resource already exists and is being
// updated by someone else
func isTableAlreadyBeingCreatedOrUpdatedError(err error) bool {
	var apiErr smithy.APIError

	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceInUseException"
}

// waitForTableToBeActive waits for the given table to be in "active" state, sleeping a random amount
// of time between sleepMin and sleepMax between checks. The jitter avoids an AWS issue where all
// waiting requests fire at the same time and trip the "subscriber limit exceeded" error.
func waitForTableToBeActive(ctx context.Context, logger log.Logger, client Client, tableName string, maxRetries int, sleepMin, sleepMax time.Duration) error {
	for range maxRetries {
		tableReady, err := LeaseTableExistsAndIsActive(ctx, client, tableName)
		if err != nil {
			return err
		}

		if tableReady {
			logger.Debugf("Success! Table %s is now in active state.", tableName)
			return nil
		}

		sleep := sleepMin
		if sleepMax > sleepMin {
			sleep += rand.N(sleepMax - sleepMin) //nolint:gosec
		}

		logger.Debugf("Table %s is not yet in active state. Will check again after %s.", tableName, sleep)

		select {
		case <-ctx.Done():
			return errors.New(ctx.Err())
		case <-time.After(sleep):
		}
	}

	return errors.New(TableActiveRetriesExceeded{TableName: tableName, Retries: maxRetries})
}

// TableActiveRetriesExceeded is returned when a table never reaches the active state.
type TableActiveRetriesExceeded struct {
	TableName string
	Retries   int
}

func (err TableActiveRetriesExceeded) Error() string {
	return fmt.Sprintf("Table %s is still not in active state after %d retries.", err.TableName, err.Retries)
}
