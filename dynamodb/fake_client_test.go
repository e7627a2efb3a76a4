package dynamodb_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeClient is an in-memory stand-in for DynamoDB that evaluates the conditions the lease
// table issues.
type fakeClient struct {
	mu      sync.Mutex
	tables  map[string]types.TableStatus
	tags    map[string][]types.Tag
	items   map[string]map[string]types.AttributeValue
	creates int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tables: map[string]types.TableStatus{},
		tags:   map[string][]types.Tag{},
		items:  map[string]map[string]types.AttributeValue{},
	}
}

func (c *fakeClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.tables[aws.ToString(in.TableName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such table")}
	}

	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName, TableStatus: status}}, nil
}

func (c *fakeClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := aws.ToString(in.TableName)
	if _, ok := c.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists")}
	}

	c.tables[name] = types.TableStatusActive
	c.creates++

	return &dynamodb.CreateTableOutput{TableDescription: &types.TableDescription{
		TableName: in.TableName,
		TableArn:  aws.String("arn:aws:dynamodb:us-east-1:000000000000:table/" + name),
	}}, nil
}

func (c *fakeClient) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tables, aws.ToString(in.TableName))

	return &dynamodb.DeleteTableOutput{}, nil
}

func (c *fakeClient) TagResource(_ context.Context, in *dynamodb.TagResourceInput, _ ...func(*dynamodb.Options)) (*dynamodb.TagResourceOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tags[aws.ToString(in.ResourceArn)] = in.Tags

	return &dynamodb.TagResourceOutput{}, nil
}

func (c *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := stringAttr(in.Item["LockID"])

	if existing, ok := c.items[id]; ok && numberAttr(existing["ExpiresAt"]) >= numberAttr(in.ExpressionAttributeValues[":now"]) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("slot is held")}
	}

	c.items[id] = in.Item

	return &dynamodb.PutItemOutput{}, nil
}

func (c *fakeClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.ownedItem(in.Key, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	item["ExpiresAt"] = in.ExpressionAttributeValues[":expires"]

	return &dynamodb.UpdateItemOutput{}, nil
}

func (c *fakeClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ownedItem(in.Key, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	delete(c.items, stringAttr(in.Key["LockID"]))

	return &dynamodb.DeleteItemOutput{}, nil
}

func (c *fakeClient) ownedItem(key, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	item, ok := c.items[stringAttr(key["LockID"])]
	if !ok || stringAttr(item["Owner"]) != stringAttr(values[":owner"]) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("not the owner")}
	}

	return item, nil
}

func (c *fakeClient) itemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func stringAttr(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}

	return ""
}

func numberAttr(v types.AttributeValue) int64 {
	if n, ok := v.(*types.AttributeValueMemberN); ok {
		i, _ := strconv.ParseInt(n.Value, 10, 64)
		return i
	}

	return 0
}
