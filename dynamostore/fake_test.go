package dynamostore

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory API. Filter expressions are ignored: every
// Scan returns the whole table, two items per page, which the Store must
// narrow itself. Update expressions are interpreted for the SET/REMOVE
// forms the Store emits.
type fakeDynamo struct {
	mu     sync.Mutex
	idAttr string
	items  []map[string]types.AttributeValue

	// unprocessed makes the next n BatchWriteItem calls process nothing.
	unprocessed int

	scans, queries, batches, updates int
	lastQuery                        *dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{idAttr: "id"}
}

func (f *fakeDynamo) idOf(item map[string]types.AttributeValue) string {
	if v, ok := item[f.idAttr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) indexOf(key map[string]types.AttributeValue) int {
	id := f.idOf(key)
	for i, it := range f.items {
		if f.idOf(it) == id {
			return i
		}
	}
	return -1
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexOf(in.Key); i >= 0 {
		return &dynamodb.GetItemOutput{Item: copyItem(f.items[i])}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexOf(in.Item); i >= 0 {
		f.items[i] = copyItem(in.Item)
	} else {
		f.items = append(f.items, copyItem(in.Item))
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	i := f.indexOf(in.Key)
	if i < 0 {
		return nil, &types.ConditionalCheckFailedException{Message: stringPtr("item does not exist")}
	}
	item := f.items[i]

	expr := *in.UpdateExpression
	var removePart string
	if j := strings.Index(expr, "REMOVE "); j >= 0 {
		removePart = expr[j+len("REMOVE "):]
		expr = strings.TrimSpace(expr[:j])
	}
	if setPart := strings.TrimPrefix(expr, "SET "); setPart != "" {
		for _, clause := range strings.Split(setPart, ", ") {
			kv := strings.SplitN(clause, " = ", 2)
			item[in.ExpressionAttributeNames[kv[0]]] = in.ExpressionAttributeValues[kv[1]]
		}
	}
	if removePart != "" {
		for _, n := range strings.Split(removePart, ", ") {
			delete(item, in.ExpressionAttributeNames[n])
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	f.lastQuery = in

	kv := strings.SplitN(*in.KeyConditionExpression, " = ", 2)
	attr := in.ExpressionAttributeNames[kv[0]]
	want := in.ExpressionAttributeValues[kv[1]].(*types.AttributeValueMemberS).Value

	var out []map[string]types.AttributeValue
	for _, it := range f.items {
		if v, ok := it[attr].(*types.AttributeValueMemberS); ok && v.Value == want {
			out = append(out, copyItem(it))
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	start := 0
	if in.ExclusiveStartKey != nil {
		start = f.indexOf(in.ExclusiveStartKey) + 1
	}
	end := min(start+2, len(f.items))
	out := &dynamodb.ScanOutput{}
	for _, it := range f.items[start:end] {
		out.Items = append(out.Items, copyItem(it))
	}
	if end < len(f.items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			f.idAttr: &types.AttributeValueMemberS{Value: f.idOf(f.items[end-1])},
		}
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.unprocessed > 0 {
		f.unprocessed--
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: in.RequestItems}, nil
	}
	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			if r.DeleteRequest == nil {
				continue
			}
			if i := f.indexOf(r.DeleteRequest.Key); i >= 0 {
				f.items = append(f.items[:i], f.items[i+1:]...)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func stringPtr(s string) *string { return &s }
