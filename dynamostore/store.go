// Package dynamostore persists tree documents in a DynamoDB table.
//
// Each document is one item keyed by the layout's id field. Filters are
// pushed down as filter expressions (and as a key condition on the parent
// index when one is configured), then re-checked client-side so results
// follow tree.Layout.Select exactly. Scan order is table order.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/mpath/tree"
)

// batchSize is DynamoDB's BatchWriteItem request limit.
const batchSize = 25

// maxBatchAttempts bounds retries of unprocessed batch items.
const maxBatchAttempts = 5

// API is the subset of the DynamoDB client the Store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Store is a tree.Store backed by DynamoDB.
type Store struct {
	client API
	config Config
	layout tree.Layout

	// backoff is the base delay between batch retries.
	backoff time.Duration
}

var _ tree.Store = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client:  client,
		config:  config,
		layout:  config.Layout,
		backoff: 50 * time.Millisecond,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config { return s.config }

func (s *Store) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		s.layout.ID: &types.AttributeValueMemberS{Value: id},
	}
}

// marshalDoc encodes d as an item. A null or empty parent is omitted so the
// item stays out of the parent index.
func (s *Store) marshalDoc(d tree.Document) (map[string]types.AttributeValue, error) {
	item := make(tree.Document, len(d))
	for k, v := range d {
		item[k] = v
	}
	if s.layout.ParentOf(item) == "" {
		delete(item, s.layout.Parent)
	}
	return attributevalue.MarshalMap(map[string]any(item))
}

// unmarshalDoc decodes an item. Numbers decode to float64; a missing parent
// reads back as null.
func (s *Store) unmarshalDoc(raw map[string]types.AttributeValue) (tree.Document, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(raw, &m); err != nil {
		return nil, err
	}
	d := tree.Document(m)
	if _, ok := d[s.layout.Parent]; !ok {
		d[s.layout.Parent] = nil
	}
	return d, nil
}

// get fetches one document by id, returning tree.ErrNotFound when missing.
func (s *Store) get(ctx context.Context, id string) (tree.Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, tree.ErrNotFound
	}
	return s.unmarshalDoc(result.Item)
}

// collect returns documents matching f in table order, stopping after limit
// matches when limit > 0.
func (s *Store) collect(ctx context.Context, f tree.Filter, limit int) ([]tree.Document, error) {
	if f.ID != "" {
		d, err := s.get(ctx, f.ID)
		if errors.Is(err, tree.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !s.layout.Match(d, f) {
			return nil, nil
		}
		return []tree.Document{d}, nil
	}

	var out []tree.Document
	keep := func(items []map[string]types.AttributeValue) (bool, error) {
		for _, raw := range items {
			d, err := s.unmarshalDoc(raw)
			if err != nil {
				return false, fmt.Errorf("decode item: %w", err)
			}
			if !s.layout.Match(d, f) {
				continue
			}
			out = append(out, d)
			if limit > 0 && len(out) >= limit {
				return true, nil
			}
		}
		return false, nil
	}

	b := newExprBuilder()
	if f.ParentID != "" && s.config.ParentIndex != "" {
		keyCond := fmt.Sprintf("%s = %s", b.name(s.layout.Parent), b.str(f.ParentID))
		filter, err := b.filterExpr(s.layout, f, true)
		if err != nil {
			return nil, err
		}
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(s.config.Table),
			IndexName:                 aws.String(s.config.ParentIndex),
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeNames:  b.exprNames(),
			ExpressionAttributeValues: b.exprValues(),
		}
		if filter != "" {
			input.FilterExpression = aws.String(filter)
		}

		paginator := dynamodb.NewQueryPaginator(s.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			done, err := keep(page.Items)
			if err != nil || done {
				return out, err
			}
		}
		return out, nil
	}

	filter, err := b.filterExpr(s.layout, f, false)
	if err != nil {
		return nil, err
	}
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.Table),
		ConsistentRead:            aws.Bool(s.config.ConsistentRead),
		ExpressionAttributeNames:  b.exprNames(),
		ExpressionAttributeValues: b.exprValues(),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
	}

	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		done, err := keep(page.Items)
		if err != nil || done {
			return out, err
		}
	}
	return out, nil
}

func (s *Store) FindOne(ctx context.Context, f tree.Filter, fields ...string) (tree.Document, error) {
	found, err := s.collect(ctx, f, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, tree.ErrNotFound
	}
	return s.layout.Project(found[0], fields), nil
}

func (s *Store) Find(ctx context.Context, f tree.Filter, opts tree.FindOptions) ([]tree.Document, error) {
	limit := 0
	if len(opts.Sort) == 0 && opts.Limit > 0 {
		limit = opts.Skip + opts.Limit
	}
	found, err := s.collect(ctx, f, limit)
	if err != nil {
		return nil, err
	}
	return s.layout.Select(found, tree.Filter{}, opts), nil
}

// UpdateMany applies p to every matching item with one conditional
// UpdateItem each. Items deleted between the scan and the update are not
// counted.
func (s *Store) UpdateMany(ctx context.Context, f tree.Filter, p tree.Patch) (int, error) {
	found, err := s.collect(ctx, f, 0)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	b := newExprBuilder()
	update, err := b.updateExpr(s.layout, p)
	if err != nil {
		return 0, err
	}
	if update == "" {
		return len(found), nil
	}
	cond := fmt.Sprintf("attribute_exists(%s)", b.name(s.layout.ID))
	names := b.exprNames()
	values := b.exprValues()

	updated := make([]bool, len(found))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WriteConcurrency)
	for i, d := range found {
		id := s.layout.IDOf(d)
		g.Go(func() error {
			_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:                 aws.String(s.config.Table),
				Key:                       s.key(id),
				UpdateExpression:          aws.String(update),
				ConditionExpression:       aws.String(cond),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			})
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("update %s: %w", id, err)
			}
			updated[i] = true
			return nil
		})
	}
	err = g.Wait()

	n := 0
	for _, ok := range updated {
		if ok {
			n++
		}
	}
	return n, err
}

// DeleteMany removes every matching item with BatchWriteItem, retrying
// unprocessed items with exponential backoff.
func (s *Store) DeleteMany(ctx context.Context, f tree.Filter) (int, error) {
	found, err := s.collect(ctx, f, 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(found); start += batchSize {
		end := min(start+batchSize, len(found))
		requests := make([]types.WriteRequest, 0, end-start)
		for _, d := range found[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: s.key(s.layout.IDOf(d))},
			})
		}
		if err := s.batchWrite(ctx, requests); err != nil {
			return deleted, err
		}
		deleted += len(requests)
	}
	return deleted, nil
}

func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.config.Table: requests}
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[s.config.Table]) == 0 {
			return nil
		}
		if attempt >= maxBatchAttempts {
			return fmt.Errorf("batch write: %d items unprocessed after %d attempts",
				len(out.UnprocessedItems[s.config.Table]), attempt)
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Save writes d as a whole item, replacing any previous version.
func (s *Store) Save(ctx context.Context, d tree.Document) (tree.Document, error) {
	id := s.layout.IDOf(d)
	if id == "" {
		return nil, fmt.Errorf("save: document has no %q", s.layout.ID)
	}
	item, err := s.marshalDoc(d)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", id, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      item,
	}); err != nil {
		return nil, err
	}
	return s.unmarshalDoc(item)
}
