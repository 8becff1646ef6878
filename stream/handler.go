// Package stream provides a DynamoDB Streams handler that keeps materialized
// paths consistent for writes made outside the engine.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacentio/mpath/tree"
)

var streamRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mpath_stream_records_total",
	Help: "Stream records processed, by event name and action taken.",
}, []string{"event", "action"})

// Handler processes DynamoDB stream events for a node table.
type Handler[N tree.Node] struct {
	engine *tree.Engine[N]
	layout tree.Layout
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler[N tree.Node](e *tree.Engine[N], logger *slog.Logger) *Handler[N] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler[N]{
		engine: e,
		layout: e.Layout(),
		logger: logger,
	}
}

// HandleStream processes DynamoDB stream events. It is designed to be used
// as an AWS Lambda handler.
//
//   - REMOVE clears the removed node's subtree.
//   - MODIFY with a changed parent but an unchanged path relocates the node.
//   - INSERT of a child without a path relocates the node.
//
// Records the engine wrote itself fall through as no-ops, so replays are safe.
func (h *Handler[N]) HandleStream(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler[N]) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch record.EventName {
	case string(events.DynamoDBOperationTypeRemove):
		return h.processRemove(ctx, record)
	case string(events.DynamoDBOperationTypeModify):
		return h.processModify(ctx, record)
	case string(events.DynamoDBOperationTypeInsert):
		return h.processInsert(ctx, record)
	}
	return nil
}

func (h *Handler[N]) processRemove(ctx context.Context, record events.DynamoDBEventRecord) error {
	old, err := ImageDocument(record.Change.OldImage)
	if err != nil {
		return fmt.Errorf("decode old image: %w", err)
	}
	id := h.layout.IDOf(old)
	if id == "" {
		keys, err := ImageDocument(record.Change.Keys)
		if err != nil {
			return fmt.Errorf("decode keys: %w", err)
		}
		id = h.layout.IDOf(keys)
	}
	if id == "" {
		streamRecords.WithLabelValues(record.EventName, "skipped").Inc()
		return nil
	}

	count, err := h.engine.ClearSubtree(ctx, id, h.layout.PathOf(old))
	if err != nil {
		return err
	}
	streamRecords.WithLabelValues(record.EventName, "cleared").Inc()
	if count > 0 {
		h.logger.Info("cleared orphaned subtree",
			"id", id,
			"descendants", count,
		)
	}
	return nil
}

func (h *Handler[N]) processModify(ctx context.Context, record events.DynamoDBEventRecord) error {
	old, err := ImageDocument(record.Change.OldImage)
	if err != nil {
		return fmt.Errorf("decode old image: %w", err)
	}
	cur, err := ImageDocument(record.Change.NewImage)
	if err != nil {
		return fmt.Errorf("decode new image: %w", err)
	}

	// The engine rewrites the path together with the parent.
	if h.layout.ParentOf(old) == h.layout.ParentOf(cur) || h.layout.PathOf(old) != h.layout.PathOf(cur) {
		streamRecords.WithLabelValues(record.EventName, "skipped").Inc()
		return nil
	}
	return h.relocate(ctx, record.EventName, h.layout.IDOf(cur), h.layout.PathOf(old),
		h.layout.ParentOf(old), h.layout.ParentOf(cur))
}

func (h *Handler[N]) processInsert(ctx context.Context, record events.DynamoDBEventRecord) error {
	cur, err := ImageDocument(record.Change.NewImage)
	if err != nil {
		return fmt.Errorf("decode new image: %w", err)
	}
	if _, ok := cur[h.layout.Path]; ok || h.layout.IsRoot(cur) {
		streamRecords.WithLabelValues(record.EventName, "skipped").Inc()
		return nil
	}
	return h.relocate(ctx, record.EventName, h.layout.IDOf(cur), "", "", h.layout.ParentOf(cur))
}

// relocate repairs one node. Failures that a retry cannot fix (the node or
// its new parent is gone, or the move would create a cycle) are logged and
// dropped.
func (h *Handler[N]) relocate(ctx context.Context, event, id, oldPath, oldParent, newParent string) error {
	h.logger.Info("relocating node written outside the engine",
		"id", id,
		"oldParent", oldParent,
		"newParent", newParent,
		"oldPath", oldPath,
	)

	_, err := h.engine.Relocate(ctx, id, oldPath)
	switch {
	case err == nil:
		streamRecords.WithLabelValues(event, "relocated").Inc()
		return nil
	case errors.Is(err, tree.ErrNotFound), errors.Is(err, tree.ErrParentNotFound), errors.Is(err, tree.ErrCycle):
		streamRecords.WithLabelValues(event, "rejected").Inc()
		h.logger.Warn("cannot relocate node",
			"id", id,
			"newParent", newParent,
			"error", err,
		)
		return nil
	default:
		return fmt.Errorf("relocate %s: %w", id, err)
	}
}

// ImageDocument decodes a stream image into a document, with the same value
// mapping the DynamoDB store uses (numbers as float64, NULL as nil).
func ImageDocument(image map[string]events.DynamoDBAttributeValue) (tree.Document, error) {
	d := tree.Document{}
	if len(image) == 0 {
		return d, nil
	}
	if err := attributevalue.UnmarshalMap(ConvertImage(image), (*map[string]any)(&d)); err != nil {
		return nil, err
	}
	return d, nil
}

// ConvertImage converts a DynamoDB stream image (or key) to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
