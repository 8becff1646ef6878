// Command mpath-stream is the AWS Lambda that repairs materialized paths
// from the node table's DynamoDB stream.
//
// Environment:
//
//	MPATH_TABLE         node table (required)
//	MPATH_PARENT_INDEX  GSI keyed by parent_id (optional)
//	MPATH_SEPARATOR     path separator (default ",")
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/mpath/dynamostore"
	"github.com/jacentio/mpath/stream"
	"github.com/jacentio/mpath/tree"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	table := os.Getenv("MPATH_TABLE")
	if table == "" {
		logger.Error("MPATH_TABLE is required")
		os.Exit(1)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	layout := tree.DefaultLayout()
	if sep := os.Getenv("MPATH_SEPARATOR"); sep != "" {
		layout.Separator = sep
	}

	storeCfg := dynamostore.DefaultConfig()
	storeCfg.Table = table
	storeCfg.ParentIndex = os.Getenv("MPATH_PARENT_INDEX")
	storeCfg.Layout = layout
	s := dynamostore.New(dynamodb.NewFromConfig(awsCfg), storeCfg)

	treeCfg := tree.DefaultConfig()
	treeCfg.Layout = layout
	treeCfg.Logger = logger
	e := tree.New[*tree.Record](s, treeCfg)

	lambda.Start(stream.NewHandler(e, logger).HandleStream)
}
