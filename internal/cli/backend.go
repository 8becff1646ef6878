package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/mpath/badgerstore"
	"github.com/jacentio/mpath/dynamostore"
	"github.com/jacentio/mpath/memstore"
	"github.com/jacentio/mpath/tree"
)

// Opener opens the store selected by opts. The returned close func is
// called once the command is done.
type Opener func(ctx context.Context, opts *Options) (tree.Store, func() error, error)

func noClose() error { return nil }

// OpenStore is the default Opener.
func OpenStore(ctx context.Context, opts *Options) (tree.Store, func() error, error) {
	switch opts.Backend {
	case "badger":
		s, err := badgerstore.Open(badgerstore.DefaultConfig(opts.DBPath), opts.Layout())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "dynamodb":
		var loadOpts []func(*config.LoadOptions) error
		if opts.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(opts.Region))
		}
		if opts.Profile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
		}
		cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		dc := dynamostore.DefaultConfig()
		dc.Table = opts.Table
		dc.ParentIndex = opts.ParentIndex
		dc.Layout = opts.Layout()
		return dynamostore.New(dynamodb.NewFromConfig(cfg), dc), noClose, nil

	case "memory":
		return memstore.New(opts.Layout()), noClose, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", opts.Backend)
}
