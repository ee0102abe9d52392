package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/semkv"
	"github.com/hupe1980/semkv/blobstore/minio"
	"github.com/hupe1980/semkv/blobstore/s3"
)

type globalFlags struct {
	dir         string
	dim         int
	compression string
	s3Bucket    string
	s3Prefix    string
	s3Region    string
	minio       minio.Config
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "semkv",
		Short:         "Embedded key/vector store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.dir, "dir", "semkv-data", "local store directory")
	pf.IntVar(&g.dim, "dim", 0, "vector dimension (required for a new store)")
	pf.StringVar(&g.compression, "compression", "lz4", "checkpoint compression: none, lz4 or zstd")
	pf.StringVar(&g.s3Bucket, "s3-bucket", "", "store checkpoints in this S3 bucket instead of --dir")
	pf.StringVar(&g.s3Prefix, "s3-prefix", "", "key prefix inside --s3-bucket")
	pf.StringVar(&g.s3Region, "s3-region", "", "region for --s3-bucket or --minio-endpoint")
	pf.StringVar(&g.minio.Endpoint, "minio-endpoint", "", "store checkpoints on this S3-compatible server (host:port)")
	pf.StringVar(&g.minio.Bucket, "minio-bucket", "", "bucket on --minio-endpoint, created if missing")
	pf.StringVar(&g.minio.Prefix, "minio-prefix", "", "key prefix inside --minio-bucket")
	pf.BoolVar(&g.minio.Secure, "minio-secure", false, "use TLS for --minio-endpoint")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log store operations to stderr")

	root.AddCommand(
		newPutCmd(g),
		newGetCmd(g),
		newRemoveCmd(g),
		newSearchCmd(g),
		newRangeCmd(g),
		newStatsCmd(g),
		newCommitCmd(g),
	)
	return root
}

func (g *globalFlags) backend(ctx context.Context) (semkv.Backend, error) {
	if g.s3Bucket != "" && g.minio.Endpoint != "" {
		return semkv.Backend{}, errors.New("--s3-bucket and --minio-endpoint are mutually exclusive")
	}
	if g.minio.Endpoint != "" {
		cfg := g.minio
		cfg.Region = g.s3Region
		cfg.CreateBucket = true
		store, err := minio.New(ctx, cfg)
		if err != nil {
			return semkv.Backend{}, err
		}
		return semkv.Remote(store), nil
	}
	if g.s3Bucket == "" {
		return semkv.Local(g.dir), nil
	}
	var opts []s3.Option
	if g.s3Prefix != "" {
		opts = append(opts, s3.WithPrefix(g.s3Prefix))
	}
	if g.s3Region != "" {
		opts = append(opts, s3.WithRegion(g.s3Region))
	}
	store, err := s3.New(ctx, g.s3Bucket, opts...)
	if err != nil {
		return semkv.Backend{}, err
	}
	return semkv.Remote(store), nil
}

// withStore opens the store, runs fn and closes it. Close commits pending
// mutations.
func (g *globalFlags) withStore(cmd *cobra.Command, fn func(ctx context.Context, kv *semkv.KV) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	comp, err := semkv.ParseCompression(g.compression)
	if err != nil {
		return err
	}
	backend, err := g.backend(ctx)
	if err != nil {
		return err
	}

	opts := []semkv.Option{semkv.WithCompression(comp)}
	if g.dim > 0 {
		opts = append(opts, semkv.WithDimension(g.dim))
	}
	if g.verbose {
		opts = append(opts, semkv.WithLogger(semkv.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	kv, err := semkv.Open(ctx, backend, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, kv.Close())
	}()
	return fn(ctx, kv)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func newPutCmd(g *globalFlags) *cobra.Command {
	var (
		vector  []float32
		payload string
	)
	cmd := &cobra.Command{
		Use:   "put <key>",
		Short: "Store a vector and payload under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &value); err != nil {
					return fmt.Errorf("parse --payload: %w", err)
				}
			}
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				return kv.Put(ctx, args[0], vector, value)
			})
		},
	}
	cmd.Flags().Float32SliceVar(&vector, "vector", nil, "comma separated vector")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the live value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				e, err := kv.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"key":     e.Key,
					"ordinal": e.Ordinal,
					"vector":  e.Vector,
					"payload": e.Payload,
				})
			})
		},
	}
}

func newRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key>",
		Aliases: []string{"rm"},
		Short:   "Remove the live value of a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				return kv.Remove(ctx, args[0])
			})
		},
	}
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		vector  []float32
		k       int
		project string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Print the k nearest live values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				c, err := kv.Search(ctx, vector, k)
				if err != nil {
					return err
				}
				if project != "" {
					if c, err = c.ProjectText(project); err != nil {
						return err
					}
				}
				return printJSON(cmd, c.Value())
			})
		},
	}
	cmd.Flags().Float32SliceVar(&vector, "vector", nil, "comma separated query vector")
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of results")
	cmd.Flags().StringVar(&project, "project", "", "projection applied to the results, e.g. [*].key")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newRangeCmd(g *globalFlags) *cobra.Command {
	var (
		vector  []float32
		radius  float32
		project string
	)
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Print every live value within a Euclidean radius",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				c, err := kv.SearchRange(ctx, vector, radius)
				if err != nil {
					return err
				}
				if project != "" {
					if c, err = c.ProjectText(project); err != nil {
						return err
					}
				}
				return printJSON(cmd, c.Value())
			})
		},
	}
	cmd.Flags().Float32SliceVar(&vector, "vector", nil, "comma separated center vector")
	cmd.Flags().Float32Var(&radius, "radius", 0, "search radius")
	cmd.Flags().StringVar(&project, "project", "", "projection applied to the results")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				st, err := kv.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
}

func newCommitCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Write a checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withStore(cmd, func(ctx context.Context, kv *semkv.KV) error {
				return kv.Commit(ctx)
			})
		},
	}
}
