package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/metaload/pkg/metaload"
	"github.com/cognicore/metaload/pkg/metaload/ingest"
	"github.com/cognicore/metaload/pkg/metaload/logger"
	"github.com/cognicore/metaload/pkg/metaload/metrics"
)

func loadCmd() *cobra.Command {
	var (
		input       string
		driver      string
		dsn         string
		batchSize   int
		mergePolicy string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run the category, product and related-pair stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("input") {
				cfg.Input = input
			}
			if flags.Changed("driver") {
				cfg.Store.Driver = driver
			}
			if flags.Changed("dsn") {
				cfg.Store.DSN = dsn
			}
			if flags.Changed("batch-size") {
				cfg.Ingest.BatchSize = batchSize
			}
			if flags.Changed("merge-policy") {
				cfg.Ingest.MergePolicy = mergePolicy
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}

			ctx := cmd.Context()
			m, err := metaload.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer m.Close()

			if cfg.MetricsAddr == "" {
				rep, err := m.Run(ctx)
				printReport(rep)
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
			g.Go(func() error {
				logger.Info("[Main][Metrics] Serving metrics", "addr", cfg.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				rep, err := m.Run(gctx)
				printReport(rep)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if serr := srv.Shutdown(shutdownCtx); serr != nil && err == nil {
					err = serr
				}
				return err
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "corpus path, .gz path or s3://bucket/key")
	cmd.Flags().StringVar(&driver, "driver", "", "store driver: sqlite, postgres or memory")
	cmd.Flags().StringVar(&dsn, "dsn", "", "sqlite file or postgres connection string")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "products per flush")
	cmd.Flags().StringVar(&mergePolicy, "merge-policy", "", "category identity: name or external-id")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while loading")

	return cmd
}

func printReport(rep ingest.Report) {
	if rep.RunID == "" {
		return
	}
	fmt.Printf("Run %s (%s, policy %s)\n", rep.RunID, rep.Source, rep.Policy)
	fmt.Printf("  categories:  %d external ids, %d durable, %d edges (%d unresolved, %d self)\n",
		rep.Categories.ExternalIDs, rep.Categories.Durable,
		rep.Categories.Edges.Linked, rep.Categories.Edges.Unresolved, rep.Categories.Edges.SelfLinks)
	fmt.Printf("  products:    %d records, %d accepted, %d rejected (%d no asin, %d no title)\n",
		rep.Load.Records, rep.Load.Accepted, rep.Load.Rejected(), rep.Load.MissingASIN, rep.Load.MissingTitle)
	fmt.Printf("  memberships: %d written, %d unresolved\n", rep.Load.Memberships, rep.Load.UnresolvedMemberships)
	fmt.Printf("  reviews:     %d in %d flushes\n", rep.Load.Reviews, rep.Load.Flushes)
	fmt.Printf("  related:     %d candidates, %d kept, %d dropped\n",
		rep.Related.Candidates, rep.Related.Kept, rep.Related.Dropped)
	fmt.Printf("  timings:     categories %s, products %s, related %s, total %s\n",
		rep.Timings.Categories.Round(time.Millisecond), rep.Timings.Products.Round(time.Millisecond),
		rep.Timings.Related.Round(time.Millisecond), rep.Timings.Total.Round(time.Millisecond))
}
