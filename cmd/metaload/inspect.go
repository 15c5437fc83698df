package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognicore/metaload/pkg/metaload/config"
	"github.com/cognicore/metaload/pkg/metaload/corpus"
	"github.com/cognicore/metaload/pkg/metaload/ingest"
)

func categoriesCmd() *cobra.Command {
	var (
		input       string
		mergePolicy string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Scan classification chains without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if input != "" {
				cfg.Input = input
			}
			if mergePolicy != "" {
				cfg.Ingest.MergePolicy = mergePolicy
			}
			policy, err := ingest.ParseMergePolicy(cfg.Ingest.MergePolicy)
			if err != nil {
				return err
			}
			src, err := (&config.Loader{Config: cfg}).Source(cmd.Context())
			if err != nil {
				return err
			}

			tax := ingest.NewTaxonomy(policy)
			if err := tax.Collect(cmd.Context(), src); err != nil {
				return err
			}
			cats := tax.Categories()
			fmt.Printf("%d external ids, %d categories under policy %s\n", tax.Len(), len(cats), policy)
			for i, n := range tax.Nodes() {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Printf("  [%d] %s (parent %d)\n", n.ExternalID, n.Name, n.ParentID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "corpus path, .gz path or s3://bucket/key")
	cmd.Flags().StringVar(&mergePolicy, "merge-policy", "", "category identity: name or external-id")
	cmd.Flags().IntVar(&limit, "limit", 20, "nodes to print, 0 for all")
	return cmd
}

func inspectCmd() *cobra.Command {
	var (
		input string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the first parsed records of a corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if input != "" {
				cfg.Input = input
			}
			src, err := (&config.Loader{Config: cfg}).Source(cmd.Context())
			if err != nil {
				return err
			}

			r, err := corpus.NewReader(cmd.Context(), src)
			if err != nil {
				return err
			}
			defer r.Close()

			n := 0
			for r.Next() {
				printRecord(r.Record())
				n++
				if limit > 0 && n >= limit {
					break
				}
			}
			if err := r.Err(); err != nil {
				return err
			}
			fmt.Printf("%d records from %d lines of %s\n", n, r.Lines(), src.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "corpus path, .gz path or s3://bucket/key")
	cmd.Flags().IntVar(&limit, "limit", 5, "records to print, 0 for all")
	return cmd
}

func printRecord(r *corpus.Record) {
	status := "ok"
	if err := r.Validate(); err != nil {
		status = err.Error()
	}
	fmt.Printf("Id %d  ASIN %s  [%s]\n", r.SourceID, r.ASIN, status)
	if r.Title != "" {
		fmt.Printf("  title:      %s\n", r.Title)
	}
	if r.Group != "" {
		fmt.Printf("  group:      %s\n", r.Group)
	}
	if r.SalesRank != nil {
		fmt.Printf("  salesrank:  %d\n", *r.SalesRank)
	}
	if len(r.Similar) > 0 {
		fmt.Printf("  similar:    %s\n", strings.Join(r.Similar, " "))
	}
	if len(r.Categories) > 0 {
		fmt.Printf("  categories: %d nodes\n", len(r.Categories))
	}
	if r.Summary != nil {
		fmt.Printf("  reviews:    %d total, %d downloaded, avg %.1f\n", r.Summary.Total, r.Summary.Downloaded, r.Summary.AvgRating)
	}
}
