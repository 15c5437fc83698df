package main

import (
	"github.com/spf13/cobra"

	"github.com/cognicore/metaload/internal/snap"
)

func fetchCmd() *cobra.Command {
	var (
		page string
		file string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the corpus linked from the SNAP dataset page",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := snap.NewFetcher().Fetch(cmd.Context(), page, file, out)
			return err
		},
	}

	cmd.Flags().StringVar(&page, "page", snap.DefaultPage, "dataset page to scan for the download link")
	cmd.Flags().StringVar(&file, "file", snap.DefaultFile, "file name the link must end in")
	cmd.Flags().StringVar(&out, "out", "data", "output directory")
	return cmd
}
