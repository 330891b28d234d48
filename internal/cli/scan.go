package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

type scanOptions struct {
	Roots []string
}

func newScanCommand() *cobra.Command {
	opts := scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover package definitions beneath the given roots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newService()
			defer service.Close()

			result, err := service.Scan(cmd.Context(), opts.Roots)
			if err != nil {
				return err
			}
			sort.Slice(result.Packages, func(i, j int) bool {
				return result.Packages[i].Name < result.Packages[j].Name
			})
			for _, pkg := range result.Packages {
				version := "-"
				if pkg.HasVersion {
					version = pkg.Version.Render()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", pkg.Name, version)
			}
			for _, scanErr := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s: %s\n", scanErr.Path, scanErr.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d packages, %d errors, %d cache hits\n",
				len(result.Packages), len(result.Errors), result.CacheHits)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.Roots, "root", []string{"."}, "Scan root(s)")
	return cmd
}
