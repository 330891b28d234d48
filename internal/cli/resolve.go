package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rezgo/internal/app"
	"rezgo/internal/model"
	"rezgo/internal/resolver"
)

type resolveOptions struct {
	Roots    []string
	Strategy string
	Backend  string
	Excludes []string
}

func newResolveCommand() *cobra.Command {
	opts := resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve REQUIREMENT...",
		Short: "Resolve requirements into a consistent package set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := parseRequirements(args)
			if err != nil {
				return err
			}
			service := newService()
			defer service.Close()

			resolved, result, err := service.Resolve(cmd.Context(), app.ResolveRequest{
				Roots: opts.Roots,
				Request: resolver.SolverRequest{
					Requirements: requirements,
					Excludes:     opts.Excludes,
					Strategy:     resolver.Strategy(opts.Strategy),
					Backend:      resolver.Backend(opts.Backend),
				},
			})
			if err != nil {
				return err
			}
			for _, rp := range resolved.Resolved {
				version := "-"
				if rp.Package.HasVersion {
					version = rp.Package.Version.Render()
				}
				variant := ""
				if rp.VariantIndex >= 0 {
					variant = fmt.Sprintf(" (variant %d)", rp.VariantIndex)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", rp.Package.Name, version, variant)
			}
			for _, conflict := range result.Conflicts {
				fmt.Fprintf(cmd.ErrOrStderr(), "conflict: %s %s: %s\n", conflict.Kind, conflict.Name, conflict.Detail)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fingerprint: %s\n", resolved.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.Roots, "root", []string{"."}, "Scan root(s)")
	cmd.Flags().StringVar(&opts.Strategy, "strategy", string(resolver.LatestWins), "Conflict strategy (latest_wins|earliest_wins|find_compatible|fail_on_conflict)")
	cmd.Flags().StringVar(&opts.Backend, "backend", string(resolver.BackendAStar), "Resolver backend (astar|sat)")
	cmd.Flags().StringSliceVar(&opts.Excludes, "exclude", nil, "Package names to exclude")
	return cmd
}

func parseRequirements(args []string) ([]model.PackageRequirement, error) {
	out := make([]model.PackageRequirement, 0, len(args))
	for _, arg := range args {
		req, err := model.ParseRequirement(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
