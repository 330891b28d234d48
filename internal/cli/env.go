package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rezgo/internal/app"
	"rezgo/internal/model"
	"rezgo/internal/resolver"
)

type envOptions struct {
	Roots []string
	Shell string
}

func newEnvCommand() *cobra.Command {
	opts := envOptions{}
	cmd := &cobra.Command{
		Use:   "env REQUIREMENT...",
		Short: "Resolve requirements and render the environment for a shell",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirements, err := parseRequirements(args)
			if err != nil {
				return err
			}
			service := newService()
			defer service.Close()

			resolved, _, err := service.Resolve(cmd.Context(), app.ResolveRequest{
				Roots: opts.Roots,
				Request: resolver.SolverRequest{
					Requirements: requirements,
					Strategy:     resolver.LatestWins,
				},
			})
			if err != nil {
				return err
			}
			rendered, err := service.RenderEnv(resolved, model.ShellType(opts.Shell))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.Roots, "root", []string{"."}, "Scan root(s)")
	cmd.Flags().StringVar(&opts.Shell, "shell", string(model.ShellBash), "Target shell (bash|zsh|fish|cmd|powershell)")
	return cmd
}
