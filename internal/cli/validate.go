package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rezgo/internal/model"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate package definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed bool
			for _, path := range args {
				pkg, err := model.LoadPackage(path)
				if err != nil {
					failed = true
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, errorMessage(err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", path, pkg.Name)
			}
			if failed {
				return fmt.Errorf("one or more package definitions are invalid")
			}
			return nil
		},
	}
	return cmd
}
