package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rezgo/internal/model"
)

type buildOptions struct {
	SourceDir    string
	Source       string
	Name         string
	Version      string
	Variant      int
	InstallPath  string
	ForceRebuild bool
	SkipTests    bool
	ReleaseMode  bool
}

func newBuildCommand() *cobra.Command {
	opts := buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a package from a local directory or remote source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service := newService()
			defer service.Close()

			pkg := model.Package{Name: opts.Name}
			if opts.Version != "" {
				v, err := model.ParseVersion(opts.Version)
				if err != nil {
					return err
				}
				pkg.Version = v
				pkg.HasVersion = true
			}
			req := model.BuildRequest{
				Package:      pkg,
				SourceDir:    opts.SourceDir,
				VariantIndex: opts.Variant,
				InstallPath:  opts.InstallPath,
				Options: model.BuildOptions{
					ForceRebuild: opts.ForceRebuild,
					SkipTests:    opts.SkipTests,
					ReleaseMode:  opts.ReleaseMode,
				},
			}
			id, err := service.Build(cmd.Context(), req, opts.Source)
			if err != nil {
				return err
			}
			job, err := service.WaitForBuild(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, step := range job.StepResults {
				status := "ok"
				if !step.Success {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", step.Step, status, step.Duration)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", job.ID, job.Status)
			if job.Status == model.BuildFailed {
				return fmt.Errorf("build failed: %s", job.FailReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.SourceDir, "source-dir", "", "Local source directory")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Remote source URL (git/http)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Package name")
	cmd.Flags().StringVar(&opts.Version, "version", "", "Package version")
	cmd.Flags().IntVar(&opts.Variant, "variant", -1, "Variant index")
	cmd.Flags().StringVar(&opts.InstallPath, "install-path", "", "Install destination")
	cmd.Flags().BoolVar(&opts.ForceRebuild, "force", false, "Discard prior artifacts and rebuild")
	cmd.Flags().BoolVar(&opts.SkipTests, "skip-tests", false, "Skip the test step")
	cmd.Flags().BoolVar(&opts.ReleaseMode, "release", false, "Build in release mode")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
