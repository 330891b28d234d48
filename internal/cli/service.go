package cli

import (
	"github.com/spf13/viper"

	"rezgo/internal/app"
	"rezgo/internal/build"
	"rezgo/internal/envctx"
	"rezgo/internal/fetch"
	"rezgo/internal/model"
	"rezgo/internal/resolver"
	"rezgo/internal/scan"
)

// newService assembles the app service from viper-backed configuration.
func newService() *app.Service {
	return app.NewService(app.Options{
		ScanRoots: viper.GetStringSlice("scan_roots"),
		ScanOptions: scan.Options{
			MaxDepth:           viper.GetInt("scan_max_depth"),
			ExcludeGlobs:       viper.GetStringSlice("scan_exclude"),
			MaxConcurrentScans: viper.GetInt("scan_concurrency"),
			ScanTimeout:        viper.GetDuration("scan_timeout"),
		},
		Resolver: resolver.Config{
			StrictAdmissible: viper.GetBool("resolver_strict_admissible"),
			MaxExpansions:    viper.GetInt("resolver_max_expansions"),
			Timeout:          viper.GetDuration("resolver_timeout"),
		},
		Env: envctx.Options{
			Shell:        model.ShellType(viper.GetString("shell")),
			PathStrategy: envctx.PathStrategy(viper.GetString("path_strategy")),
			Inherit:      viper.GetBool("inherit_env"),
			PackagesRoot: viper.GetString("packages_root"),
		},
		Build: build.Config{
			MaxConcurrentBuilds: viper.GetInt("max_concurrent_builds"),
			BuildRoot:           viper.GetString("build_root"),
			InstallRoot:         viper.GetString("install_root"),
			DefaultTimeout:      viper.GetDuration("build_timeout"),
		},
		Fetch: fetch.Config{
			CacheRoot: viper.GetString("fetch_cache_root"),
		},
	})
}
