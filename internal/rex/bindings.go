package rex

import (
	"strings"

	"rezgo/internal/model"
)

// GenerateBindings translates a resolved package's metadata plus its raw
// commands script into a complete Rex program: the per-package variables,
// one alias per tool, then the package's own operations.
func GenerateBindings(p *Parser, rp model.ResolvedPackage) ([]model.EnvOp, error) {
	name := envVarName(rp.Package.Name)
	var ops []model.EnvOp

	if rp.Root != "" {
		ops = append(ops, model.EnvOp{Kind: model.OpSet, Name: name + "_ROOT", Value: rp.Root})
	}
	if rp.Package.HasVersion {
		ops = append(ops, model.EnvOp{Kind: model.OpSet, Name: name + "_VERSION", Value: rp.Package.Version.Render()})
	}
	if len(rp.Package.Tools) > 0 {
		ops = append(ops, model.EnvOp{Kind: model.OpSet, Name: name + "_TOOLS", Value: strings.Join(rp.Package.Tools, ",")})
		for _, tool := range rp.Package.Tools {
			command := tool
			if rp.Root != "" {
				command = rp.Root + "/bin/" + tool
			}
			ops = append(ops, model.EnvOp{Kind: model.OpAlias, Name: tool, Value: command})
		}
	}

	if strings.TrimSpace(rp.Package.Commands) != "" {
		parsed, err := p.Parse(rp.Package.Commands)
		if err != nil {
			return nil, err
		}
		ops = append(ops, parsed...)
	}
	return ops, nil
}

// envVarName uppercases a package name into its variable prefix,
// mapping dashes to underscores.
func envVarName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
