package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ShellType selects the dialect an environment specification renders to.
type ShellType string

const (
	ShellBash       ShellType = "bash"
	ShellZsh        ShellType = "zsh"
	ShellFish       ShellType = "fish"
	ShellCmd        ShellType = "cmd"
	ShellPowerShell ShellType = "powershell"
)

// PathSep returns the PATH-style list separator for the shell.
func (s ShellType) PathSep() string {
	switch s {
	case ShellCmd, ShellPowerShell:
		return ";"
	default:
		return ":"
	}
}

// EnvOpKind enumerates the operations an environment specification is
// built from.
type EnvOpKind string

const (
	OpSet      EnvOpKind = "set"
	OpPrepend  EnvOpKind = "prepend"
	OpAppend   EnvOpKind = "append"
	OpUnset    EnvOpKind = "unset"
	OpAlias    EnvOpKind = "alias"
	OpFunction EnvOpKind = "function"
	OpSource   EnvOpKind = "source"
	OpCommand  EnvOpKind = "command"
	OpIf       EnvOpKind = "if"
	OpComment  EnvOpKind = "comment"
)

// EnvCond is the minimal conditional grammar: equality between a
// variable reference and a literal.
type EnvCond struct {
	Var     string
	Literal string
	Negate  bool
}

// EnvOp is one operation in an environment specification. The populated
// fields depend on Kind: Set/Prepend/Append use Name, Value and (for the
// list forms) Sep; Unset uses Name; Alias and Function use Name plus
// Value as the command or body; Source uses Value as a path; Command
// uses Argv; If carries Cond plus Then/Else blocks; Comment uses Value.
type EnvOp struct {
	Kind  EnvOpKind
	Name  string
	Value string
	Sep   string
	Argv  []string
	Cond  *EnvCond
	Then  []EnvOp
	Else  []EnvOp
}

// EnvironmentSpecification is the ordered operation list produced by the
// context builder, plus the unset post-filter and the caller overlay
// applied above package operations.
type EnvironmentSpecification struct {
	Ops            []EnvOp
	UnsetVars      []string
	AdditionalVars map[string]string
}

// ResolvedPackage pairs a resolved package with its chosen variant (or
// -1 when the package has none) and its install root.
type ResolvedPackage struct {
	Package      Package
	VariantIndex int
	Root         string
}

// Requires returns the package's runtime requirements merged with the
// chosen variant's requirement list.
func (rp ResolvedPackage) Requires() []PackageRequirement {
	out := append([]PackageRequirement(nil), rp.Package.Requires...)
	if rp.VariantIndex >= 0 && rp.VariantIndex < len(rp.Package.Variants) {
		out = append(out, rp.Package.Variants[rp.VariantIndex]...)
	}
	return out
}

// ResolvedContext is the resolver's complete output: the requested
// requirements, the ordered resolved set, and the environment
// specification composed from it.
type ResolvedContext struct {
	Requested    []PackageRequirement
	Resolved     []ResolvedPackage
	Env          EnvironmentSpecification
	Shell        ShellType
	PathStrategy string
}

// Fingerprint is a stable hash over the sorted resolved (name, version)
// pairs plus the config descriptor, used as the cache key by every
// downstream consumer of the context.
func (c ResolvedContext) Fingerprint() string {
	pairs := make([]string, 0, len(c.Resolved))
	for _, rp := range c.Resolved {
		version := ""
		if rp.Package.HasVersion {
			version = rp.Package.Version.Render()
		}
		pairs = append(pairs, rp.Package.Name+"="+version)
	}
	sort.Strings(pairs)

	extra := make([]string, 0, len(c.Env.AdditionalVars))
	for k, v := range c.Env.AdditionalVars {
		extra = append(extra, k+"="+v)
	}
	sort.Strings(extra)

	unset := append([]string(nil), c.Env.UnsetVars...)
	sort.Strings(unset)

	h := sha256.New()
	h.Write([]byte(strings.Join(pairs, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(extra, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(unset, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(string(c.Shell)))
	h.Write([]byte{0})
	h.Write([]byte(c.PathStrategy))
	return hex.EncodeToString(h.Sum(nil))
}
