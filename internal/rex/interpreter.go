package rex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rezgo/internal/cache"
	"rezgo/internal/model"
)

// ExecutionResult is the interpreter's outcome: the output and error
// lines plus every environment change, with nil marking an unset.
type ExecutionResult struct {
	Success    bool
	Output     []string
	Errors     []string
	EnvChanges map[string]*string
}

// Interpreter executes environment operations against a mutable
// {env, aliases, functions} record. Safe for sequential reuse; not for
// concurrent Execute calls on the same instance.
type Interpreter struct {
	parser    *Parser
	execCache *cache.Manager[string, ExecutionResult]

	env       map[string]string
	aliases   map[string]string
	functions map[string]string
	changes   map[string]*string
	output    []string
	errors    []string
}

// NewInterpreter builds an Interpreter seeded with initial environment
// values. execCache may be nil to disable result caching.
func NewInterpreter(parser *Parser, initial map[string]string, execCache *cache.Manager[string, ExecutionResult]) *Interpreter {
	env := map[string]string{}
	for k, v := range initial {
		env[k] = v
	}
	return &Interpreter{
		parser:    parser,
		execCache: execCache,
		env:       env,
		aliases:   map[string]string{},
		functions: map[string]string{},
		changes:   map[string]*string{},
	}
}

// Env returns the current value of a variable.
func (in *Interpreter) Env(name string) (string, bool) {
	v, ok := in.env[name]
	return v, ok
}

// Execute runs the operation list. A cancelled context stops execution
// between commands; completed changes are kept in the result.
func (in *Interpreter) Execute(ctx context.Context, ops []model.EnvOp) ExecutionResult {
	key := in.stateHash() + programHash(ops)
	if in.execCache != nil {
		if cached, ok := in.execCache.Get(key); ok {
			// Replay the cached changes so the interpreter state matches
			// a live run.
			for name, value := range cached.EnvChanges {
				if value == nil {
					delete(in.env, name)
				} else {
					in.env[name] = *value
				}
				in.changes[name] = value
			}
			return cached
		}
	}
	result := in.run(ctx, ops)
	if in.execCache != nil && result.Success {
		in.execCache.Put(key, result, int64(len(ops)))
	}
	return result
}

func (in *Interpreter) run(ctx context.Context, ops []model.EnvOp) ExecutionResult {
	success := true
	for _, op := range ops {
		if ctx.Err() != nil {
			in.errors = append(in.errors, "execution cancelled")
			success = false
			break
		}
		if err := in.apply(ctx, op); err != nil {
			in.errors = append(in.errors, err.Error())
			success = false
		}
	}
	changes := make(map[string]*string, len(in.changes))
	for k, v := range in.changes {
		changes[k] = v
	}
	return ExecutionResult{
		Success:    success && len(in.errors) == 0,
		Output:     append([]string(nil), in.output...),
		Errors:     append([]string(nil), in.errors...),
		EnvChanges: changes,
	}
}

func (in *Interpreter) apply(ctx context.Context, op model.EnvOp) error {
	switch op.Kind {
	case model.OpSet:
		value := in.expand(op.Value)
		in.setVar(op.Name, value)
	case model.OpPrepend:
		in.setVar(op.Name, joinList(in.expand(op.Value), in.env[op.Name], sepOrDefault(op.Sep)))
	case model.OpAppend:
		in.setVar(op.Name, joinList(in.env[op.Name], in.expand(op.Value), sepOrDefault(op.Sep)))
	case model.OpUnset:
		delete(in.env, op.Name)
		in.changes[op.Name] = nil
	case model.OpAlias:
		in.aliases[op.Name] = op.Value
	case model.OpFunction:
		in.functions[op.Name] = op.Value
	case model.OpSource:
		return in.source(ctx, in.expand(op.Value))
	case model.OpCommand:
		expanded := make([]string, len(op.Argv))
		for i, a := range op.Argv {
			expanded[i] = in.expand(a)
		}
		in.output = append(in.output, strings.Join(expanded, " "))
	case model.OpIf:
		return in.conditional(ctx, op)
	case model.OpComment:
		// comments carry no effect
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("rex exec: unknown operation kind " + string(op.Kind))
	}
	return nil
}

func (in *Interpreter) setVar(name string, value string) {
	in.env[name] = value
	v := value
	in.changes[name] = &v
}

func (in *Interpreter) conditional(ctx context.Context, op model.EnvOp) error {
	if op.Cond == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rex exec: if without condition")
	}
	match := in.env[op.Cond.Var] == op.Cond.Literal
	if op.Cond.Negate {
		match = !match
	}
	branch := op.Then
	if !match {
		branch = op.Else
	}
	for _, nested := range branch {
		if err := in.apply(ctx, nested); err != nil {
			return err
		}
	}
	return nil
}

// source parses and executes the referenced file in place.
func (in *Interpreter) source(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("rex exec: cannot source " + path).
			WithCause(err)
	}
	ops, err := in.parser.Parse(string(data))
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := in.apply(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// expand substitutes $VAR and ${VAR} references from the current
// environment; unknown variables expand to the empty string.
func (in *Interpreter) expand(value string) string {
	return os.Expand(value, func(name string) string {
		return in.env[name]
	})
}

func sepOrDefault(sep string) string {
	if sep == "" {
		return ":"
	}
	return sep
}

// joinList joins two list fragments, dropping an empty side so a first
// prepend does not leave a dangling separator.
func joinList(head string, tail string, sep string) string {
	if head == "" {
		return tail
	}
	if tail == "" {
		return head
	}
	return head + sep + tail
}

// stateHash covers the interpreter's current environment so the
// execution cache never serves a result computed under a different
// starting state.
func (in *Interpreter) stateHash() string {
	keys := make([]string, 0, len(in.env))
	for k := range in.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, in.env[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// programHash keys the execution cache over the full operation list.
func programHash(ops []model.EnvOp) string {
	h := sha256.New()
	var walk func(ops []model.EnvOp)
	walk = func(ops []model.EnvOp) {
		for _, op := range ops {
			fmt.Fprintf(h, "%s|%s|%s|%s|%v;", op.Kind, op.Name, op.Value, op.Sep, op.Argv)
			if op.Cond != nil {
				fmt.Fprintf(h, "cond:%s=%s!%v;", op.Cond.Var, op.Cond.Literal, op.Cond.Negate)
			}
			walk(op.Then)
			walk(op.Else)
		}
	}
	walk(ops)
	return hex.EncodeToString(h.Sum(nil))
}
