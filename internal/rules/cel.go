package rules

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

// costLimit bounds the work of one expression evaluation.
const costLimit = 100000

var structValueType = reflect.TypeOf(&structpb.Value{})

// sharedEnv is the environment every compiled expression is built against.
var sharedEnv = sync.OnceValues(newEnv)

// newEnv creates the CEL environment shared by every expression: state is the
// law's store value, target the reaction target's current value.
func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("state", cel.DynType),
		cel.Variable("target", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return env, nil
}

// program is one compiled CEL expression.
type program struct {
	source string
	prg    cel.Program
}

// compileExpr compiles source. When wantBool is set the expression must be
// boolean (or dynamic).
func compileExpr(env *cel.Env, source string, wantBool bool) (*program, error) {
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if wantBool {
		out := ast.OutputType()
		if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("expression must be bool, got %s", out)
		}
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return &program{source: source, prg: prg}, nil
}

func vars(state, target any) map[string]any {
	return map[string]any{"state": state, "target": target}
}

// eval runs the program and returns its result as a plain Go value.
func (p *program) eval(ctx context.Context, state, target any) (any, error) {
	out, _, err := p.prg.ContextEval(ctx, vars(state, target))
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", p.source, err)
	}
	return native(out)
}

// evalBool runs a boolean program.
func (p *program) evalBool(ctx context.Context, state any) (bool, error) {
	out, _, err := p.prg.ContextEval(ctx, vars(state, nil))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: result is %s, not bool", p.source, out.Type())
	}
	return b, nil
}

// native converts a CEL value to JSON-shaped Go values via structpb.
func native(v ref.Val) (any, error) {
	pb, err := v.ConvertToNative(structValueType)
	if err != nil {
		return nil, fmt.Errorf("convert %s result: %w", v.Type(), err)
	}
	return Normalize(pb.(*structpb.Value).AsInterface()), nil
}
