package rules

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/google/cel-go/cel"

	"github.com/roach88/causal/internal/law"
)

// Compile validates rs and builds a registry of its laws.
// Returns ValidationErrors if rs is invalid.
func Compile(rs *RuleSet) (*law.Registry, error) {
	if errs := Validate(rs); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	env, err := sharedEnv()
	if err != nil {
		return nil, err
	}

	reg := law.NewRegistry()
	for _, spec := range rs.Laws {
		l, err := compileLaw(env, spec)
		if err != nil {
			return nil, fmt.Errorf("compile law %s: %w", spec.Name, err)
		}
		law.Add(reg, spec.Store, l)
	}
	return reg, nil
}

// LoadAndCompile is Load followed by Compile.
func LoadAndCompile(path string) (*RuleSet, *law.Registry, error) {
	rs, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := Compile(rs)
	if err != nil {
		return rs, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, reg, nil
}

func compileLaw(env *cel.Env, spec LawSpec) (law.Law[any], error) {
	var (
		check  *program
		schema *schemaCheck
		err    error
	)
	if spec.Expr != "" {
		if check, err = compileExpr(env, spec.Expr, true); err != nil {
			return law.Law[any]{}, fmt.Errorf("expr: %w", err)
		}
	}
	if spec.Schema != "" {
		if schema, err = compileSchema(spec.Schema); err != nil {
			return law.Law[any]{}, fmt.Errorf("schema: %w", err)
		}
	}

	message := spec.Message
	if message == "" {
		message = fmt.Sprintf("%s violated", spec.Name)
	}

	l := law.Law[any]{
		Name: spec.Name,
		Evaluate: func(state any) law.Evaluation {
			var violations []string
			if check != nil {
				ok, err := check.evalBool(context.Background(), Normalize(state))
				switch {
				case err != nil:
					violations = append(violations, err.Error())
				case !ok:
					violations = append(violations, message)
				}
			}
			if schema != nil {
				violations = append(violations, schema.violations(state)...)
			}
			if len(violations) > 0 {
				return law.Fail(violations...)
			}
			return law.Pass()
		},
	}

	if spec.Repair != "" {
		repair, err := compileExpr(env, spec.Repair, false)
		if err != nil {
			return law.Law[any]{}, fmt.Errorf("repair: %w", err)
		}
		l.Repair = func(ctx context.Context, state any) (any, error) {
			return repair.eval(ctx, Normalize(state), nil)
		}
	}

	for _, r := range spec.Reactions {
		compute, err := compileExpr(env, r.Compute, false)
		if err != nil {
			return law.Law[any]{}, fmt.Errorf("reaction %s: %w", r.Target, err)
		}
		target := r.Target
		l.Reactions = append(l.Reactions, law.Reaction[any]{
			Target: target,
			Compute: func(ctx context.Context, state any, lc law.Context) (any, error) {
				current, _ := lc.GetState(target)
				return compute.eval(ctx, Normalize(state), Normalize(current))
			},
		})
	}
	return l, nil
}

// schemaCheck is a compiled CUE constraint.
//
// CUE values are not safe for concurrent use, so evaluations of one schema
// are serialized.
type schemaCheck struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

func compileSchema(source string) (*schemaCheck, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(source)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return &schemaCheck{ctx: ctx, schema: v}, nil
}

// violations returns one message per CUE error of state against the schema.
func (s *schemaCheck) violations(state any) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.schema.Unify(s.ctx.Encode(Normalize(state)))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		msgs = append(msgs, e.Error())
	}
	if len(msgs) == 0 {
		msgs = append(msgs, err.Error())
	}
	return msgs
}
