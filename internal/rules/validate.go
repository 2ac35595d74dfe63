package rules

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
)

// SupportedVersions is the rule-set format range this package reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// Validation error codes (R100-R199)
const (
	ErrUnsupportedVersion  = "R100" // version missing, malformed or out of range
	ErrLawNameEmpty        = "R101" // law name is required
	ErrDuplicateLawName    = "R102" // law names must be unique
	ErrLawStoreEmpty       = "R103" // law store is required
	ErrLawNoCheck          = "R104" // expr or schema is required
	ErrInvalidExpr         = "R105" // expr does not compile to a bool
	ErrInvalidSchema       = "R106" // schema is not valid CUE
	ErrInvalidRepair       = "R107" // repair does not compile
	ErrReactionTargetEmpty = "R108" // reaction target is required
	ErrInvalidCompute      = "R109" // reaction compute missing or does not compile
)

// ValidationError is one problem found in a rule-set.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Compile when validation fails.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("invalid rule-set: %s", strings.Join(msgs, "; "))
}

// Validate checks rs and returns every problem found (does not fail fast).
// Expressions and schemas are compiled, not evaluated.
func Validate(rs *RuleSet) []ValidationError {
	var errs []ValidationError

	if err := checkVersion(rs.Version); err != nil {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: err.Error(),
			Code:    ErrUnsupportedVersion,
		})
	}

	env, err := sharedEnv()
	if err != nil {
		return append(errs, ValidationError{Field: "env", Message: err.Error(), Code: ErrInvalidExpr})
	}
	cueCtx := cuecontext.New()

	seen := make(map[string]bool)
	for i, l := range rs.Laws {
		field := fmt.Sprintf("laws[%d]", i)
		if l.Name != "" {
			field = fmt.Sprintf("laws[%s]", l.Name)
		}
		errs = append(errs, validateLaw(env, cueCtx, field, l, seen)...)
	}
	return errs
}

func checkVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return fmt.Errorf("version is required")
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("version %s not in supported range %s", v, SupportedVersions)
	}
	return nil
}

func validateLaw(env *cel.Env, cueCtx *cue.Context, field string, l LawSpec, seen map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(sub, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field + sub,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	switch {
	case strings.TrimSpace(l.Name) == "":
		add(".name", ErrLawNameEmpty, "name is required")
	case seen[l.Name]:
		add(".name", ErrDuplicateLawName, "duplicate law name %q", l.Name)
	default:
		seen[l.Name] = true
	}

	if strings.TrimSpace(l.Store) == "" {
		add(".store", ErrLawStoreEmpty, "store is required")
	}

	if l.Expr == "" && l.Schema == "" {
		add("", ErrLawNoCheck, "expr or schema is required")
	}
	if l.Expr != "" {
		if _, err := compileExpr(env, l.Expr, true); err != nil {
			add(".expr", ErrInvalidExpr, "%v", err)
		}
	}
	if l.Schema != "" {
		if err := cueCtx.CompileString(l.Schema).Err(); err != nil {
			add(".schema", ErrInvalidSchema, "%v", err)
		}
	}
	if l.Repair != "" {
		if _, err := compileExpr(env, l.Repair, false); err != nil {
			add(".repair", ErrInvalidRepair, "%v", err)
		}
	}

	for i, r := range l.Reactions {
		sub := fmt.Sprintf(".reactions[%d]", i)
		if strings.TrimSpace(r.Target) == "" {
			add(sub+".target", ErrReactionTargetEmpty, "target is required")
		}
		if strings.TrimSpace(r.Compute) == "" {
			add(sub+".compute", ErrInvalidCompute, "compute is required")
			continue
		}
		if _, err := compileExpr(env, r.Compute, false); err != nil {
			add(sub+".compute", ErrInvalidCompute, "%v", err)
		}
	}
	return errs
}
