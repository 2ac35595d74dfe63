package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/causal/internal/rules"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                    `json:"valid"`
	Name        string                  `json:"name,omitempty"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
	Laws        int                     `json:"laws"`
	Stores      []string                `json:"stores,omitempty"`
	Errors      []rules.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules.yaml>",
		Short: "Validate a rule-set without running it",
		Long: `Validate a rule-set file: version, law names and stores, CEL
expressions (expr, repair, reaction compute) and CUE schemas.

All errors are reported, not just the first.

Exit codes:
  0 - Rule-set is valid
  1 - Rule-set has validation errors
  2 - Command error (file missing, YAML malformed)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	rs, err := rules.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load rule-set", err)
	}
	formatter.VerboseLog("Loaded rule-set %q with %d law(s)", rs.Name, len(rs.Laws))

	result := ValidationResult{
		Name:   rs.Name,
		Laws:   len(rs.Laws),
		Stores: rs.StoreKeys(),
	}

	if errs := rules.Validate(rs); len(errs) > 0 {
		result.Errors = errs
		return outputValidationErrors(formatter, result)
	}

	// Validation passed; compiling catches what only surfaces when the
	// programs are built.
	if _, err := rules.Compile(rs); err != nil {
		var verrs rules.ValidationErrors
		if errors.As(err, &verrs) {
			result.Errors = verrs
			return outputValidationErrors(formatter, result)
		}
		return formatter.Fail(ExitFailure, ErrCodeValidation, "failed to compile rule-set", err)
	}

	result.Valid = true
	if result.Fingerprint, err = rules.Fingerprint(rs); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to fingerprint rule-set", err)
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Rule-set %s valid (%d law(s) over %d store(s))\n", rs.Name, result.Laws, len(result.Stores))
	formatter.VerboseLog("Fingerprint: %s", result.Fingerprint)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	message := fmt.Sprintf("validation failed with %d error(s)", len(errs))

	if formatter.IsJSON() {
		if err := formatter.Failure(errs[0].Code, errs[0].Message, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, message)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, message)
}
