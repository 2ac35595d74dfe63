package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/causal/internal/audit"
	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/law"
	"github.com/roach88/causal/internal/rules"
	"github.com/roach88/causal/internal/telemetry"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Out            string
	AutoRepair     bool
	ApplyReactions bool
	MaxSteps       int
	CreateMissing  bool
	Strict         bool
}

// StoreSummary describes one store after the audit.
type StoreSummary struct {
	Key      string `json:"key"`
	Universe string `json:"universe"`
	Events   int    `json:"events"`
	Added    int    `json:"added"`
	Value    any    `json:"value"`
	Written  string `json:"written,omitempty"`
}

// AuditResult holds the outcome of an audit run.
type AuditResult struct {
	RuleSet     string            `json:"ruleSet"`
	Fingerprint string            `json:"fingerprint"`
	Stores      []StoreSummary    `json:"stores"`
	Telemetry   []telemetry.Entry `json:"telemetry"`
	Counts      map[string]int    `json:"counts"`
	Dropped     uint64            `json:"dropped,omitempty"`
	Metrics     []MetricPoint     `json:"metrics,omitempty"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit <rules.yaml> <history.json>...",
		Short: "Enforce a rule-set over exported histories",
		Long: `Load a rule-set and one or more exported histories, then run the
auditor once over every store: each law is evaluated against its store's
current head, repairs and reactions are written back, and every outcome is
reported as telemetry.

Telemetry also goes to the sinks enabled in config (journal.path,
redis.addr, metrics.enabled). With a journal configured the audited
histories are saved to it as well.

Exit codes:
  0 - No error-severity telemetry (and no violations with --strict)
  1 - Audit failed
  2 - Command error (missing files, invalid rule-set, corrupt history)

Examples:
  causal audit rules.yaml balance.json ledger.json
  causal audit rules.yaml balance.json --out repaired/
  causal audit rules.yaml balance.json --auto-repair=false --strict`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "write the audited histories to this directory")
	cmd.Flags().BoolVar(&opts.AutoRepair, "auto-repair", true, "write successful repairs (default from config)")
	cmd.Flags().BoolVar(&opts.ApplyReactions, "apply-reactions", true, "apply reactions (default from config)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "writes allowed per flow (default from config)")
	cmd.Flags().BoolVar(&opts.CreateMissing, "create-missing", false, "create empty stores for law stores and reaction targets with no history")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on violations, not only on errors")

	return cmd
}

func runAudit(ctx context.Context, opts *AuditOptions, rulesPath string, historyPaths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	cfg := opts.config()
	logger := opts.logger()

	rs, reg, err := rules.LoadAndCompile(rulesPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeValidation, "failed to load rule-set", err)
	}

	fingerprint, err := rules.Fingerprint(rs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeValidation, "failed to fingerprint rule-set", err)
	}
	logger.Info("rule-set loaded", "name", rs.Name, "laws", len(rs.Laws), "fingerprint", fingerprint)

	stores, err := loadHistories(historyPaths)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load histories", err)
	}
	if opts.CreateMissing {
		for _, key := range referencedStores(reg) {
			if _, ok := stores[key]; !ok {
				formatter.VerboseLog("Creating empty store %s", key)
				stores[key] = causal.NewStore[any](key, nil)
			}
		}
	}

	if opts.Out != "" {
		if err := os.MkdirAll(opts.Out, 0o755); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to create output directory", err)
		}
	}

	autoRepair := cfg.Audit.AutoRepair
	if cmd.Flags().Changed("auto-repair") {
		autoRepair = opts.AutoRepair
	}
	applyReactions := cfg.Audit.ApplyReactions
	if cmd.Flags().Changed("apply-reactions") {
		applyReactions = opts.ApplyReactions
	}
	maxSteps := cfg.Audit.MaxSteps
	if opts.MaxSteps > 0 {
		maxSteps = opts.MaxSteps
	}

	out, err := openSinks(cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open telemetry sinks", err)
	}
	defer out.Close()

	keys := slices.Sorted(maps.Keys(stores))
	handles := make(map[string]causal.Handle, len(stores))
	before := make(map[string]int, len(stores))
	for _, key := range keys {
		handles[key] = causal.Untyped(stores[key])
		before[key] = stores[key].Len()
	}

	auditor := audit.New(audit.Options{
		Stores:            handles,
		Laws:              reg,
		AutoRepair:        autoRepair,
		ApplyReactions:    applyReactions,
		Sink:              out,
		TelemetryCapacity: cfg.Audit.TelemetryCapacity,
		MaxSteps:          maxSteps,
		Logger:            logger,
	})
	auditor.Start(ctx)
	auditor.Stop()

	result := AuditResult{
		RuleSet:     rs.Name,
		Fingerprint: fingerprint,
		Telemetry:   auditor.Telemetry(),
		Counts:      make(map[string]int, len(telemetry.Types)),
		Dropped:     auditor.Dropped(),
	}
	for _, t := range telemetry.Types {
		result.Counts[string(t)] = telemetry.Count(result.Telemetry, t)
	}

	for _, key := range keys {
		s := stores[key]
		summary := StoreSummary{
			Key:      key,
			Universe: s.CurrentUniverse(),
			Events:   s.Len(),
			Added:    s.Len() - before[key],
			Value:    s.Get(),
		}
		if opts.Out != "" {
			path, err := writeHistory(opts.Out, handles[key])
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to write history", err)
			}
			summary.Written = path
		}
		if out.journal != nil {
			if err := out.journal.Save(ctx, handles[key]); err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to save to journal", err)
			}
		}
		result.Stores = append(result.Stores, summary)
	}

	if result.Metrics, err = out.Metrics(ctx); err != nil {
		logger.Warn("metrics collection failed", "error", err)
	}

	failed := 0
	for _, e := range result.Telemetry {
		if e.Severity == telemetry.SeverityError || (opts.Strict && e.Type == telemetry.TypeViolation) {
			failed++
		}
	}

	if failed > 0 {
		message := fmt.Sprintf("audit failed: %d telemetry entries need attention", failed)
		if formatter.IsJSON() {
			if err := formatter.Failure(ErrCodeAuditFailed, message, result); err != nil {
				return err
			}
		} else {
			writeAuditText(formatter.Writer, result)
			fmt.Fprintf(formatter.Writer, "\n✗ %s\n", message)
		}
		return NewExitError(ExitFailure, message)
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	writeAuditText(formatter.Writer, result)
	fmt.Fprintln(formatter.Writer, "\n✓ Audit passed")
	return nil
}

// referencedStores returns every store key a law is bound to or reacts into.
func referencedStores(src law.Source) []string {
	seen := make(map[string]bool)
	for key, rs := range src.ToMap() {
		seen[key] = true
		for _, r := range rs {
			for _, target := range r.Targets() {
				seen[target] = true
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func writeAuditText(w io.Writer, r AuditResult) {
	fmt.Fprintf(w, "Rule-set: %s (%s)\n\n", r.RuleSet, shortHash(r.Fingerprint))

	fmt.Fprintln(w, "Stores:")
	for _, s := range r.Stores {
		fmt.Fprintf(w, "  %-16s %3d event(s) (+%d)  %s = %s\n", s.Key, s.Events, s.Added, s.Universe, compactJSON(s.Value))
		if s.Written != "" {
			fmt.Fprintf(w, "  %-16s written to %s\n", "", s.Written)
		}
	}

	fmt.Fprintf(w, "\nTelemetry (%d):\n", len(r.Telemetry))
	for _, e := range r.Telemetry {
		fmt.Fprintf(w, "  %-5s %-14s %s/%s: %s\n", e.Severity, e.Type, e.StoreKey, e.LawName, e.Message)
	}
	if r.Dropped > 0 {
		fmt.Fprintf(w, "  (%d older entries dropped)\n", r.Dropped)
	}

	if len(r.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics (causal.telemetry.entries):")
		for _, m := range r.Metrics {
			fmt.Fprintf(w, "  %s/%s %s %s: %d\n", m.Store, m.Law, m.Type, m.Severity, m.Count)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
