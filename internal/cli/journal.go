package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/journal"
	"github.com/roach88/causal/internal/telemetry"
)

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Persist histories and telemetry in a SQLite journal",
		Long: `Save exported histories into a SQLite journal, load them back out,
and read the telemetry recorded there by audits.`,
	}

	cmd.AddCommand(newJournalSaveCommand(rootOpts))
	cmd.AddCommand(newJournalLoadCommand(rootOpts))
	cmd.AddCommand(newJournalListCommand(rootOpts))
	cmd.AddCommand(newJournalTelemetryCommand(rootOpts))
	return cmd
}

func withJournal(ctx context.Context, opts *RootOptions, cmd *cobra.Command, path string, fn func(context.Context, *journal.Journal, *OutputFormatter) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	j, err := journal.Open(path, journal.WithLogger(opts.logger()))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	defer j.Close()
	return fn(ctx, j, formatter)
}

// JournalSaveResult lists the stores written.
type JournalSaveResult struct {
	Stores []StoreSummary `json:"stores"`
}

func newJournalSaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <db> <history.json>...",
		Short: "Save exported histories into the journal",
		Long: `Save exported histories. Saving is idempotent: events already in
the journal are kept, new ones are appended.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), opts, cmd, args[0], func(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
				stores, err := loadHistories(args[1:])
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load histories", err)
				}
				var result JournalSaveResult
				for _, key := range slices.Sorted(maps.Keys(stores)) {
					s := stores[key]
					if err := j.Save(ctx, causal.Untyped(s)); err != nil {
						return f.Fail(ExitCommandError, ErrCodeJournal, "failed to save "+key, err)
					}
					result.Stores = append(result.Stores, StoreSummary{
						Key:      key,
						Universe: s.CurrentUniverse(),
						Events:   s.Len(),
						Value:    s.Get(),
					})
					f.VerboseLog("Saved %s (%d events)", key, s.Len())
				}
				if f.IsJSON() {
					return f.Success(result)
				}
				for _, s := range result.Stores {
					fmt.Fprintf(f.Writer, "✓ %s: %d event(s)\n", s.Key, s.Events)
				}
				return nil
			})
		},
	}
}

func newJournalLoadCommand(opts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:           "load <db> <store-key>",
		Short:         "Export a store from the journal as a history file",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), opts, cmd, args[0], func(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
				snap, err := j.LoadSnapshot(ctx, args[1])
				if errors.Is(err, journal.ErrNotFound) {
					return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("store %q not in journal", args[1]), nil)
				}
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeJournal, "failed to load store", err)
				}

				s := causal.NewStore[any](snap.StoreKey, snap.Initial)
				if err := s.Restore(snap); err != nil {
					return f.Fail(ExitCommandError, ErrCodeJournal, "journal holds an invalid history", err)
				}
				data, err := s.ExportHistory()
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeJournal, "failed to export", err)
				}

				if out == "" {
					_, err := f.Writer.Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return f.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to write history", err)
				}
				if f.IsJSON() {
					return f.Success(StoreSummary{Key: s.Key(), Universe: s.CurrentUniverse(), Events: s.Len(), Value: s.Get(), Written: out})
				}
				fmt.Fprintf(f.Writer, "✓ %s: %d event(s) written to %s\n", s.Key(), s.Len(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newJournalListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <db>",
		Short:         "List the stores in the journal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), opts, cmd, args[0], func(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
				keys, err := j.StoreKeys(ctx)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeJournal, "failed to list stores", err)
				}
				if f.IsJSON() {
					return f.Success(map[string]any{"stores": keys})
				}
				if len(keys) == 0 {
					fmt.Fprintln(f.Writer, "No stores.")
				}
				for _, key := range keys {
					fmt.Fprintln(f.Writer, key)
				}
				return nil
			})
		},
	}
}

func newJournalTelemetryCommand(opts *RootOptions) *cobra.Command {
	var (
		types []string
		law   string
		store string
	)

	cmd := &cobra.Command{
		Use:           "telemetry <db>",
		Short:         "Read the telemetry recorded in the journal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), opts, cmd, args[0], func(ctx context.Context, j *journal.Journal, f *OutputFormatter) error {
				filter := telemetry.Filter{LawName: law, StoreKey: store}
				for _, t := range types {
					typ := telemetry.Type(t)
					if !typ.Valid() {
						return f.Fail(ExitCommandError, ErrCodeInvalidInput, fmt.Sprintf("unknown entry type %q", t), nil)
					}
					filter.Types = append(filter.Types, typ)
				}

				entries, err := j.ReadTelemetry(ctx, filter)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeJournal, "failed to read telemetry", err)
				}
				if f.IsJSON() {
					return f.Success(map[string]any{"telemetry": entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(f.Writer, "No telemetry.")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(f.Writer, "%s %-5s %-14s %s/%s: %s\n",
						e.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"), e.Severity, e.Type, e.StoreKey, e.LawName, e.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "entry type (repeatable)")
	cmd.Flags().StringVar(&law, "law", "", "law name")
	cmd.Flags().StringVar(&store, "store", "", "store key")
	return cmd
}
