package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/causal/internal/causal"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Observers []string
	Kinds     []string
	Universe  string
	Since     string
	Until     string
	CausedBy  string
	At        string
}

// QueryResult holds the matching events, or the value at a point in time.
type QueryResult struct {
	StoreKey string      `json:"storeKey"`
	Events   []eventView `json:"events,omitempty"`
	At       string      `json:"at,omitempty"`
	Value    any         `json:"value,omitempty"`
	Found    *bool       `json:"found,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <history.json>",
		Short: "Query the events of an exported history",
		Long: `Select events from an exported history. Filters are combined with AND.

--since/--until bound event timestamps (inclusive, RFC 3339) across all
universes. --caused-by keeps the descendants of an event. --at prints the
value of the current universe at a point in time instead of events.

Examples:
  causal query balance.json --observer alice --kind set
  causal query balance.json --universe draft --since 2024-01-01T00:00:00Z
  causal query balance.json --caused-by 0190c4e2-...
  causal query balance.json --at 2024-01-01T12:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Observers, "observer", nil, "observer id (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "event kind: set, repair, reaction, fork, merge (repeatable)")
	cmd.Flags().StringVar(&opts.Universe, "universe", "", "universe id")
	cmd.Flags().StringVar(&opts.Since, "since", "", "earliest timestamp (RFC 3339)")
	cmd.Flags().StringVar(&opts.Until, "until", "", "latest timestamp (RFC 3339)")
	cmd.Flags().StringVar(&opts.CausedBy, "caused-by", "", "keep only descendants of this event id")
	cmd.Flags().StringVar(&opts.At, "at", "", "print the value at this timestamp (RFC 3339)")

	return cmd
}

func runQuery(opts *QueryOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := loadHistory(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load history", err)
	}

	if opts.At != "" {
		at, err := time.Parse(time.RFC3339Nano, opts.At)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid --at", err)
		}
		value, found := s.At(at)
		result := QueryResult{StoreKey: s.Key(), At: at.UTC().Format(time.RFC3339Nano), Value: value, Found: &found}
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		if !found {
			fmt.Fprintf(formatter.Writer, "%s at %s: %s (initial, no event yet)\n", s.Key(), result.At, compactJSON(value))
			return nil
		}
		fmt.Fprintf(formatter.Writer, "%s at %s: %s\n", s.Key(), result.At, compactJSON(value))
		return nil
	}

	events, err := selectEvents(s, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid query", err)
	}
	formatter.VerboseLog("%d of %d event(s) match", len(events), s.Len())

	result := QueryResult{StoreKey: s.Key(), Events: viewEvents(events)}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	if len(events) == 0 {
		fmt.Fprintln(formatter.Writer, "No matching events.")
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d matching event(s) in %s:\n", len(events), s.Key())
	writeEventsText(formatter.Writer, result.Events)
	return nil
}

// selectEvents applies the query flags to s.
func selectEvents(s *causal.Store[any], opts *QueryOptions) ([]causal.Event[any], error) {
	filter := causal.Filter{
		ObserverIDs: opts.Observers,
		UniverseID:  opts.Universe,
	}
	for _, k := range opts.Kinds {
		kind := causal.EventKind(k)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown event kind %q", k)
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	var since, until time.Time
	var err error
	if opts.Since != "" {
		if since, err = time.Parse(time.RFC3339Nano, opts.Since); err != nil {
			return nil, fmt.Errorf("--since: %w", err)
		}
	}
	if opts.Until != "" {
		if until, err = time.Parse(time.RFC3339Nano, opts.Until); err != nil {
			return nil, fmt.Errorf("--until: %w", err)
		}
	}

	var descendants map[string]bool
	if opts.CausedBy != "" {
		if _, ok := s.Event(opts.CausedBy); !ok {
			return nil, fmt.Errorf("unknown event %q", opts.CausedBy)
		}
		descendants = make(map[string]bool)
		for _, ev := range s.CausedBy(opts.CausedBy) {
			descendants[ev.ID] = true
		}
	}

	events := s.Query(filter)
	return slices.DeleteFunc(events, func(ev causal.Event[any]) bool {
		if !since.IsZero() && ev.Timestamp.Before(since) {
			return true
		}
		if !until.IsZero() && ev.Timestamp.After(until) {
			return true
		}
		return descendants != nil && !descendants[ev.ID]
	}), nil
}
