package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/causal/internal/causal"
)

// InspectResult describes one exported history.
type InspectResult struct {
	StoreKey        string          `json:"storeKey"`
	CurrentUniverse string          `json:"currentUniverse"`
	Value           any             `json:"value"`
	Branches        []causal.Branch `json:"branches"`
	Events          []eventView     `json:"events"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "inspect <history.json>",
		Short: "Show the universes and events of an exported history",
		Long: `Load an exported store history and print its current universe,
current value, universes and (optionally) every event.

Examples:
  causal inspect balance.json
  causal inspect balance.json --events
  causal inspect balance.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], showEvents, cmd)
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "list every event (always included in JSON)")
	return cmd
}

func runInspect(opts *RootOptions, path string, showEvents bool, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := loadHistory(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "failed to load history", err)
	}
	formatter.VerboseLog("Loaded %s: %d event(s)", s.Key(), s.Len())

	result := InspectResult{
		StoreKey:        s.Key(),
		CurrentUniverse: s.CurrentUniverse(),
		Value:           s.Get(),
		Branches:        s.ListBranches(),
		Events:          viewEvents(s.History()),
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	writeInspectText(formatter.Writer, result, showEvents)
	return nil
}

func writeInspectText(w io.Writer, r InspectResult, showEvents bool) {
	fmt.Fprintf(w, "Store: %s\n", r.StoreKey)
	fmt.Fprintf(w, "Current universe: %s\n", r.CurrentUniverse)
	fmt.Fprintf(w, "Value: %s\n", compactJSON(r.Value))
	fmt.Fprintf(w, "Events: %d\n", len(r.Events))

	fmt.Fprintf(w, "\nUniverses (%d):\n", len(r.Branches))
	for _, b := range r.Branches {
		marker := " "
		if b.ID == r.CurrentUniverse {
			marker = "*"
		}
		if b.ParentUniverse == "" {
			fmt.Fprintf(w, "  %s %s\n", marker, b.ID)
			continue
		}
		fork := b.ForkEventID
		if fork == "" {
			fork = "(empty)"
		}
		fmt.Fprintf(w, "  %s %s  from %s at %s  created %s\n",
			marker, b.ID, b.ParentUniverse, fork, b.CreatedAt.UTC().Format(time.RFC3339))
	}

	if !showEvents {
		return
	}
	fmt.Fprintln(w, "\nEvents:")
	writeEventsText(w, r.Events)
}

func writeEventsText(w io.Writer, events []eventView) {
	for _, ev := range events {
		observer := ev.Observer
		if observer == "" {
			observer = "-"
		}
		fmt.Fprintf(w, "  [%d] %s %s %-8s %-10s %-16s %s\n",
			ev.Seq, ev.ID, ev.Timestamp, ev.Kind, ev.Universe, observer, compactJSON(ev.Value))
	}
}

// compactJSON renders v on one line, falling back to %v.
func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
