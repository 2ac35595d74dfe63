package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/causal/internal/causal"
)

// loadHistory reads an exported history (envelope or bare event array) into
// a new untyped store. The store key comes from the envelope, then from the
// first event, then from the file name.
func loadHistory(path string) (*causal.Store[any], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	snap, err := causal.DecodeSnapshot[any](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	key := snap.StoreKey
	if key == "" && len(snap.Events) > 0 {
		key = snap.Events[0].StoreKey
	}
	if key == "" {
		key = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s := causal.NewStore[any](key, snap.Initial)
	if err := s.Restore(snap); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// loadHistories loads every path, keyed by store key. Two files for one key
// is an error.
func loadHistories(paths []string) (map[string]*causal.Store[any], error) {
	stores := make(map[string]*causal.Store[any], len(paths))
	origin := make(map[string]string, len(paths))
	for _, path := range paths {
		s, err := loadHistory(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := origin[s.Key()]; dup {
			return nil, fmt.Errorf("store %q is in both %s and %s", s.Key(), prev, path)
		}
		origin[s.Key()] = path
		stores[s.Key()] = s
	}
	return stores, nil
}

// writeHistory exports h into dir as <key>.json and returns the path.
func writeHistory(dir string, h causal.Handle) (string, error) {
	data, err := h.ExportHistory()
	if err != nil {
		return "", err
	}
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(h.Key()) + ".json"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write history: %w", err)
	}
	return path, nil
}

// eventView is the output shape of one event.
type eventView struct {
	Seq       int64    `json:"seq"`
	ID        string   `json:"id"`
	Universe  string   `json:"universe"`
	Kind      string   `json:"kind"`
	Observer  string   `json:"observer,omitempty"`
	Timestamp string   `json:"timestamp"`
	Flow      string   `json:"flow"`
	ParentIDs []string `json:"parentIds"`
	Value     any      `json:"value"`
}

func viewEvents(events []causal.Event[any]) []eventView {
	out := make([]eventView, len(events))
	for i, ev := range events {
		parents := ev.ParentIDs
		if parents == nil {
			parents = []string{}
		}
		out[i] = eventView{
			Seq:       ev.Seq,
			ID:        ev.ID,
			Universe:  ev.UniverseID,
			Kind:      string(ev.Kind),
			Observer:  ev.ObserverID,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
			Flow:      ev.Flow,
			ParentIDs: parents,
			Value:     ev.Value,
		}
	}
	return out
}
