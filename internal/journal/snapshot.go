package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/causal/internal/causal"
)

// SaveSnapshot writes snap in one transaction.
//
// The store row's current universe is updated; universes and events that
// already exist are kept unchanged (ON CONFLICT DO NOTHING).
func (j *Journal) SaveSnapshot(ctx context.Context, snap causal.Snapshot[any]) (err error) {
	if snap.StoreKey == "" {
		return errors.New("save snapshot: empty store key")
	}

	initial, err := marshalCanonical(snap.Initial)
	if err != nil {
		return fmt.Errorf("save snapshot %s: marshal initial: %w", snap.StoreKey, err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot %s: begin: %w", snap.StoreKey, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stores (key, current_universe, initial, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET current_universe = excluded.current_universe
	`, snap.StoreKey, snap.CurrentUniverse, initial, snap.Version)
	if err != nil {
		return fmt.Errorf("save snapshot %s: store: %w", snap.StoreKey, err)
	}

	for _, b := range snap.Branches {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO universes (store_key, id, name, parent_universe, fork_event_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, snap.StoreKey, b.ID, b.Name, b.ParentUniverse, b.ForkEventID, formatTime(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("save snapshot %s: universe %s: %w", snap.StoreKey, b.ID, err)
		}
	}

	for _, ev := range snap.Events {
		if err = insertEvent(ctx, tx, snap.StoreKey, ev); err != nil {
			return fmt.Errorf("save snapshot %s: %w", snap.StoreKey, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot %s: commit: %w", snap.StoreKey, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, key string, ev causal.Event[any]) error {
	value, err := marshalCanonical(ev.Value)
	if err != nil {
		return fmt.Errorf("event %s: marshal value: %w", ev.ID, err)
	}
	parentIDs := ev.ParentIDs
	if parentIDs == nil {
		parentIDs = []string{}
	}
	parents, err := json.Marshal(parentIDs)
	if err != nil {
		return fmt.Errorf("event %s: marshal parents: %w", ev.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(store_key, id, universe_id, seq, timestamp, kind, observer_id, flow, parent_ids, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		key,
		ev.ID,
		ev.UniverseID,
		ev.Seq,
		formatTime(ev.Timestamp),
		string(ev.Kind),
		ev.ObserverID,
		ev.Flow,
		string(parents),
		value,
	)
	if err != nil {
		return fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return nil
}

// Save writes the complete state of h.
func (j *Journal) Save(ctx context.Context, h causal.Handle) error {
	data, err := h.ExportHistory()
	if err != nil {
		return err
	}
	snap, err := causal.DecodeSnapshot[any](data)
	if err != nil {
		return fmt.Errorf("save %s: %w", h.Key(), err)
	}
	return j.SaveSnapshot(ctx, snap)
}

// LoadSnapshot reads the saved state of the store with the given key.
// Returns ErrNotFound if nothing was saved under key.
func (j *Journal) LoadSnapshot(ctx context.Context, key string) (causal.Snapshot[any], error) {
	snap := causal.Snapshot[any]{StoreKey: key}

	var initial string
	err := j.db.QueryRowContext(ctx, `
		SELECT current_universe, initial, version FROM stores WHERE key = ?
	`, key).Scan(&snap.CurrentUniverse, &initial, &snap.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("load %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("load %s: %w", key, err)
	}
	if snap.Initial, err = unmarshalValue(initial); err != nil {
		return snap, fmt.Errorf("load %s: initial: %w", key, err)
	}

	if snap.Branches, err = j.readUniverses(ctx, key); err != nil {
		return snap, fmt.Errorf("load %s: %w", key, err)
	}
	if snap.Events, err = j.readEvents(ctx, key); err != nil {
		return snap, fmt.Errorf("load %s: %w", key, err)
	}
	return snap, nil
}

// Load restores the saved state of h's store into h.
func (j *Journal) Load(ctx context.Context, h causal.Handle) error {
	snap, err := j.LoadSnapshot(ctx, h.Key())
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("load %s: %w", h.Key(), err)
	}
	return h.ImportHistory(data)
}

func (j *Journal) readUniverses(ctx context.Context, key string) ([]causal.Branch, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, name, parent_universe, fork_event_id, created_at
		FROM universes
		WHERE store_key = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query universes: %w", err)
	}
	defer rows.Close()

	branches := []causal.Branch{}
	for rows.Next() {
		var (
			b       causal.Branch
			created string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.ParentUniverse, &b.ForkEventID, &created); err != nil {
			return nil, fmt.Errorf("scan universe: %w", err)
		}
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universes: %w", err)
	}
	return branches, nil
}

// readEvents returns the events of key ordered by seq, then id.
func (j *Journal) readEvents(ctx context.Context, key string) ([]causal.Event[any], error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, universe_id, seq, timestamp, kind, observer_id, flow, parent_ids, value
		FROM events
		WHERE store_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, key)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []causal.Event[any]{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ev.StoreKey = key
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (causal.Event[any], error) {
	var (
		ev                     causal.Event[any]
		kind, ts, parents, val string
	)
	if err := rows.Scan(&ev.ID, &ev.UniverseID, &ev.Seq, &ts, &kind, &ev.ObserverID, &ev.Flow, &parents, &val); err != nil {
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = causal.EventKind(kind)

	var err error
	if ev.Timestamp, err = parseTime(ts); err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.ParentIDs, err = unmarshalParents(parents); err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if ev.Value, err = unmarshalValue(val); err != nil {
		return ev, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	return ev, nil
}

// StoreKeys returns the keys of all saved stores, sorted.
func (j *Journal) StoreKeys(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT key FROM stores ORDER BY key COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return keys, nil
}
