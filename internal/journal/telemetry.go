package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/causal/internal/telemetry"
)

// WriteTelemetry appends one entry.
func (j *Journal) WriteTelemetry(ctx context.Context, e telemetry.Entry) error {
	details := "{}"
	if len(e.Details) > 0 {
		var err error
		if details, err = marshalCanonical(e.Details); err != nil {
			return fmt.Errorf("write telemetry: marshal details: %w", err)
		}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO telemetry
		(timestamp, type, law_name, store_key, universe_id, observer_id, event_id, severity, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		formatTime(e.Timestamp),
		string(e.Type),
		e.LawName,
		e.StoreKey,
		e.UniverseID,
		e.ObserverID,
		e.EventID,
		string(e.Severity),
		e.Message,
		details,
	)
	if err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Record implements telemetry.Sink. Failures are logged, not returned.
func (j *Journal) Record(e telemetry.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.WriteTelemetry(ctx, e); err != nil {
		j.logger.Warn("journal telemetry write failed",
			"type", string(e.Type),
			"law", e.LawName,
			"store", e.StoreKey,
			"error", err,
		)
	}
}

// ReadTelemetry returns the entries matching f in insertion order.
func (j *Journal) ReadTelemetry(ctx context.Context, f telemetry.Filter) ([]telemetry.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.LawName != "" {
		where = append(where, "law_name = ?")
		args = append(args, f.LawName)
	}
	if f.StoreKey != "" {
		where = append(where, "store_key = ?")
		args = append(args, f.StoreKey)
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}

	query := `
		SELECT timestamp, type, law_name, store_key, universe_id, observer_id, event_id, severity, message, details
		FROM telemetry`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY id ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	entries := []telemetry.Entry{}
	for rows.Next() {
		var (
			e                         telemetry.Entry
			ts, typ, severity, detail string
		)
		if err := rows.Scan(&ts, &typ, &e.LawName, &e.StoreKey, &e.UniverseID, &e.ObserverID, &e.EventID, &severity, &e.Message, &detail); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		e.Type = telemetry.Type(typ)
		e.Severity = telemetry.Severity(severity)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if detail != "{}" {
			v, err := unmarshalValue(detail)
			if err != nil {
				return nil, fmt.Errorf("telemetry details: %w", err)
			}
			e.Details, _ = v.(map[string]any)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry: %w", err)
	}
	return entries, nil
}

var _ telemetry.Sink = (*Journal)(nil)
