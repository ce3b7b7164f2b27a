package events

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nostrsync/relay/nip77"
	"github.com/nostrsync/relay/sql"
	"github.com/nostrsync/relay/sync2/negentropy"
)

// Event is a stored Nostr event.
type Event struct {
	ID        negentropy.ID
	PubKey    [32]byte
	Kind      int
	CreatedAt uint64
	// Raw is the JSON representation of the event.
	Raw []byte
}

// Item returns the reconciliation item for the event.
func (e *Event) Item() negentropy.Item {
	return negentropy.Item{Timestamp: e.CreatedAt, ID: e.ID}
}

// ParseEvent extracts the indexed fields from the JSON representation of an event.
// The signature is not verified.
func ParseEvent(raw []byte) (*Event, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("parse event: invalid JSON")
	}
	fields := gjson.GetManyBytes(raw, "id", "pubkey", "kind", "created_at")
	id, pubkey, kind, createdAt := fields[0], fields[1], fields[2], fields[3]
	e := &Event{Raw: raw}
	var err error
	if e.ID, err = negentropy.ParseID(id.Str); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	pk, err := negentropy.ParseID(pubkey.Str)
	if err != nil {
		return nil, fmt.Errorf("parse event %s pubkey: %w", e.ID.ShortString(), err)
	}
	e.PubKey = pk
	if kind.Type != gjson.Number || kind.Int() < 0 {
		return nil, fmt.Errorf("parse event %s: bad kind %q", e.ID.ShortString(), kind.Raw)
	}
	e.Kind = int(kind.Int())
	if createdAt.Type != gjson.Number || createdAt.Int() < 0 {
		return nil, fmt.Errorf("parse event %s: bad created_at %q", e.ID.ShortString(), createdAt.Raw)
	}
	e.CreatedAt = createdAt.Uint()
	return e, nil
}

// Add adds an event to the database.
func Add(db sql.Executor, e *Event) error {
	_, err := db.Exec(`insert into events
		(id, pubkey, kind, created_at, raw)
		values (?1, ?2, ?3, ?4, ?5);`,
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, e.ID[:])
			stmt.BindBytes(2, e.PubKey[:])
			stmt.BindInt64(3, int64(e.Kind))
			stmt.BindInt64(4, int64(e.CreatedAt))
			stmt.BindBytes(5, e.Raw)
		}, nil)
	if err != nil {
		return fmt.Errorf("add event %s: %w", e.ID, err)
	}
	return nil
}

// Has returns true if the event is present in the database.
func Has(db sql.Executor, id negentropy.ID) (bool, error) {
	rows, err := db.Exec("select 1 from events where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindBytes(1, id[:])
		}, nil)
	if err != nil {
		return false, fmt.Errorf("has event %s: %w", id, err)
	}
	return rows > 0, nil
}

// GetRaw returns the JSON representation of the event.
func GetRaw(db sql.Executor, id negentropy.ID) ([]byte, error) {
	var blob sql.Blob
	if err := sql.LoadBlob(db, "select raw from events where id = ?1;", id[:], &blob); err != nil {
		return nil, err
	}
	return blob.Bytes, nil
}

// Count returns the number of events in the database.
func Count(db sql.Executor) (int, error) {
	var n int
	if _, err := db.Exec("select count(*) from events;", nil,
		func(stmt *sql.Statement) bool {
			n = stmt.ColumnInt(0)
			return true
		}); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type query struct {
	conds []string
	args  []any
}

func (q *query) param(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("?%d", len(q.args))
}

func (q *query) in(column string, values []any) {
	params := make([]string, len(values))
	for i, v := range values {
		params[i] = q.param(v)
	}
	q.conds = append(q.conds, fmt.Sprintf("%s in (%s)", column, strings.Join(params, ", ")))
}

func (q *query) bind(stmt *sql.Statement) {
	for i, arg := range q.args {
		switch v := arg.(type) {
		case []byte:
			stmt.BindBytes(i+1, v)
		case int64:
			stmt.BindInt64(i+1, v)
		default:
			panic(fmt.Sprintf("BUG: unexpected query argument type %T", arg))
		}
	}
}

func hexArgs(values []string) ([]any, error) {
	args := make([]any, len(values))
	for i, s := range values {
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bad hex value %q: %w", s, err)
		}
		args[i] = b
	}
	return args, nil
}

// Snapshot returns the reconciliation items for the events matching the filter.
// If the filter has a limit, the most recent events are returned. If maxItems is
// positive, loading stops after maxItems events.
func Snapshot(db sql.Executor, filter nip77.Filter, maxItems int) ([]negentropy.Item, error) {
	var q query
	if len(filter.IDs) != 0 {
		args, err := hexArgs(filter.IDs)
		if err != nil {
			return nil, fmt.Errorf("snapshot: ids: %w", err)
		}
		q.in("id", args)
	}
	if len(filter.Authors) != 0 {
		args, err := hexArgs(filter.Authors)
		if err != nil {
			return nil, fmt.Errorf("snapshot: authors: %w", err)
		}
		q.in("pubkey", args)
	}
	if len(filter.Kinds) != 0 {
		args := make([]any, len(filter.Kinds))
		for i, k := range filter.Kinds {
			args[i] = int64(k)
		}
		q.in("kind", args)
	}
	if filter.Since != nil {
		q.conds = append(q.conds, "created_at >= "+q.param(*filter.Since))
	}
	if filter.Until != nil {
		q.conds = append(q.conds, "created_at <= "+q.param(*filter.Until))
	}
	var sb strings.Builder
	sb.WriteString("select id, created_at from events")
	if len(q.conds) != 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(q.conds, " and "))
	}
	if filter.Limit > 0 {
		sb.WriteString(" order by created_at desc, id limit ")
		sb.WriteString(q.param(int64(filter.Limit)))
	}
	sb.WriteString(";")

	var items []negentropy.Item
	if _, err := db.Exec(sb.String(), q.bind, func(stmt *sql.Statement) bool {
		var it negentropy.Item
		stmt.ColumnBytes(0, it.ID[:])
		it.Timestamp = uint64(stmt.ColumnInt64(1))
		items = append(items, it)
		return maxItems <= 0 || len(items) < maxItems
	}); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return items, nil
}

// Source provides the event snapshots for reconciliation.
type Source struct {
	db sql.Executor
}

// NewSource creates a new Source backed by the database.
func NewSource(db sql.Executor) *Source {
	return &Source{db: db}
}

// Snapshot implements negsync.SnapshotSource.
func (s *Source) Snapshot(ctx context.Context, filter nip77.Filter, maxItems int) ([]negentropy.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Snapshot(s.db, filter, maxItems)
}
