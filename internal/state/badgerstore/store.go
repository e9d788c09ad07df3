// Package badgerstore is an embedded lineage backend on BadgerDB.
//
// Records are stored as JSON under lin:rec:<id>. Two index keyspaces,
// lin:src: and lin:tgt:, map an endpoint to the ids of its records so
// one-hop lookups are prefix scans. Record ids are UUIDv7, so key order
// within a prefix is insertion order.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/leapstack-labs/leapgov/pkg/core"
)

const (
	recordPrefix = "lin:rec:"
	sourcePrefix = "lin:src:"
	targetPrefix = "lin:tgt:"
	sep          = "\x00"
)

// Config holds configuration for a Badger lineage store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Store implements core.LineageRepository on BadgerDB.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ core.LineageRepository = (*Store)(nil)

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (creating if needed) a Badger lineage store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent lineage store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create lineage directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// record is the stored encoding of a lineage record.
type record struct {
	ID                 string         `json:"id"`
	Source             core.EntityRef `json:"source"`
	SourceVersionID    *string        `json:"source_version_id,omitempty"`
	Target             core.EntityRef `json:"target"`
	TargetVersionID    *string        `json:"target_version_id,omitempty"`
	RelationshipType   string         `json:"relationship_type"`
	SourceColumns      []string       `json:"source_columns,omitempty"`
	TargetColumns      []string       `json:"target_columns,omitempty"`
	TransformationInfo map[string]any `json:"transformation_info,omitempty"`
	TenantID           string         `json:"tenant_id"`
	CreatedBy          string         `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
}

func fromCore(r *core.LineageRecord) record {
	return record{
		ID:                 r.ID,
		Source:             r.Source,
		SourceVersionID:    r.SourceVersionID,
		Target:             r.Target,
		TargetVersionID:    r.TargetVersionID,
		RelationshipType:   string(r.RelationshipType),
		SourceColumns:      r.SourceColumns,
		TargetColumns:      r.TargetColumns,
		TransformationInfo: r.TransformationInfo,
		TenantID:           r.TenantID,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt,
	}
}

func (r record) toCore() *core.LineageRecord {
	return &core.LineageRecord{
		ID:                 r.ID,
		Source:             r.Source,
		SourceVersionID:    r.SourceVersionID,
		Target:             r.Target,
		TargetVersionID:    r.TargetVersionID,
		RelationshipType:   core.RelationshipFromStorage(r.RelationshipType),
		SourceColumns:      r.SourceColumns,
		TargetColumns:      r.TargetColumns,
		TransformationInfo: r.TransformationInfo,
		TenantID:           r.TenantID,
		CreatedBy:          r.CreatedBy,
		CreatedAt:          r.CreatedAt.UTC(),
	}
}

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

func endpointPrefix(prefix string, ref core.EntityRef) string {
	return prefix + string(ref.Type) + sep + ref.ID + sep
}

// InsertLineage appends a record and its two index entries atomically.
func (s *Store) InsertLineage(ctx context.Context, r *core.LineageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return core.StorageError("generate lineage id", err)
		}
		r.ID = id.String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(fromCore(r))
	if err != nil {
		return fmt.Errorf("encode lineage %s: %w", r.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(r.ID)); err == nil {
			return fmt.Errorf("%w: lineage record %s already exists", core.ErrConflict, r.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(recordKey(r.ID), raw); err != nil {
			return err
		}
		if err := txn.Set([]byte(endpointPrefix(sourcePrefix, r.Source)+r.ID), nil); err != nil {
			return err
		}
		return txn.Set([]byte(endpointPrefix(targetPrefix, r.Target)+r.ID), nil)
	})
	if errors.Is(err, core.ErrConflict) {
		return err
	}
	if err != nil {
		return core.StorageError("insert lineage", err)
	}
	return nil
}

// ListLineage returns matching records oldest first.
func (s *Store) ListLineage(ctx context.Context, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	var out []*core.LineageRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = list(ctx, txn, filter)
		return err
	})
	if err != nil {
		return nil, wrapRead(err)
	}
	return out, nil
}

// Snapshot runs fn against one Badger read transaction.
func (s *Store) Snapshot(ctx context.Context, fn func(r core.LineageReader) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(snapshotReader{txn: txn})
	})
}

type snapshotReader struct {
	txn *badger.Txn
}

func (r snapshotReader) ListLineage(ctx context.Context, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	out, err := list(ctx, r.txn, filter)
	if err != nil {
		return nil, wrapRead(err)
	}
	return out, nil
}

func wrapRead(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.StorageError("list lineage", err)
}

// list picks the narrowest keyspace for the filter, then post-filters.
func list(ctx context.Context, txn *badger.Txn, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	var (
		ids []string
		err error
	)
	switch {
	case filter.Source != nil:
		ids, err = indexIDs(ctx, txn, endpointPrefix(sourcePrefix, *filter.Source))
	case filter.Target != nil:
		ids, err = indexIDs(ctx, txn, endpointPrefix(targetPrefix, *filter.Target))
	default:
		return scanAll(ctx, txn, filter)
	}
	if err != nil {
		return nil, err
	}

	var out []*core.LineageRecord
	for _, id := range ids {
		r, err := load(txn, id)
		if err != nil {
			return nil, err
		}
		if r != nil && filter.Matches(r) {
			out = append(out, r)
		}
	}
	return finish(out, filter), nil
}

func indexIDs(ctx context.Context, txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids, nil
}

func scanAll(ctx context.Context, txn *badger.Txn, filter core.LineageFilter) ([]*core.LineageRecord, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(recordPrefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*core.LineageRecord
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec record
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		if r := rec.toCore(); filter.Matches(r) {
			out = append(out, r)
		}
	}
	return finish(out, filter), nil
}

func load(txn *badger.Txn, id string) (*core.LineageRecord, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode lineage %s: %w", id, err)
	}
	return rec.toCore(), nil
}

// finish orders records oldest first and applies the limit.
func finish(out []*core.LineageRecord, filter core.LineageFilter) []*core.LineageRecord {
	slices.SortStableFunc(out, func(a, b *core.LineageRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit := filter.Limit; limit > 0 && len(out) > limit {
		if filter.Newest {
			out = out[len(out)-limit:]
		} else {
			out = out[:limit]
		}
	}
	return out
}
