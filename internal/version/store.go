// Package version implements delta-based entity versioning: the Version
// Store (create, read, archive, tag, branch, reconstruct) and the Query
// Engine (time travel, comparison, search, statistics).
//
// Every operation is scoped by the tenant and actor carried in the context
// (see core.WithScope). Persistence goes through core.VersionRepository.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/leapstack-labs/leapgov/internal/delta"
	"github.com/leapstack-labs/leapgov/internal/validate"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// Defaults for Config.
const (
	DefaultDeltaThreshold     = 0.70
	DefaultCheckpointInterval = 50
	DefaultCacheSize          = 1024
	DefaultHistoryLimit       = 50
	MaxHistoryLimit           = 1000
)

// Config holds Version Store configuration.
type Config struct {
	// Repo is the storage backend. Required.
	Repo core.VersionRepository
	// DeltaThreshold is the encoded(delta)/encoded(data) ratio below which a
	// version is stored as DELTA. Zero means DefaultDeltaThreshold.
	DeltaThreshold float64
	// CheckpointInterval is the longest run of DELTA versions before a
	// CHECKPOINT is written. Zero means DefaultCheckpointInterval.
	CheckpointInterval int
	// CacheSize is the number of reconstructed versions kept in memory.
	// Zero means DefaultCacheSize; negative disables caching.
	CacheSize int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store is the Version Store.
type Store struct {
	repo       core.VersionRepository
	logger     *slog.Logger
	threshold  float64
	checkpoint int
	cache      *lru.Cache[string, cached]
	locks      *keyedMutex
	now        func() time.Time
}

// cached is a reconstructed snapshot plus the number of deltas behind it.
type cached struct {
	data  map[string]any
	depth int
}

// NewStore creates a Version Store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("version store requires a repository")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	threshold := cfg.DeltaThreshold
	if threshold <= 0 {
		threshold = DefaultDeltaThreshold
	}
	checkpoint := cfg.CheckpointInterval
	if checkpoint <= 0 {
		checkpoint = DefaultCheckpointInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var cache *lru.Cache[string, cached]
	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		c, err := lru.New[string, cached](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create reconstruction cache: %w", err)
		}
		cache = c
	}

	return &Store{
		repo:       cfg.Repo,
		logger:     logger,
		threshold:  threshold,
		checkpoint: checkpoint,
		cache:      cache,
		locks:      newKeyedMutex(),
		now:        now,
	}, nil
}

// CreateVersionRequest is the input of CreateVersion.
type CreateVersionRequest struct {
	EntityType core.EntityType `validate:"required,max=100"`
	EntityID   string          `validate:"required,max=255"`
	Data       map[string]any
	// BranchID selects a branch; empty writes to the trunk.
	BranchID string `validate:"max=255"`
	Comment  string `validate:"max=2000"`
	Metadata map[string]any
	// UseDelta allows DELTA storage. Nil means true.
	UseDelta *bool
}

// Ref returns the entity the request targets.
func (r CreateVersionRequest) Ref() core.EntityRef {
	return core.EntityRef{Type: r.EntityType, ID: r.EntityID}
}

// CreateVersion stores data as the next version of the entity on the
// requested branch.
//
// Numbering is serialized per (tenant, entity, branch) and the whole write
// runs in one repository transaction. A uniqueness violation from another
// process surfaces as core.ErrConflict and is not retried.
func (s *Store) CreateVersion(ctx context.Context, req CreateVersionRequest) (*core.Version, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	data, err := delta.Normalize(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", core.ErrValidation, err)
	}

	scope := core.ScopeFromContext(ctx)
	key := core.VersionKey{TenantID: scope.TenantID, Ref: req.Ref(), BranchID: req.BranchID}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	var (
		created *core.Version
		depth   int
	)
	err = s.repo.InTx(ctx, func(repo core.VersionRepository) error {
		var branch *core.Branch
		if req.BranchID != "" {
			b, err := s.requireBranch(ctx, repo, scope.TenantID, req.BranchID)
			if err != nil {
				return err
			}
			if b.EntityType != req.EntityType || b.EntityID != req.EntityID {
				return fmt.Errorf("%w: branch %s belongs to %s", core.ErrValidation, b.ID, core.NewEntityRef(string(b.EntityType), b.EntityID))
			}
			branch = b
		}

		parent, err := repo.GetLatestVersion(ctx, key, core.VersionStatusActive)
		if err != nil {
			return err
		}
		if parent == nil && branch != nil && branch.BaseVersionID != nil {
			if parent, err = repo.GetVersion(ctx, scope.TenantID, *branch.BaseVersionID); err != nil {
				return err
			}
		}

		created, depth, err = s.insertNext(ctx, repo, key, data, parent, newVersionInput{
			comment:  req.Comment,
			metadata: req.Metadata,
			useDelta: req.UseDelta == nil || *req.UseDelta,
			actor:    scope.Actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.remember(created.ID, data, depth)
	s.logger.Debug("version created",
		"id", created.ID,
		"entity", key.Ref.Key(),
		"branch", key.BranchID,
		"number", created.VersionNumber,
		"type", created.VersionType,
		"size", created.Size,
	)
	return created, nil
}

type newVersionInput struct {
	comment  string
	metadata map[string]any
	useDelta bool
	actor    string
}

// insertNext writes data as the next version of key. parent, when not nil,
// is the delta base. It returns the version and its delta-chain depth.
func (s *Store) insertNext(ctx context.Context, repo core.VersionRepository, key core.VersionKey, data map[string]any, parent *core.Version, in newVersionInput) (*core.Version, int, error) {
	checksum, err := delta.Checksum(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: data: %v", core.ErrValidation, err)
	}
	size, err := delta.EncodedSize(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: data: %v", core.ErrValidation, err)
	}

	maxNum, err := repo.MaxVersionNumber(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	v := &core.Version{
		EntityType:    key.Ref.Type,
		EntityID:      key.Ref.ID,
		VersionNumber: maxNum + 1,
		VersionType:   core.VersionTypeFull,
		Status:        core.VersionStatusActive,
		BranchID:      key.BranchID,
		VersionData:   maps.Clone(data),
		Checksum:      checksum,
		Size:          size,
		Comment:       in.comment,
		Metadata:      in.metadata,
		TenantID:      key.TenantID,
		CreatedBy:     in.actor,
		CreatedAt:     s.now().UTC(),
	}
	depth := 0

	if in.useDelta && parent != nil {
		parentData, parentDepth, err := s.reconstruct(ctx, repo, parent)
		if err != nil {
			return nil, 0, err
		}
		d := delta.Calculate(parentData, data)
		deltaSize, err := delta.EncodedSize(d)
		if err != nil {
			return nil, 0, fmt.Errorf("encode delta: %w", err)
		}

		if float64(deltaSize) < s.threshold*float64(size) {
			if parentDepth >= s.checkpoint {
				v.VersionType = core.VersionTypeCheckpoint
			} else {
				parentID := parent.ID
				v.VersionType = core.VersionTypeDelta
				v.VersionData = nil
				v.DeltaData = &d
				v.ParentVersionID = &parentID
				depth = parentDepth + 1
			}
		}
	}

	if err := repo.InsertVersion(ctx, v); err != nil {
		return nil, 0, err
	}
	return v, depth, nil
}

// GetVersion returns the version with id, or nil.
func (s *Store) GetVersion(ctx context.Context, id string) (*core.Version, error) {
	return s.repo.GetVersion(ctx, core.TenantFromContext(ctx), id)
}

// GetVersionByNumber returns version n of ref on branchID, or nil.
func (s *Store) GetVersionByNumber(ctx context.Context, ref core.EntityRef, branchID string, n int) (*core.Version, error) {
	key := core.VersionKey{TenantID: core.TenantFromContext(ctx), Ref: ref, BranchID: branchID}
	return s.repo.GetVersionByNumber(ctx, key, n)
}

// GetLatestVersion returns the newest ACTIVE version of ref on branchID, or nil.
func (s *Store) GetLatestVersion(ctx context.Context, ref core.EntityRef, branchID string) (*core.Version, error) {
	key := core.VersionKey{TenantID: core.TenantFromContext(ctx), Ref: ref, BranchID: branchID}
	return s.repo.GetLatestVersion(ctx, key, core.VersionStatusActive)
}

// HistoryRequest is the input of GetVersionHistory.
type HistoryRequest struct {
	Ref             core.EntityRef `validate:"entityref"`
	BranchID        string
	IncludeArchived bool
	Limit           int `validate:"gte=0,lte=1000"`
	Offset          int `validate:"gte=0"`
}

// Page is one page of versions plus the total number of matches.
type Page struct {
	Versions []*core.Version
	Total    int
	Limit    int
	Offset   int
}

// ToMap converts the page to a plain map for transport.
func (p *Page) ToMap() map[string]any {
	items := make([]map[string]any, 0, len(p.Versions))
	for _, v := range p.Versions {
		items = append(items, v.ToMap())
	}
	return map[string]any{
		"versions": items,
		"total":    p.Total,
		"limit":    p.Limit,
		"offset":   p.Offset,
	}
}

// GetVersionHistory returns the versions of one entity branch newest first.
func (s *Store) GetVersionHistory(ctx context.Context, req HistoryRequest) (*Page, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	branch := req.BranchID
	filter := core.VersionFilter{
		TenantID:   core.TenantFromContext(ctx),
		EntityType: req.Ref.Type,
		EntityID:   req.Ref.ID,
		BranchID:   &branch,
		Limit:      pageLimit(req.Limit),
		Offset:     req.Offset,
	}
	if !req.IncludeArchived {
		filter.Statuses = []core.VersionStatus{core.VersionStatusActive}
	}

	versions, total, err := s.repo.ListVersions(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Versions: versions, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// ArchiveVersion moves an ACTIVE version to ARCHIVED. It returns false when
// the version does not exist or is not ACTIVE, so repeated calls are safe.
func (s *Store) ArchiveVersion(ctx context.Context, id string) (bool, error) {
	var archived bool
	err := s.repo.InTx(ctx, func(repo core.VersionRepository) error {
		var err error
		archived, err = repo.UpdateVersionStatus(ctx, core.TenantFromContext(ctx), id, core.VersionStatusActive, core.VersionStatusArchived)
		return err
	})
	if err != nil {
		return false, err
	}
	if archived {
		s.logger.Debug("version archived", "id", id)
	}
	return archived, nil
}
