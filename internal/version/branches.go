package version

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapgov/internal/validate"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// CreateTagRequest is the input of CreateTag.
type CreateTagRequest struct {
	VersionID   string `validate:"required"`
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=1000"`
}

// CreateTag attaches a named tag to an existing version. A missing version
// is core.ErrNotFound; a duplicate name on the version is core.ErrConflict.
func (s *Store) CreateTag(ctx context.Context, req CreateTagRequest) (*core.Tag, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	scope := core.ScopeFromContext(ctx)

	tag := &core.Tag{
		VersionID:   req.VersionID,
		TagName:     req.Name,
		Description: req.Description,
		TenantID:    scope.TenantID,
		CreatedBy:   scope.Actor,
		CreatedAt:   s.now().UTC(),
	}

	err := s.repo.InTx(ctx, func(repo core.VersionRepository) error {
		v, err := repo.GetVersion(ctx, scope.TenantID, req.VersionID)
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("%w: version %s", core.ErrNotFound, req.VersionID)
		}
		if tag.TenantID == "" {
			tag.TenantID = v.TenantID
		}
		return repo.InsertTag(ctx, tag)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("tag created", "version", tag.VersionID, "tag", tag.TagName)
	return tag, nil
}

// ListTags returns the tags attached to a version.
func (s *Store) ListTags(ctx context.Context, versionID string) ([]*core.Tag, error) {
	return s.repo.ListTags(ctx, core.TenantFromContext(ctx), versionID)
}

// GetVersionByTag returns the newest version of ref carrying tag name, or nil.
func (s *Store) GetVersionByTag(ctx context.Context, ref core.EntityRef, name string) (*core.Version, error) {
	return s.repo.GetVersionByTag(ctx, core.TenantFromContext(ctx), ref, name)
}

// CreateBranchRequest is the input of CreateBranch.
type CreateBranchRequest struct {
	Ref         core.EntityRef `validate:"entityref"`
	Name        string         `validate:"required,max=100"`
	Description string         `validate:"max=1000"`
	// BaseVersionID defaults to the latest ACTIVE trunk version.
	BaseVersionID *string
	IsDefault     bool
}

// CreateBranch creates a named branch of an entity. An explicit base version
// must exist (core.ErrNotFound) and belong to the entity. Marking the branch
// default clears the flag on its siblings in the same transaction.
func (s *Store) CreateBranch(ctx context.Context, req CreateBranchRequest) (*core.Branch, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	scope := core.ScopeFromContext(ctx)

	branch := &core.Branch{
		EntityType:  req.Ref.Type,
		EntityID:    req.Ref.ID,
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
		TenantID:    scope.TenantID,
		CreatedBy:   scope.Actor,
		CreatedAt:   s.now().UTC(),
	}

	err := s.repo.InTx(ctx, func(repo core.VersionRepository) error {
		if req.BaseVersionID != nil {
			base, err := repo.GetVersion(ctx, scope.TenantID, *req.BaseVersionID)
			if err != nil {
				return err
			}
			if base == nil || base.TenantID != scope.TenantID {
				return fmt.Errorf("%w: base version %s", core.ErrNotFound, *req.BaseVersionID)
			}
			if base.Ref() != req.Ref {
				return fmt.Errorf("%w: base version %s belongs to %s", core.ErrValidation, base.ID, base.Ref())
			}
			id := base.ID
			branch.BaseVersionID = &id
		} else {
			trunk := core.VersionKey{TenantID: scope.TenantID, Ref: req.Ref}
			latest, err := repo.GetLatestVersion(ctx, trunk, core.VersionStatusActive)
			if err != nil {
				return err
			}
			if latest != nil {
				id := latest.ID
				branch.BaseVersionID = &id
			}
		}

		if req.IsDefault {
			if err := repo.ClearDefaultBranch(ctx, scope.TenantID, req.Ref); err != nil {
				return err
			}
		}
		return repo.InsertBranch(ctx, branch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("branch created", "entity", req.Ref.Key(), "branch", branch.Name, "id", branch.ID)
	return branch, nil
}

// GetBranches returns the branches of an entity.
func (s *Store) GetBranches(ctx context.Context, ref core.EntityRef) ([]*core.Branch, error) {
	return s.repo.ListBranches(ctx, core.TenantFromContext(ctx), ref)
}

// MergeBranch writes the head of a branch as the next trunk version and
// marks the branch merged. Merging twice is core.ErrConflict; a branch
// without versions is core.ErrValidation.
func (s *Store) MergeBranch(ctx context.Context, branchID, comment string) (*core.Version, error) {
	scope := core.ScopeFromContext(ctx)

	branch, err := s.requireBranch(ctx, s.repo, scope.TenantID, branchID)
	if err != nil {
		return nil, err
	}
	ref := core.NewEntityRef(string(branch.EntityType), branch.EntityID)
	trunk := core.VersionKey{TenantID: scope.TenantID, Ref: ref}

	unlock := s.locks.Lock(trunk.String())
	defer unlock()

	var (
		merged *core.Version
		data   map[string]any
		depth  int
	)
	err = s.repo.InTx(ctx, func(repo core.VersionRepository) error {
		// Re-read inside the transaction; the branch may have changed.
		b, err := s.requireBranch(ctx, repo, scope.TenantID, branchID)
		if err != nil {
			return err
		}
		if b.IsMerged {
			return fmt.Errorf("%w: branch %s is already merged", core.ErrConflict, b.Name)
		}

		head, err := repo.GetLatestVersion(ctx, core.VersionKey{TenantID: scope.TenantID, Ref: ref, BranchID: b.ID}, core.VersionStatusActive)
		if err != nil {
			return err
		}
		if head == nil {
			return fmt.Errorf("%w: branch %s has no versions", core.ErrValidation, b.Name)
		}
		if data, _, err = s.reconstruct(ctx, repo, head); err != nil {
			return err
		}

		parent, err := repo.GetLatestVersion(ctx, trunk, core.VersionStatusActive)
		if err != nil {
			return err
		}

		if comment == "" {
			comment = fmt.Sprintf("merge branch %s", b.Name)
		}
		merged, depth, err = s.insertNext(ctx, repo, trunk, data, parent, newVersionInput{
			comment:  comment,
			metadata: map[string]any{"merged_branch_id": b.ID, "merged_head_version_id": head.ID},
			useDelta: true,
			actor:    scope.Actor,
		})
		if err != nil {
			return err
		}

		ok, err := repo.MarkBranchMerged(ctx, scope.TenantID, b.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: branch %s is already merged", core.ErrConflict, b.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.remember(merged.ID, data, depth)
	s.logger.Debug("branch merged", "branch", branchID, "version", merged.ID, "number", merged.VersionNumber)
	return merged, nil
}

func (s *Store) requireBranch(ctx context.Context, repo core.VersionRepository, tenantID, id string) (*core.Branch, error) {
	b, err := repo.GetBranch(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	// Branch writes land in the caller's sequence, so a branch owned by
	// another tenant is invisible even to unscoped callers.
	if b == nil || b.TenantID != tenantID {
		return nil, fmt.Errorf("%w: branch %s", core.ErrNotFound, id)
	}
	return b, nil
}
