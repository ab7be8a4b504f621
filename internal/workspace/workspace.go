// Package workspace implements the local editing operations on trifles and
// the profile. Every change is copy-on-write: new content is stored as a blob
// and the entity's pointer is advanced in the same transaction.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"trifle/internal/content"
	"trifle/internal/namegen"
	"trifle/internal/store"
)

const DefaultOwner = "local"

var (
	ErrNotFound     = errors.New("not found")
	ErrFileNotFound = errors.New("file not found")
)

// Trifle is a loaded trifle: its pointer and the project it points at.
type Trifle struct {
	Pointer store.Pointer   `json:"pointer" yaml:"pointer"`
	Project content.Project `json:"project" yaml:"project"`
}

// ID returns the trifle's stable id.
func (t Trifle) ID() string { return t.Pointer.ID }

// Workspace scopes local operations to one owner.
type Workspace struct {
	store  *store.Store
	owner  string
	logger *slog.Logger
}

// New returns a workspace for owner. An empty owner means DefaultOwner.
func New(st *store.Store, owner string, logger *slog.Logger) *Workspace {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = DefaultOwner
	}
	return &Workspace{store: st, owner: owner, logger: logger}
}

func (w *Workspace) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

// Owner returns the owner id pointers are recorded under.
func (w *Workspace) Owner() string { return w.owner }

// Store exposes the underlying store.
func (w *Workspace) Store() *store.Store { return w.store }

// ProfileID is the pointer id of the owner's profile.
func (w *Workspace) ProfileID() string { return "profile_" + w.owner }

// CreateTrifle stores an empty project and its pointer at clock 1.
func (w *Workspace) CreateTrifle(ctx context.Context, name, description, parentID string) (*Trifle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("trifle name is required")
	}
	if parentID != "" {
		if err := store.ValidateTrifleID(parentID); err != nil {
			return nil, err
		}
	}

	id, err := store.GenerateID(store.TrifleIDPrefix, 8, func(candidate string) (bool, error) {
		p, err := w.store.GetPointer(ctx, candidate)
		return p != nil, err
	})
	if err != nil {
		return nil, err
	}

	project := content.Project{Name: name, Description: description, ParentID: parentID}
	data, err := content.Encode(project)
	if err != nil {
		return nil, err
	}
	p, err := w.store.CreatePointer(ctx, id, w.owner, store.KindTrifle, data)
	if err != nil {
		return nil, err
	}
	project.Files = []content.FileRef{}
	w.log().Debug("trifle created", "id", id, "name", name)
	return &Trifle{Pointer: *p, Project: project}, nil
}

// Load returns the trifle with id.
func (w *Workspace) Load(ctx context.Context, id string) (*Trifle, error) {
	p, err := w.store.GetPointer(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Kind != store.KindTrifle || p.OwnerID != w.owner {
		return nil, fmt.Errorf("%w: trifle %s", ErrNotFound, id)
	}
	return w.materialize(ctx, *p)
}

func (w *Workspace) materialize(ctx context.Context, p store.Pointer) (*Trifle, error) {
	data, ok, err := w.store.GetBlob(ctx, p.CurrentHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("trifle %s: content %s missing", p.ID, p.CurrentHash)
	}
	project, err := content.DecodeProject(data)
	if err != nil {
		return nil, fmt.Errorf("trifle %s: %w", p.ID, err)
	}
	return &Trifle{Pointer: p, Project: project}, nil
}

// List returns every trifle of the owner ordered by id.
func (w *Workspace) List(ctx context.Context) ([]Trifle, error) {
	pointers, err := w.store.ListPointers(ctx, w.owner, store.KindTrifle)
	if err != nil {
		return nil, err
	}
	out := make([]Trifle, 0, len(pointers))
	for _, p := range pointers {
		t, err := w.materialize(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// WriteFile stores data at path inside the trifle, adding or replacing it.
func (w *Workspace) WriteFile(ctx context.Context, id, path string, data []byte) (*Trifle, error) {
	clean, err := content.CleanPath(path)
	if err != nil {
		return nil, err
	}
	hash, err := w.store.PutBlob(ctx, data)
	if err != nil {
		return nil, err
	}
	return w.mutate(ctx, id, func(p *content.Project) error {
		for i, f := range p.Files {
			if f.Path == clean {
				p.Files[i].Hash = hash
				return nil
			}
		}
		p.Files = append(p.Files, content.FileRef{Path: clean, Hash: hash})
		return nil
	})
}

// ReadFile returns the bytes stored at path.
func (w *Workspace) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	t, err := w.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	clean, err := content.CleanPath(path)
	if err != nil {
		return nil, err
	}
	ref, ok := t.Project.File(clean)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrFileNotFound, clean, id)
	}
	data, ok, err := w.store.GetBlob(ctx, ref.Hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Absent content reads as empty.
		return []byte{}, nil
	}
	return data, nil
}

// RemoveFile drops path from the trifle. The file's blob stays stored.
func (w *Workspace) RemoveFile(ctx context.Context, id, path string) (*Trifle, error) {
	clean, err := content.CleanPath(path)
	if err != nil {
		return nil, err
	}
	return w.mutate(ctx, id, func(p *content.Project) error {
		for i, f := range p.Files {
			if f.Path == clean {
				p.Files = append(p.Files[:i], p.Files[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s in %s", ErrFileNotFound, clean, id)
	})
}

// Rename sets the trifle's name.
func (w *Workspace) Rename(ctx context.Context, id, name string) (*Trifle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("trifle name is required")
	}
	return w.mutate(ctx, id, func(p *content.Project) error {
		p.Name = name
		return nil
	})
}

// Describe sets the trifle's description.
func (w *Workspace) Describe(ctx context.Context, id, description string) (*Trifle, error) {
	return w.mutate(ctx, id, func(p *content.Project) error {
		p.Description = description
		return nil
	})
}

// Delete removes the trifle's pointer. Its blobs are kept.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	if _, err := w.Load(ctx, id); err != nil {
		return err
	}
	return w.store.DeletePointer(ctx, id)
}

// mutate applies fn to a copy of the trifle's project and advances the
// pointer when the encoded content changed. An unchanged result leaves the
// clock where it was.
func (w *Workspace) mutate(ctx context.Context, id string, fn func(*content.Project) error) (*Trifle, error) {
	t, err := w.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := t.Project
	next.Files = append([]content.FileRef{}, t.Project.Files...)
	if err := fn(&next); err != nil {
		return nil, err
	}
	data, err := content.Encode(next)
	if err != nil {
		return nil, err
	}
	if content.Hash(data) == t.Pointer.CurrentHash {
		return t, nil
	}
	p, err := w.store.UpdatePointer(ctx, id, data)
	if err != nil {
		return nil, err
	}
	if err := next.Normalize(); err != nil {
		return nil, err
	}
	w.log().Debug("trifle updated", "id", id, "clock", p.LogicalClock, "hash", p.CurrentHash)
	return &Trifle{Pointer: *p, Project: next}, nil
}

// Profile returns the owner's profile, creating one with a generated display
// name the first time.
func (w *Workspace) Profile(ctx context.Context) (content.Profile, *store.Pointer, error) {
	p, err := w.store.GetPointer(ctx, w.ProfileID())
	if err != nil {
		return content.Profile{}, nil, err
	}
	if p == nil {
		name, err := namegen.Generate()
		if err != nil {
			return content.Profile{}, nil, err
		}
		profile := content.Profile{DisplayName: name}
		data, err := content.Encode(profile)
		if err != nil {
			return content.Profile{}, nil, err
		}
		created, err := w.store.CreatePointer(ctx, w.ProfileID(), w.owner, store.KindProfile, data)
		if err != nil {
			return content.Profile{}, nil, err
		}
		w.log().Info("profile created", "display_name", name)
		return profile, created, nil
	}
	data, ok, err := w.store.GetBlob(ctx, p.CurrentHash)
	if err != nil {
		return content.Profile{}, nil, err
	}
	if !ok {
		return content.Profile{}, nil, fmt.Errorf("profile content %s missing", p.CurrentHash)
	}
	profile, err := content.DecodeProfile(data)
	if err != nil {
		return content.Profile{}, nil, err
	}
	return profile, p, nil
}

// SetDisplayName updates the profile's display name.
func (w *Workspace) SetDisplayName(ctx context.Context, name string) (content.Profile, *store.Pointer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return content.Profile{}, nil, fmt.Errorf("display name is required")
	}
	current, p, err := w.Profile(ctx)
	if err != nil {
		return content.Profile{}, nil, err
	}
	if current.DisplayName == name {
		return current, p, nil
	}
	next := content.Profile{DisplayName: name}
	data, err := content.Encode(next)
	if err != nil {
		return content.Profile{}, nil, err
	}
	updated, err := w.store.UpdatePointer(ctx, p.ID, data)
	if err != nil {
		return content.Profile{}, nil, err
	}
	return next, updated, nil
}
