// Package content defines the immutable values exchanged by the local store
// and the remote namespace, and the canonical encoding they are hashed in.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

var ErrInvalidProject = errors.New("invalid project")

// Hash returns the lowercase hex SHA-256 of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// FileRef points a project path at a file content blob.
type FileRef struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Project is the materialized form of a trifle. Files are referenced by hash,
// never inlined.
type Project struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    string    `json:"parent_id,omitempty"`
	Files       []FileRef `json:"files"`
}

// Profile is the materialized form of an identity's profile.
type Profile struct {
	DisplayName string `json:"display_name"`
}

// VersionRecord is the denormalized snapshot of a trifle stored remotely.
type VersionRecord struct {
	EntityID     string    `json:"entity_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ParentID     string    `json:"parent_id,omitempty"`
	LogicalClock int64     `json:"logical_clock"`
	LastModified time.Time `json:"last_modified"`
	Files        []FileRef `json:"files"`
}

// ProfileRecord is a profile as stored remotely, tagged with its clock.
type ProfileRecord struct {
	DisplayName  string    `json:"display_name"`
	LogicalClock int64     `json:"logical_clock"`
	LastModified time.Time `json:"last_modified"`
}

// Project returns the content the record was snapshotted from.
func (v VersionRecord) Project() Project {
	return Project{
		Name:        v.Name,
		Description: v.Description,
		ParentID:    v.ParentID,
		Files:       append([]FileRef{}, v.Files...),
	}
}

// Profile returns the content the record carries.
func (p ProfileRecord) Profile() Profile {
	return Profile{DisplayName: p.DisplayName}
}

// Normalize validates file paths and sorts files so equal projects encode equally.
func (p *Project) Normalize() error {
	if p.Files == nil {
		p.Files = []FileRef{}
	}
	seen := make(map[string]struct{}, len(p.Files))
	for i, f := range p.Files {
		clean, err := CleanPath(f.Path)
		if err != nil {
			return err
		}
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("%w: duplicate path %q", ErrInvalidProject, clean)
		}
		if f.Hash == "" {
			return fmt.Errorf("%w: file %q has no hash", ErrInvalidProject, clean)
		}
		seen[clean] = struct{}{}
		p.Files[i].Path = clean
	}
	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
	return nil
}

// File returns the ref stored at path.
func (p Project) File(name string) (FileRef, bool) {
	for _, f := range p.Files {
		if f.Path == name {
			return f, true
		}
	}
	return FileRef{}, false
}

// CleanPath validates a project-relative file path.
func CleanPath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty file path", ErrInvalidProject)
	}
	if strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("%w: absolute file path %q", ErrInvalidProject, raw)
	}
	clean := path.Clean(raw)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: file path %q escapes the project", ErrInvalidProject, raw)
	}
	return clean, nil
}

// Encode renders v in its canonical JSON form. Struct fields encode in
// declaration order and maps with sorted keys, which keeps the output stable.
func Encode(v any) ([]byte, error) {
	if p, ok := v.(Project); ok {
		p.Files = append([]FileRef(nil), p.Files...)
		if err := p.Normalize(); err != nil {
			return nil, err
		}
		v = p
	}
	return json.Marshal(v)
}

// DecodeProject parses a project content blob.
func DecodeProject(data []byte) (Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return Project{}, fmt.Errorf("decode project: %w", err)
	}
	if p.Files == nil {
		p.Files = []FileRef{}
	}
	return p, nil
}

// DecodeProfile parses a profile content blob.
func DecodeProfile(data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// DecodeVersionRecord parses a remote version record.
func DecodeVersionRecord(data []byte) (VersionRecord, error) {
	var v VersionRecord
	if err := json.Unmarshal(data, &v); err != nil {
		return VersionRecord{}, fmt.Errorf("decode version record: %w", err)
	}
	return v, nil
}

// DecodeProfileRecord parses a remote profile record.
func DecodeProfileRecord(data []byte) (ProfileRecord, error) {
	var p ProfileRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return ProfileRecord{}, fmt.Errorf("decode profile record: %w", err)
	}
	return p, nil
}
