package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"trifle/internal/content"
	"trifle/internal/keys"
	"trifle/internal/kv"
	"trifle/internal/store"
)

// remoteVersion is the newest version record a trifle's markers point at.
type remoteVersion struct {
	id     string
	record content.VersionRecord
}

// syncTrifles reconciles every local trifle with its remote markers, then
// downloads trifles that only exist remotely.
func (r *run) syncTrifles(ctx context.Context) error {
	ws := r.engine.ws
	local, err := r.store().ListPointers(ctx, ws.Owner(), store.KindTrifle)
	if err != nil {
		return err
	}
	markers, err := r.latestMarkers(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(local))
	for _, p := range local {
		seen[p.ID] = struct{}{}
		remote, err := r.newestVersion(ctx, p.ID, markers[p.ID])
		if err != nil {
			return fmt.Errorf("%s: %w", p.ID, err)
		}
		if err := r.reconcile(ctx, p, remote); err != nil {
			return fmt.Errorf("%s: %w", p.ID, err)
		}
	}

	remoteOnly := make([]string, 0)
	for id := range markers {
		if _, ok := seen[id]; !ok {
			remoteOnly = append(remoteOnly, id)
		}
	}
	sort.Strings(remoteOnly)
	for _, id := range remoteOnly {
		if err := store.ValidateTrifleID(id); err != nil {
			r.log().Warn("skipping remote trifle", "id", id, "error", err)
			continue
		}
		remote, err := r.newestVersion(ctx, id, markers[id])
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		if remote == nil {
			continue
		}
		if err := r.download(ctx, id, remote); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	}
	return nil
}

func (r *run) reconcile(ctx context.Context, p store.Pointer, remote *remoteVersion) error {
	if remote == nil || p.LogicalClock > remote.record.LogicalClock {
		return r.upload(ctx, p)
	}
	if p.LogicalClock < remote.record.LogicalClock {
		return r.download(ctx, p.ID, remote)
	}

	encoded, err := content.Encode(remote.record.Project())
	if err != nil {
		return err
	}
	if content.Hash(encoded) != p.CurrentHash {
		r.log().Warn("trifle diverged",
			"id", p.ID,
			"clock", p.LogicalClock,
			"local_hash", p.CurrentHash,
			"remote_version", remote.id,
		)
		r.stats.Diverged++
		return nil
	}
	r.stats.Skipped++
	return nil
}

// latestMarkers groups the version ids of every marker by trifle id.
func (r *run) latestMarkers(ctx context.Context) (map[string][]string, error) {
	found, err := r.engine.remote.List(ctx, r.owner.LatestPrefix(keys.GenCurrent), kv.ListOptions{Depth: 2})
	if err != nil {
		return nil, fmt.Errorf("list latest markers: %w", err)
	}
	out := make(map[string][]string)
	for _, raw := range found {
		k, err := keys.Parse(raw)
		if err != nil {
			continue
		}
		trifleID, versionID, ok := k.Latest()
		if !ok {
			continue
		}
		out[trifleID] = append(out[trifleID], versionID)
	}
	return out, nil
}

// newestVersion fetches the records behind versionIDs and returns the one with
// the highest clock. Markers whose record is missing or was last written for
// another trifle are ignored; nil means no usable remote version.
func (r *run) newestVersion(ctx context.Context, trifleID string, versionIDs []string) (*remoteVersion, error) {
	var best *remoteVersion
	for _, vid := range versionIDs {
		data, ok, err := r.engine.remote.Get(ctx, r.owner.VersionKey(keys.GenCurrent, vid))
		if err != nil {
			return nil, err
		}
		if !ok {
			r.log().Warn("latest marker without version record", "version", vid)
			continue
		}
		record, err := content.DecodeVersionRecord(data)
		if err != nil {
			return nil, err
		}
		// Trifles with identical content share a version id, so the record
		// may belong to whichever of them uploaded last.
		if record.EntityID != trifleID {
			r.log().Warn("latest marker points at another trifle's record",
				"id", trifleID,
				"version", vid,
				"record_entity", record.EntityID,
			)
			continue
		}
		if best == nil || record.LogicalClock > best.record.LogicalClock {
			best = &remoteVersion{id: vid, record: record}
		}
	}
	return best, nil
}

// upload sends files first, then the version record, then the latest marker,
// so a marker never points at content that is not there yet.
func (r *run) upload(ctx context.Context, p store.Pointer) error {
	data, ok, err := r.store().GetBlob(ctx, p.CurrentHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("local content %s missing", p.CurrentHash)
	}
	project, err := content.DecodeProject(data)
	if err != nil {
		return err
	}

	remote := r.engine.remote
	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.parallelism)
	for _, hash := range uniqueHashes(project.Files) {
		g.Go(func() error {
			key := keys.FileKey(hash)
			exists, err := remote.Exists(gctx, key)
			if err != nil || exists {
				return err
			}
			blob, ok, err := r.store().GetBlob(gctx, hash)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("local file %s missing", hash)
			}
			if err := remote.Put(gctx, key, blob); err != nil {
				return fmt.Errorf("upload file %s: %w", hash, err)
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.stats.FilesUploaded += int(sent.Load())

	versionID := keys.VersionID(p.CurrentHash)
	record, err := content.Encode(content.VersionRecord{
		EntityID:     p.ID,
		Name:         project.Name,
		Description:  project.Description,
		ParentID:     project.ParentID,
		LogicalClock: p.LogicalClock,
		LastModified: p.LastModified.UTC(),
		Files:        project.Files,
	})
	if err != nil {
		return err
	}
	if err := remote.Put(ctx, r.owner.VersionKey(keys.GenCurrent, versionID), record); err != nil {
		return fmt.Errorf("upload version record: %w", err)
	}
	if err := remote.Put(ctx, r.owner.LatestKey(keys.GenCurrent, p.ID, versionID), []byte{}); err != nil {
		return fmt.Errorf("write latest marker: %w", err)
	}

	r.log().Debug("trifle uploaded", "id", p.ID, "version", versionID, "clock", p.LogicalClock)
	r.stats.Uploaded++
	return nil
}

// download fetches missing files, verifying each against its hash, and then
// adopts the remote clock verbatim.
func (r *run) download(ctx context.Context, trifleID string, remote *remoteVersion) error {
	if remote.record.EntityID != trifleID {
		return fmt.Errorf("%w: version %s belongs to %q", ErrForeignVersion, remote.id, remote.record.EntityID)
	}
	project := remote.record.Project()
	if err := project.Normalize(); err != nil {
		return err
	}

	var fetched atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.parallelism)
	for _, hash := range uniqueHashes(project.Files) {
		g.Go(func() error {
			have, err := r.store().HasBlob(gctx, hash)
			if err != nil || have {
				return err
			}
			data, ok, err := r.engine.remote.Get(gctx, keys.FileKey(hash))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("remote file %s missing", hash)
			}
			if got := content.Hash(data); got != hash {
				return fmt.Errorf("remote file %s has hash %s", hash, got)
			}
			if _, err := r.store().PutBlob(gctx, data); err != nil {
				return err
			}
			fetched.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.stats.FilesDownloaded += int(fetched.Load())

	encoded, err := content.Encode(project)
	if err != nil {
		return err
	}
	if _, err := r.store().AdoptPointer(ctx, store.Pointer{
		ID:           trifleID,
		OwnerID:      r.engine.ws.Owner(),
		Kind:         store.KindTrifle,
		LogicalClock: remote.record.LogicalClock,
		LastModified: remote.record.LastModified,
	}, encoded); err != nil {
		return err
	}

	r.log().Debug("trifle downloaded", "id", trifleID, "version", remote.id, "clock", remote.record.LogicalClock)
	r.stats.Downloaded++
	return nil
}

func uniqueHashes(files []content.FileRef) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f.Hash]; ok {
			continue
		}
		seen[f.Hash] = struct{}{}
		out = append(out, f.Hash)
	}
	return out
}
