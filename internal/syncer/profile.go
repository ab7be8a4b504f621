package syncer

import (
	"context"
	"fmt"

	"trifle/internal/content"
	"trifle/internal/keys"
	"trifle/internal/store"
)

// syncProfile makes the profile with the higher clock win. On a tie the
// remote copy is adopted.
func (r *run) syncProfile(ctx context.Context) error {
	ws := r.engine.ws
	local, ptr, err := ws.Profile(ctx)
	if err != nil {
		return err
	}

	key := r.owner.ProfileKey(keys.GenCurrent)
	data, ok, err := r.engine.remote.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return r.uploadProfile(ctx, key, local, ptr)
	}

	remote, err := content.DecodeProfileRecord(data)
	if err != nil {
		return err
	}
	if ptr.LogicalClock > remote.LogicalClock {
		return r.uploadProfile(ctx, key, local, ptr)
	}
	if ptr.LogicalClock == remote.LogicalClock && remote.Profile() == local {
		r.stats.Skipped++
		return nil
	}

	encoded, err := content.Encode(remote.Profile())
	if err != nil {
		return err
	}
	if _, err := r.store().AdoptPointer(ctx, store.Pointer{
		ID:           ws.ProfileID(),
		OwnerID:      ws.Owner(),
		Kind:         store.KindProfile,
		LogicalClock: remote.LogicalClock,
		LastModified: remote.LastModified,
	}, encoded); err != nil {
		return fmt.Errorf("adopt profile: %w", err)
	}
	r.log().Debug("profile downloaded", "clock", remote.LogicalClock)
	r.stats.Downloaded++
	return nil
}

func (r *run) uploadProfile(ctx context.Context, key string, p content.Profile, ptr *store.Pointer) error {
	data, err := content.Encode(content.ProfileRecord{
		DisplayName:  p.DisplayName,
		LogicalClock: ptr.LogicalClock,
		LastModified: ptr.LastModified.UTC(),
	})
	if err != nil {
		return err
	}
	if err := r.engine.remote.Put(ctx, key, data); err != nil {
		return fmt.Errorf("upload profile: %w", err)
	}
	r.log().Debug("profile uploaded", "clock", ptr.LogicalClock)
	r.stats.Uploaded++
	return nil
}
