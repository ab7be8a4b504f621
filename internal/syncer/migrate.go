package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"trifle/internal/keys"
	"trifle/internal/kv"
)

// ErrMigrationVerification means a copied key did not read back as written.
// Legacy keys are left in place when it is returned.
var ErrMigrationVerification = errors.New("migration verification failed")

// MigrationStep is one legacy key and where it moves.
type MigrationStep struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// PlanMigration lists the legacy keys of owner that a sync would move into
// the current generation. Keys that are neither profiles, version records
// nor latest markers are not part of the plan.
func PlanMigration(ctx context.Context, remote Remote, owner keys.Owner) ([]MigrationStep, error) {
	found, err := remote.List(ctx, owner.Prefix(keys.GenLegacy), kv.ListOptions{Recursive: true})
	if err != nil {
		return nil, fmt.Errorf("list legacy keys: %w", err)
	}
	steps := make([]MigrationStep, 0, len(found))
	for _, raw := range found {
		k, err := keys.Parse(raw)
		if err != nil || k.Gen != keys.GenLegacy {
			continue
		}
		_, isVersion := k.Version()
		_, _, isLatest := k.Latest()
		if !k.IsProfile() && !isVersion && !isLatest {
			continue
		}
		to, err := owner.Rebase(k, keys.GenCurrent)
		if err != nil {
			continue
		}
		steps = append(steps, MigrationStep{From: raw, To: to.String()})
	}
	return steps, nil
}

// migrate copies legacy keys forward without overwriting, verifies every copy
// by reading it back, and only then deletes the legacy keys. A crash at any
// point leaves a state the next run finishes.
func (r *run) migrate(ctx context.Context) error {
	remote := r.engine.remote
	steps, err := PlanMigration(ctx, remote, r.owner)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	r.log().Info("migrating legacy namespace", "email", r.owner.Email, "keys", len(steps))

	copied := make(map[string][]byte, len(steps))
	for _, step := range steps {
		exists, err := remote.Exists(ctx, step.To)
		if err != nil {
			return err
		}
		if exists {
			// The current generation wins.
			continue
		}
		value, ok, err := remote.Get(ctx, step.From)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := remote.Put(ctx, step.To, value); err != nil {
			return fmt.Errorf("copy %s: %w", step.From, err)
		}
		copied[step.To] = value
	}

	for _, step := range steps {
		want, wasCopied := copied[step.To]
		got, ok, err := remote.Get(ctx, step.To)
		if err != nil {
			return err
		}
		if !ok || (wasCopied && !bytes.Equal(got, want)) {
			return fmt.Errorf("%w: %s", ErrMigrationVerification, step.To)
		}
	}

	for _, step := range steps {
		if err := remote.Delete(ctx, step.From); err != nil && !errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("delete legacy %s: %w", step.From, err)
		}
	}
	r.stats.Migrated += len(steps)
	return nil
}
