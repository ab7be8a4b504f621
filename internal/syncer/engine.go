// Package syncer reconciles the local store with the remote namespace.
//
// A run is a fixed sequence of phases. Each phase either completes or aborts
// the whole run; nothing is rolled back because every remote write is
// idempotent and a failed run can simply be repeated.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"strings"
	"time"

	"trifle/internal/api"
	"trifle/internal/keys"
	"trifle/internal/kv"
	"trifle/internal/store"
	"trifle/internal/workspace"
)

const DefaultParallelism = 4

// Remote is the subset of the KV protocol the engine needs. Both api.Client
// and any kv.Namespace satisfy it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string, opts kv.ListOptions) ([]string, error)
}

// Identifier reports the email the remote authenticates the caller as.
// api.Client satisfies it.
type Identifier interface {
	WhoAmI(ctx context.Context) (string, error)
}

// Options tune an Engine.
type Options struct {
	// Parallelism bounds concurrent file transfers within one trifle.
	Parallelism int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine owns the single-flight guard for one client.
type Engine struct {
	ws          *workspace.Workspace
	remote      Remote
	parallelism int
	logger      *slog.Logger
	now         func() time.Time
	running     atomic.Bool
}

// New returns an engine syncing ws against remote.
func New(ws *workspace.Workspace, remote Remote, opts Options) *Engine {
	e := &Engine{
		ws:          ws,
		remote:      remote,
		parallelism: opts.Parallelism,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if e.parallelism <= 0 {
		e.parallelism = DefaultParallelism
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

// Running reports whether a sync is in flight.
func (e *Engine) Running() bool { return e.running.Load() }

// Sync runs one reconciliation as email. It never panics on remote failure
// and never leaves local state inconsistent; all errors end up in Result.
func (e *Engine) Sync(ctx context.Context, email string) Result {
	return e.sync(ctx, func(context.Context) (string, error) { return email, nil })
}

// SyncAuthenticated syncs as the identity behind the client's credentials,
// resolved through Authenticate.
func (e *Engine) SyncAuthenticated(ctx context.Context, who Identifier, expected string) Result {
	return e.sync(ctx, func(ctx context.Context) (string, error) {
		return Authenticate(ctx, who, expected)
	})
}

// Authenticate asks who for the email its credentials authenticate as.
// Rejected credentials, or an email other than expected when expected is
// set, match ErrNotLoggedIn.
func Authenticate(ctx context.Context, who Identifier, expected string) (string, error) {
	email, err := who.WhoAmI(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		return "", fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	if err != nil {
		return "", err
	}
	expected = strings.TrimSpace(expected)
	if expected != "" && !strings.EqualFold(email, expected) {
		return "", fmt.Errorf("%w: credentials authenticate as %s, not %s", ErrNotLoggedIn, email, expected)
	}
	return email, nil
}

func (e *Engine) sync(ctx context.Context, identify func(context.Context) (string, error)) Result {
	if !e.running.CompareAndSwap(false, true) {
		e.log().Warn("sync rejected", "reason", ErrInProgress)
		return failed(StatusInProgress, PhaseGuard, ErrInProgress)
	}
	defer e.running.Store(false)

	email, err := identify(ctx)
	if errors.Is(err, ErrNotLoggedIn) {
		e.log().Warn("sync rejected", "reason", err)
		return failed(StatusNotLoggedIn, PhaseIdentity, err)
	}
	if err != nil {
		e.log().Warn("sync failed", "phase", PhaseIdentity, "error", err)
		return failed(StatusFailed, PhaseIdentity, fmt.Errorf("%s: %w", PhaseIdentity, err))
	}
	owner, err := keys.ParseEmail(email)
	if err != nil {
		e.log().Warn("sync rejected", "reason", ErrNotLoggedIn, "error", err)
		return failed(StatusNotLoggedIn, PhaseIdentity, fmt.Errorf("%w: %v", ErrNotLoggedIn, err))
	}

	r := &run{engine: e, owner: owner}
	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseMigrate, r.migrate},
		{PhaseProfile, r.syncProfile},
		{PhaseTrifles, r.syncTrifles},
	}

	for _, step := range steps {
		e.log().Debug("sync phase", "phase", step.phase, "email", owner.Email)
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, step.phase, err)
		}
		if err := step.fn(ctx); err != nil {
			return r.finish(ctx, step.phase, fmt.Errorf("%s: %w", step.phase, err))
		}
	}
	return r.finish(ctx, PhaseRecord, nil)
}

// DeleteRemote removes every latest marker of trifleID so other clients stop
// discovering it. Version records and files stay.
func (e *Engine) DeleteRemote(ctx context.Context, email, trifleID string) error {
	owner, err := keys.ParseEmail(email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	if err := store.ValidateTrifleID(trifleID); err != nil {
		return err
	}
	err = e.remote.Delete(ctx, owner.LatestEntityPrefix(keys.GenCurrent, trifleID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

type run struct {
	engine *Engine
	owner  keys.Owner
	stats  Stats
}

func (r *run) log() *slog.Logger { return r.engine.log() }

func (r *run) store() *store.Store { return r.engine.ws.Store() }

// finish records the outcome locally and builds the Result.
func (r *run) finish(ctx context.Context, phase Phase, err error) Result {
	now := r.engine.now().UTC()
	state := store.SyncState{
		OwnerID:     r.engine.ws.Owner(),
		Email:       r.owner.Email,
		Synced:      err == nil,
		LastSync:    now,
		LastAttempt: now,
	}
	if err != nil {
		state.LastError = err.Error()
	}
	// The record is display-only; a failure to write it does not change the outcome.
	if saveErr := r.store().SaveSyncState(context.WithoutCancel(ctx), state); saveErr != nil {
		r.log().Warn("record sync state", "error", saveErr)
	}

	if err != nil {
		r.log().Warn("sync failed", "email", r.owner.Email, "phase", phase, "error", err)
		res := failed(StatusFailed, phase, err)
		res.Email = r.owner.Email
		res.Stats = r.stats
		return res
	}

	r.log().Info("sync complete",
		"email", r.owner.Email,
		"migrated", r.stats.Migrated,
		"uploaded", r.stats.Uploaded,
		"downloaded", r.stats.Downloaded,
		"skipped", r.stats.Skipped,
		"diverged", r.stats.Diverged,
	)
	return Result{Status: StatusOK, Phase: PhaseDone, Email: r.owner.Email, LastSync: now, Stats: r.stats}
}
