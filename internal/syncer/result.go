package syncer

import (
	"errors"
	"time"
)

// Status is the tagged outcome of one sync run.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNotLoggedIn Status = "not_logged_in"
	StatusInProgress  Status = "in_progress"
	StatusFailed      Status = "failed"
)

// Phase names a step of the sync state machine.
type Phase string

const (
	PhaseGuard    Phase = "guard"
	PhaseIdentity Phase = "identity"
	PhaseMigrate  Phase = "migrate"
	PhaseProfile  Phase = "profile"
	PhaseTrifles  Phase = "trifles"
	PhaseRecord   Phase = "record"
	PhaseDone     Phase = "done"
)

var (
	ErrInProgress     = errors.New("sync already in progress")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrForeignVersion = errors.New("version record belongs to another trifle")
)

// Stats counts what one run did.
type Stats struct {
	Migrated        int `json:"migrated" yaml:"migrated"`
	Uploaded        int `json:"uploaded" yaml:"uploaded"`
	Downloaded      int `json:"downloaded" yaml:"downloaded"`
	Skipped         int `json:"skipped" yaml:"skipped"`
	Diverged        int `json:"diverged" yaml:"diverged"`
	FilesUploaded   int `json:"files_uploaded" yaml:"files_uploaded"`
	FilesDownloaded int `json:"files_downloaded" yaml:"files_downloaded"`
}

// Result is what Sync returns. Err is set for every status except StatusOK;
// Phase is where the run stopped.
type Result struct {
	Status   Status    `json:"status" yaml:"status"`
	Phase    Phase     `json:"phase" yaml:"phase"`
	Email    string    `json:"email,omitempty" yaml:"email,omitempty"`
	LastSync time.Time `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	Stats    Stats     `json:"stats" yaml:"stats"`
	Err      error     `json:"-" yaml:"-"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success reports whether the run completed.
func (r Result) Success() bool { return r.Status == StatusOK }

func failed(status Status, phase Phase, err error) Result {
	res := Result{Status: status, Phase: phase, Err: err}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
