package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunStatusNew     RunStatus = "new"
	RunStatusProcess RunStatus = "process"
	RunStatusOK      RunStatus = "ok"
	RunStatusError   RunStatus = "error"
)

// ActionParse is the RunLog action recorded for extraction batches.
const ActionParse = "parse"

// ErrStatusRegression is returned when a transition would move a run
// backwards or out of a terminal state.
var ErrStatusRegression = eris.New("run status regression")

var allowedTransitions = map[RunStatus][]RunStatus{
	RunStatusNew:     {RunStatusProcess, RunStatusError},
	RunStatusProcess: {RunStatusOK, RunStatusError},
}

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusOK || s == RunStatusError
}

// CanAdvanceTo reports whether s may transition to next.
func (s RunStatus) CanAdvanceTo(next RunStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunLog is the audit record of one batch invocation.
type RunLog struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Tag        string    `json:"tag"`
	Action     string    `json:"action"`
	Status     RunStatus `json:"status"`
	TokensUsed int       `json:"tokens_used"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Advance moves the run to next, recording message. An error status must
// carry a message.
func (r *RunLog) Advance(next RunStatus, message string) error {
	if !r.Status.CanAdvanceTo(next) {
		return eris.Wrapf(ErrStatusRegression, "%s -> %s", r.Status, next)
	}
	if next == RunStatusError && message == "" {
		message = "unknown error"
	}
	r.Status = next
	if message != "" {
		r.Message = message
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}
