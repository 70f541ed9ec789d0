package provider

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// State is a step of a single send attempt.
type State string

// Attempts move forward through these states, or to StateFailed from any
// state.
const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateAuthenticated State = "authenticated"
	StateSending       State = "sending"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

var order = map[State]int{
	StateIdle:          0,
	StateConnecting:    1,
	StateAuthenticated: 2,
	StateSending:       3,
	StateDone:          4,
}

// ErrAuthentication marks failures caused by rejected credentials (SMTP
// AUTH or the OAuth2 token endpoint).
var ErrAuthentication = errors.New("authentication failed")

// SendError reports the provider and the state an attempt failed in.
type SendError struct {
	Provider string
	State    State
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: failed while %s: %v", e.Provider, e.State, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Attempt tracks one send through the state machine and logs each step.
type Attempt struct {
	provider string
	state    State
	started  time.Time
	logger   *zap.Logger
}

// NewAttempt starts an attempt in StateIdle. logger may be nil.
func NewAttempt(provider string, logger *zap.Logger) *Attempt {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Attempt{
		provider: provider,
		state:    StateIdle,
		started:  time.Now(),
		logger:   logger.With(zap.String("provider", provider)),
	}
}

// State returns the current state.
func (a *Attempt) State() State {
	return a.state
}

// Advance moves to next. Moving backwards, or anywhere after the attempt
// has finished, is a programming error and panics.
func (a *Attempt) Advance(next State) {
	cur, ok := order[a.state]
	to, known := order[next]
	if !ok || !known || to <= cur {
		panic(fmt.Sprintf("provider: invalid transition %s -> %s", a.state, next))
	}
	a.state = next
	a.logger.Debug("send state", zap.String("state", string(next)))
}

// Done completes the attempt.
func (a *Attempt) Done() {
	a.Advance(StateDone)
	a.logger.Info("email sent", zap.Duration("elapsed", time.Since(a.started)))
}

// Fail records err against the current state, moves to StateFailed and
// returns a *SendError for the caller to return.
func (a *Attempt) Fail(err error) error {
	sendErr := &SendError{Provider: a.provider, State: a.state, Err: err}
	a.logger.Warn("email send failed",
		zap.String("state", string(a.state)),
		zap.Duration("elapsed", time.Since(a.started)),
		zap.Error(err),
	)
	a.state = StateFailed
	return sendErr
}
