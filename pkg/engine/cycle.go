package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vwsync/vwldap-sync/pkg/directory"
	"github.com/vwsync/vwldap-sync/pkg/vaultwarden"
)

var (
	// ErrCycleFailed is returned when a RUN_ONCE cycle does not succeed.
	ErrCycleFailed = errors.New("sync cycle failed")
	// ErrTooManyFailures is returned when the consecutive-failure limit
	// is reached in loop mode.
	ErrTooManyFailures = errors.New("too many consecutive cycle failures")
)

// Directory supplies the candidate user set.
type Directory interface {
	Fetch() ([]directory.User, error)
}

// Organisation supplies the current membership and applies changes to it.
type Organisation interface {
	Members() ([]vaultwarden.Member, error)
	Invite(email string) error
	Revoke(memberID string) error
	Restore(memberID string) error
}

// Outcome counts one kind of action across a cycle.
type Outcome struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Result is the report of one reconciliation cycle.
type Result struct {
	Invites  Outcome
	Restores Outcome
	Revokes  Outcome
	Errors   []error
	Duration time.Duration
	Success  bool
}

func (r Result) failedActions() int {
	return r.Invites.Failed + r.Restores.Failed + r.Revokes.Failed
}

// Cycle performs one full read-decide-execute pass.
type Cycle struct {
	Directory Directory
	Org       Organisation
	Policy    Policy
}

// Run reads both sides, reconciles, and applies the computed actions. A
// reader failure aborts before any action is attempted; action failures are
// recorded and execution continues with the remaining actions.
func (c *Cycle) Run() (result Result) {
	var started = time.Now()
	defer func() {
		result.Duration = time.Since(started)
	}()

	users, err := c.Directory.Fetch()
	if err != nil {
		log.Error().Err(err).Msg("directory read failed, aborting cycle")
		result.Errors = append(result.Errors, err)
		return
	}
	log.Debug().Int("users", len(users)).Msg("fetched directory entries")

	members, err := c.Org.Members()
	if err != nil {
		log.Error().Err(err).Msg("membership read failed, aborting cycle")
		result.Errors = append(result.Errors, err)
		return
	}
	log.Debug().Int("members", len(members)).Msg("fetched organisation members")

	var memberByEmail = make(map[string]vaultwarden.Member, len(members))
	for _, m := range members {
		memberByEmail[m.Email] = m
	}

	var actions = Reconcile(users, members, c.Policy)
	for _, action := range actions {
		log.Info().Str("op", action.Op.String()).Str("email", action.Email).Msg("applying action")

		var outcome *Outcome
		switch action.Op {
		case OpInvite:
			outcome = &result.Invites
			err = c.Org.Invite(action.Email)
		case OpRestore:
			outcome = &result.Restores
			err = c.Org.Restore(memberByEmail[action.Email].ID)
		case OpRevoke:
			outcome = &result.Revokes
			err = c.Org.Revoke(memberByEmail[action.Email].ID)
		}

		outcome.Attempted++
		if err != nil {
			outcome.Failed++
			log.Error().Err(err).Str("op", action.Op.String()).Str("email", action.Email).Msg("action failed")
			result.Errors = append(result.Errors, fmt.Errorf("%s %s: %w", action.Op, action.Email, err))
			continue
		}
		outcome.Succeeded++
	}

	result.Success = result.failedActions() == 0
	return
}

// Runner abstracts a cycle for the controller.
type Runner interface {
	Run() Result
}

// Controller drives cycles and owns the consecutive-failure counter. The
// counter is in-memory only; a restart loses it.
type Controller struct {
	cycle       Runner
	interval    time.Duration
	maxFailures int
	runOnce     bool
	failures    int
}

func NewController(cycle Runner, interval time.Duration, maxFailures int, runOnce bool) *Controller {
	return &Controller{
		cycle:       cycle,
		interval:    interval,
		maxFailures: maxFailures,
		runOnce:     runOnce,
	}
}

// ConsecutiveFailures returns the current failure streak.
func (c *Controller) ConsecutiveFailures() int {
	return c.failures
}

// Loop runs cycles until the context is cancelled, the failure limit is
// reached, or — in run-once mode — after the first cycle. A nil return maps
// to exit code 0.
func (c *Controller) Loop(ctx context.Context) error {
	for {
		var result = c.runCycle()

		if result.Success {
			c.failures = 0
		} else {
			c.failures++
		}

		var event = log.Info()
		if !result.Success {
			event = log.Warn()
		}
		event.
			Bool("success", result.Success).
			Dur("duration", result.Duration).
			Int("invited", result.Invites.Succeeded).
			Int("restored", result.Restores.Succeeded).
			Int("revoked", result.Revokes.Succeeded).
			Int("failed_actions", result.failedActions()).
			Int("consecutive_failures", c.failures).
			Errs("errors", result.Errors).
			Msg("cycle finished")

		if c.runOnce {
			if result.Success {
				return nil
			}
			return ErrCycleFailed
		}

		if !result.Success && c.failures >= c.maxFailures {
			return fmt.Errorf("%w: %d of %d", ErrTooManyFailures, c.failures, c.maxFailures)
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown requested, stopping sync loop")
			return nil
		case <-time.After(c.interval):
		}
	}
}

// runCycle converts a programming-level fault inside the cycle into a
// failed result instead of tearing down the loop.
func (c *Controller) runCycle() (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Errors: []error{fmt.Errorf("cycle fault: %v", r)}}
		}
	}()
	return c.cycle.Run()
}
