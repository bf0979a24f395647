package startup

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a Task.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Runner is the work a Task performs. *VersionGate satisfies it.
type Runner interface {
	Run(ctx context.Context) (Outcome, error)
}

// Status is a snapshot of a Task.
type Status struct {
	State       State     `json:"state"`
	VersionCode int       `json:"version_code"`
	Previous    int       `json:"previous_version_code"`
	Skipped     bool      `json:"skipped"`
	Copied      int       `json:"copied"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	DurationMS  int64     `json:"duration_ms"`
}

// Task runs a Runner in the background and reports its progress.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Listeners run on the goroutine that made the transition, in
//     registration order, never while the Task's lock is held.
type Task struct {
	runner      Runner
	versionCode int
	logger      Logger

	mu        sync.RWMutex
	started   bool
	status    Status
	done      chan struct{}
	listeners []func(Status)

	group singleflight.Group
}

// NewTask creates a pending task. versionCode is reported in Status before
// the first run completes.
func NewTask(runner Runner, versionCode int) *Task {
	return &Task{
		runner:      runner,
		versionCode: versionCode,
		logger:      noopLogger{},
		status: Status{
			State:       StatePending,
			VersionCode: versionCode,
			Previous:    -1,
		},
		done: make(chan struct{}),
	}
}

// SetLogger sets the logger for the task.
func (t *Task) SetLogger(logger Logger) {
	t.logger = logger
}

// OnChange registers fn to be called after every state transition.
func (t *Task) OnChange(fn func(Status)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Start launches the run in a new goroutine. It may be called once.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	go func() {
		//nolint:errcheck // Result is published through Status
		t.group.Do("run", func() (any, error) {
			return t.attempt(ctx), nil
		})
	}()
	return nil
}

// Retry runs another attempt after a failure and blocks until it finishes.
// Callers arriving while an attempt is in flight share its result.
func (t *Task) Retry(ctx context.Context) (Status, error) {
	v, err, _ := t.group.Do("run", func() (any, error) {
		t.mu.Lock()
		if t.status.State != StateFailed {
			t.mu.Unlock()
			return nil, ErrNotFailed
		}
		t.done = make(chan struct{})
		t.mu.Unlock()

		return t.attempt(ctx), nil
	})
	if err != nil {
		return t.Status(), err
	}
	return v.(Status), nil //nolint:forcetypeassert // attempt returns Status
}

// attempt performs one run and publishes both transitions.
func (t *Task) attempt(ctx context.Context) Status {
	started := time.Now()
	t.transition(func(s *Status) {
		s.State = StateRunning
		s.Attempts++
		s.Error = ""
		s.StartedAt = started
		s.FinishedAt = time.Time{}
	})

	out, err := t.runner.Run(ctx)
	finished := time.Now()

	final := t.transition(func(s *Status) {
		s.Previous = out.Previous
		s.Skipped = out.Skipped
		s.Copied = out.Copied
		s.FinishedAt = finished
		s.DurationMS = finished.Sub(started).Milliseconds()
		if err != nil {
			s.State = StateFailed
			s.Error = err.Error()
		} else {
			s.State = StateReady
		}
	})

	t.mu.Lock()
	close(t.done)
	t.mu.Unlock()

	if err != nil {
		t.logger.Error("database provisioning failed", "error", err, "attempt", final.Attempts)
	} else {
		t.logger.Info("databases ready", "skipped", final.Skipped, "copied", final.Copied)
	}
	return final
}

// transition applies fn under the lock and then notifies listeners.
func (t *Task) transition(fn func(*Status)) Status {
	t.mu.Lock()
	fn(&t.status)
	snapshot := t.status
	listeners := append([]func(Status){}, t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot
}

// Status returns a snapshot of the task.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Ready reports whether the databases are provisioned for this launch.
func (t *Task) Ready() bool {
	return t.Status().State == StateReady
}

// Done returns a channel closed when the current attempt finishes.
func (t *Task) Done() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done
}

// Wait blocks until the current attempt finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.Done():
		return t.Status(), nil
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}
