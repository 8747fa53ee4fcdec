package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Errors returned by the runner.
var (
	// ErrBusy is returned by Submit while another task is still running.
	// Callers disable their start trigger rather than queue.
	ErrBusy = errors.New("task: a task is already running")

	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task: not found")
)

// State is a task's lifecycle state. Transitions are one-way:
// Pending → Running → Completed | Cancelled | Failed.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// EventKind discriminates the three signals a running task emits.
type EventKind string

const (
	// KindProgress carries a fractional progress update from the job.
	KindProgress EventKind = "progress"

	// KindLog carries a severity-tagged free-text line.
	KindLog EventKind = "log"

	// KindElapsed carries a periodic elapsed-time tick. Purely cosmetic,
	// independent of job progress.
	KindElapsed EventKind = "elapsed"

	// KindState announces a state transition, including terminal ones.
	KindState EventKind = "state"
)

// Event is one notification on the runner's event stream.
type Event struct {
	TaskID   string        `json:"task_id"`
	TaskName string        `json:"task_name"`
	Kind     EventKind     `json:"kind"`
	Fraction float64       `json:"fraction,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Severity string        `json:"severity,omitempty"`
	Message  string        `json:"message,omitempty"`
	State    State         `json:"state,omitempty"`
	Time     time.Time     `json:"time"`
}

// Job is one unit of background work. Run must observe ctx cancellation
// cooperatively (at worst once per processing batch) and return ctx's error
// when it stops early.
type Job interface {
	Name() string
	Run(ctx context.Context, p *Progress) error
}

// Progress is the reporting handle passed to a running job.
type Progress struct {
	runner *Runner
	task   *Task
}

// Report emits a fractional progress update (0–1).
func (p *Progress) Report(fraction float64) {
	p.runner.publish(p.event(KindProgress, func(ev *Event) { ev.Fraction = fraction }))
}

// Log emits a severity-tagged log line ("info", "warning" or "error").
func (p *Progress) Log(severity, message string) {
	p.runner.publish(p.event(KindLog, func(ev *Event) {
		ev.Severity = severity
		ev.Message = message
	}))
}

func (p *Progress) event(kind EventKind, fill func(*Event)) Event {
	ev := Event{
		TaskID:   p.task.ID,
		TaskName: p.task.Name,
		Kind:     kind,
		Time:     p.runner.now(),
	}
	fill(&ev)
	return ev
}

// Task is one submitted unit of work and its lifecycle state.
type Task struct {
	ID   string
	Name string

	mu       sync.Mutex
	state    State
	err      error
	started  time.Time
	finished time.Time
	cancel   context.CancelFunc
}

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that moved the task to Failed, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Elapsed returns how long the task has been (or was) running.
func (t *Task) Elapsed(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() {
		return 0
	}
	if !t.finished.IsZero() {
		return t.finished.Sub(t.started)
	}
	return now.Sub(t.started)
}

// Runner executes jobs off the interactive path, one at a time. While a job
// runs it emits elapsed-time ticks at a fixed interval plus whatever
// progress and log events the job reports; on completion it emits a terminal
// state event and accepts the next submission.
type Runner struct {
	tick time.Duration
	now  func() time.Time // injectable for deterministic tests

	mu     sync.Mutex
	active *Task
	tasks  map[string]*Task
	subs   map[chan Event]struct{}
}

// subBufSize is the per-subscriber event buffer depth. A subscriber that
// falls this far behind misses events rather than blocking the runner.
const subBufSize = 64

// taskRetention is how long a terminal task stays queryable after finishing.
// Older ones are evicted on the next Submit so the task map stays bounded.
const taskRetention = time.Hour

// NewRunner returns a Runner emitting elapsed ticks every tick.
func NewRunner(tick time.Duration) *Runner {
	return &Runner{
		tick:  tick,
		now:   time.Now,
		tasks: make(map[string]*Task),
		subs:  make(map[chan Event]struct{}),
	}
}

// Submit schedules job for background execution and returns immediately.
// While a task is active, Submit returns ErrBusy — starting is disabled,
// not queued.
func (r *Runner) Submit(job Job) (*Task, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.pruneLocked()

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		ID:     uuid.NewString(),
		Name:   job.Name(),
		state:  StatePending,
		cancel: cancel,
	}
	r.active = t
	r.tasks[t.ID] = t
	r.mu.Unlock()

	go r.run(ctx, t, job)
	return t, nil
}

// pruneLocked evicts terminal tasks that finished more than taskRetention
// ago. Caller holds r.mu.
func (r *Runner) pruneLocked() {
	cutoff := r.now().Add(-taskRetention)
	for id, t := range r.tasks {
		t.mu.Lock()
		stale := t.state.Terminal() && t.finished.Before(cutoff)
		t.mu.Unlock()
		if stale {
			delete(r.tasks, id)
		}
	}
}

// SetTick updates the elapsed-tick interval for subsequently started tasks.
// Applied by the config hot-reload; a running task keeps the interval it
// started with.
func (r *Runner) SetTick(d time.Duration) {
	r.mu.Lock()
	r.tick = d
	r.mu.Unlock()
}

// Get returns a task by id.
func (r *Runner) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Active returns the currently running task, if any.
func (r *Runner) Active() (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != nil
}

// Cancel requests cooperative cancellation of the task with the given id.
// The flag is one-way; the job observes it at its next batch boundary.
// Cancelling an already-terminal task is a no-op.
func (r *Runner) Cancel(id string) error {
	t, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}

	t.mu.Lock()
	terminal := t.state.Terminal()
	cancel := t.cancel
	t.mu.Unlock()
	if terminal {
		return nil
	}

	r.publish(Event{
		TaskID:   t.ID,
		TaskName: t.Name,
		Kind:     KindLog,
		Severity: "info",
		Message:  "Canceling task...",
		Time:     r.now(),
	})
	cancel()
	return nil
}

// Subscribe returns a channel of runner events and a cancel function.
// The channel is closed when the cancel function is called.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subBufSize)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	off := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, off
}

// --- internal ---------------------------------------------------------------

func (r *Runner) run(ctx context.Context, t *Task, job Job) {
	t.mu.Lock()
	t.state = StateRunning
	t.started = r.now()
	t.mu.Unlock()
	r.publishState(t, StateRunning)
	slog.Info("task: started", "id", t.ID, "name", t.Name)

	r.mu.Lock()
	tick := r.tick
	r.mu.Unlock()

	// Elapsed ticker — cosmetic, stops with the job.
	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-tickerDone:
				return
			case <-ticker.C:
				r.publish(Event{
					TaskID:   t.ID,
					TaskName: t.Name,
					Kind:     KindElapsed,
					Elapsed:  t.Elapsed(r.now()),
					Time:     r.now(),
				})
			}
		}
	}()

	err := runSafely(ctx, job, &Progress{runner: r, task: t})
	close(tickerDone)

	final := StateCompleted
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		final = StateCancelled
	default:
		final = StateFailed
	}

	// Free the slot before announcing the terminal state, so a caller that
	// saw the task finish can submit again without hitting ErrBusy.
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	t.mu.Lock()
	t.state = final
	t.finished = r.now()
	if final == StateFailed {
		t.err = err
	}
	t.mu.Unlock()

	switch final {
	case StateCompleted:
		slog.Info("task: completed", "id", t.ID, "name", t.Name, "elapsed", t.Elapsed(r.now()))
	case StateCancelled:
		slog.Info("task: cancelled", "id", t.ID, "name", t.Name)
	case StateFailed:
		slog.Error("task: failed", "id", t.ID, "name", t.Name, "err", err)
		r.publish(Event{
			TaskID:   t.ID,
			TaskName: t.Name,
			Kind:     KindLog,
			Severity: "error",
			Message:  err.Error(),
			Time:     r.now(),
		})
	}
	r.publishState(t, final)
}

// runSafely executes the job, converting a panic into a regular error so a
// faulty job can never crash the caller.
func runSafely(ctx context.Context, job Job, p *Progress) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task: panic in %q: %v", job.Name(), rec)
		}
	}()
	return job.Run(ctx, p)
}

func (r *Runner) publishState(t *Task, s State) {
	r.publish(Event{
		TaskID:   t.ID,
		TaskName: t.Name,
		Kind:     KindState,
		State:    s,
		Time:     r.now(),
	})
}

func (r *Runner) publish(ev Event) {
	r.mu.Lock()
	targets := make([]chan Event, 0, len(r.subs))
	for ch := range r.subs {
		targets = append(targets, ch)
	}
	r.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full — drop rather than block the runner.
		}
	}
}
