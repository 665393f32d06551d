package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/meshexport/internal/logger"
)

// ErrCanceled is reported by tasks stopped through Scheduler.Cancel.
var ErrCanceled = errors.New("conversion canceled")

// waitDelay bounds how long Wait keeps reading output of a killed process.
const waitDelay = 2 * time.Second

// Status is the state of a conversion task.
type Status int

// Task states.
const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCanceled
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Done reports whether the status is final.
func (s Status) Done() bool { return s >= StatusSucceeded }

// Task is the handle of one conversion.
type Task struct {
	Input string

	mu       sync.Mutex
	status   Status
	err      error
	exitCode int
	output   bytes.Buffer
	done     chan struct{}
}

func newTask(input string) *Task {
	return &Task{Input: input, exitCode: -1, done: make(chan struct{})}
}

// Status returns the current state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ExitCode returns the process exit code, or -1 while it has not exited
// normally.
func (t *Task) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// Output returns the combined standard output and error of the process.
// It is complete once Wait returns.
func (t *Task) Output() string {
	<-t.done
	return t.output.String()
}

// Done is closed when the task reaches a final state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is final and returns its error.
func (t *Task) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setRunning() {
	t.mu.Lock()
	t.status = StatusRunning
	t.mu.Unlock()
}

func (t *Task) finish(status Status, code int, err error) {
	t.mu.Lock()
	t.status = status
	t.exitCode = code
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// Scheduler runs conversions as independent processes, at most a fixed
// number at a time.
type Scheduler struct {
	opts   Options
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks []*Task
	wg    sync.WaitGroup
}

// NewScheduler returns a scheduler running up to maxConcurrent processes.
// Canceling ctx has the same effect as Cancel.
func NewScheduler(ctx context.Context, opts Options, maxConcurrent int) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Spawn starts converting input. It blocks while the concurrency cap is
// reached. The returned task is already final when the process could not be
// started or the scheduler was canceled while waiting.
func (s *Scheduler) Spawn(input string) (*Task, error) {
	args, err := s.opts.Args(input)
	if err != nil {
		return nil, err
	}

	t := newTask(input)
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return s.canceled(t), nil
	}
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return s.canceled(t), nil
	}

	cmd := exec.CommandContext(s.ctx, s.opts.Path, args...)
	cmd.Stdout = &t.output
	cmd.Stderr = &t.output
	cmd.WaitDelay = waitDelay

	logger.Debug("starting converter", zap.String("path", s.opts.Path), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		s.sem.Release(1)
		if s.ctx.Err() != nil {
			return s.canceled(t), nil
		}
		t.finish(StatusFailed, -1, fmt.Errorf("convert %s: %w", input, err))
		logger.Error("converter did not start", zap.String("input", input), zap.Error(err))
		return t, nil
	}
	t.setRunning()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.wait(t, cmd)
	}()
	return t, nil
}

func (s *Scheduler) canceled(t *Task) *Task {
	t.finish(StatusCanceled, -1, fmt.Errorf("convert %s: %w", t.Input, ErrCanceled))
	logger.Warn("converter canceled before start", zap.String("input", t.Input))
	return t
}

func (s *Scheduler) wait(t *Task, cmd *exec.Cmd) {
	err := cmd.Wait()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	switch {
	case s.ctx.Err() != nil && err != nil:
		t.finish(StatusCanceled, code, fmt.Errorf("convert %s: %w", t.Input, ErrCanceled))
		logger.Warn("converter canceled", zap.String("input", t.Input))
	case err != nil:
		t.finish(StatusFailed, code, fmt.Errorf("convert %s: %w", t.Input, err))
		logger.Error("converter failed",
			zap.String("input", t.Input),
			zap.Int("exit_code", code),
			zap.String("output", t.output.String()))
	default:
		t.finish(StatusSucceeded, code, nil)
		logger.Info("converted", zap.String("input", t.Input))
	}
}

// Tasks returns the spawned tasks in submission order.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Task(nil), s.tasks...)
}

// Cancel kills running processes and fails pending submissions. Files
// already written are left alone.
func (s *Scheduler) Cancel() { s.cancel() }

// Wait blocks until every spawned process has exited and returns the
// combined errors of failed and canceled tasks.
func (s *Scheduler) Wait() error {
	s.wg.Wait()
	var err error
	for _, t := range s.Tasks() {
		err = multierr.Append(err, t.Wait())
	}
	return err
}
