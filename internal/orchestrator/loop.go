// Package orchestrator sequences the development loop: plan, task
// generation, implementation, gates, fix attempts, and review. It is the
// composition root that holds the lock for the run's duration and is the
// only place that turns domain failures into a process exit.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/skondo/overture/internal/agent"
	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/events"
	"github.com/skondo/overture/internal/gate"
	"github.com/skondo/overture/internal/journal"
	"github.com/skondo/overture/internal/lock"
	"github.com/skondo/overture/internal/notify"
	"github.com/skondo/overture/internal/progress"
	"github.com/skondo/overture/internal/render"
)

// Invoker runs the external agent. Satisfied by *agent.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, argv []string, policy agent.RetryPolicy) agent.InvocationResult
}

// GateRunner executes the validation commands. Satisfied by *gate.Runner.
type GateRunner interface {
	Run(ctx context.Context, commands []string, strategy gate.Strategy, perCommandTimeout time.Duration) gate.Result
}

// RunError is the structured failure the loop surfaces: which phase
// failed and why. The lock is always released before it is returned.
type RunError struct {
	Phase  string
	Reason string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s phase failed: %s", e.Phase, e.Reason)
}

// Loop drives one orchestration run for a project.
type Loop struct {
	root    string
	cfg     config.Config
	logger  *log.Logger
	out     io.Writer
	invoker Invoker
	gates   GateRunner
	locks   *lock.Manager
	journal *journal.Journal
	audit   *events.Logger
	notify  func(title, message string) error
	pid     int
}

// Options overrides collaborators for testing. Zero values mean real
// implementations.
type Options struct {
	Invoker Invoker
	Gates   GateRunner
	Out     io.Writer
	Notify  func(title, message string) error
}

// New builds a Loop for the project rooted at root.
func New(root string, cfg config.Config, logger *log.Logger, opts Options) (*Loop, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	if opts.Invoker == nil {
		opts.Invoker = agent.NewInvoker(root, agent.StdioCapture, logger)
	}
	if opts.Gates == nil {
		opts.Gates = gate.NewRunner(root, logger)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Notify == nil {
		opts.Notify = notify.Send
	}

	audit, err := events.NewLogger(config.EventsPath(root), 0)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &Loop{
		root:    root,
		cfg:     cfg,
		logger:  logger,
		out:     opts.Out,
		invoker: opts.Invoker,
		gates:   opts.Gates,
		locks:   lock.NewManager(config.LockPath(root), logger),
		journal: journal.New(config.JournalPath(root)),
		audit:   audit,
		notify:  opts.Notify,
		pid:     os.Getpid(),
	}, nil
}

// Run executes the full loop. It returns nil on success, *lock.HeldError
// when another run holds the lock, *RunError when a phase fails, and a
// plain error for environmental failures. Cleanup is idempotent and runs
// on every path, including context cancellation from a signal.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.locks.Acquire(l.pid, "run", nil); err != nil {
		if closeErr := l.audit.Close(); closeErr != nil {
			l.logger.Printf("[WARN] audit close failed error=%v", closeErr)
		}
		return err
	}

	cleanup := sync.OnceFunc(func() {
		l.locks.Release()
		if err := l.audit.Close(); err != nil {
			l.logger.Printf("[WARN] audit close failed error=%v", err)
		}
	})
	defer cleanup()

	snap, err := l.journal.Begin("run")
	if err != nil {
		return fmt.Errorf("start journal: %w", err)
	}
	l.event("run_started", map[string]any{"run_id": snap.RunID, "project": l.cfg.Project.Name})

	fmt.Fprintln(l.out, render.Banner(l.cfg.Project.Name,
		fmt.Sprintf("up to %d iterations", l.cfg.Loop.MaxIterations)))

	runErr := l.run(ctx, snap)

	final := journal.StateSucceeded
	if runErr != nil {
		final = journal.StateFailed
	}
	if err := l.journal.Update(snap, func(s *journal.Snapshot) {
		s.State = final
		if runErr != nil {
			s.LastFailure = runErr.Error()
		}
	}); err != nil {
		l.logger.Printf("[WARN] journal update failed error=%v", err)
	}

	if runErr != nil {
		l.event("run_failed", map[string]any{"run_id": snap.RunID, "reason": runErr.Error()})
		l.notifyf("overture: run failed", runErr.Error())
	} else {
		l.event("run_succeeded", map[string]any{"run_id": snap.RunID})
		l.notifyf("overture: run succeeded", l.cfg.Project.Name)
	}

	cleanup()
	return runErr
}

// run is the phase sequence proper; the caller owns lock and journal
// bookkeeping around it.
func (l *Loop) run(ctx context.Context, snap *journal.Snapshot) error {
	doc, err := progress.ParseFile(config.ProgressPath(l.root))
	if err != nil {
		return fmt.Errorf("parse progress: %w", err)
	}

	if doc.Stats().Total == 0 {
		if err := l.planningPhases(ctx, snap); err != nil {
			return err
		}
		doc, err = progress.ParseFile(config.ProgressPath(l.root))
		if err != nil {
			return fmt.Errorf("parse progress: %w", err)
		}
		if doc.Stats().Total == 0 {
			return &RunError{Phase: phaseTasks, Reason: "agent produced no task table"}
		}
	}

	for iteration := 1; iteration <= l.cfg.Loop.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return &RunError{Phase: phaseImplement, Reason: "run interrupted"}
		}

		task := doc.NextPending()
		if task == nil {
			break
		}

		if err := l.journal.Update(snap, func(s *journal.Snapshot) {
			s.Iteration = iteration
			s.TaskID = task.ID
			s.Phase = phaseImplement
		}); err != nil {
			l.logger.Printf("[WARN] journal update failed error=%v", err)
		}

		if err := l.iterate(ctx, snap, iteration, *task); err != nil {
			return err
		}

		doc, err = progress.ParseFile(config.ProgressPath(l.root))
		if err != nil {
			return fmt.Errorf("parse progress: %w", err)
		}
		fmt.Fprintln(l.out, render.ProgressBar(doc.Stats(), 30))
	}

	if remaining := doc.NextPending(); remaining != nil {
		return &RunError{
			Phase:  phaseImplement,
			Reason: fmt.Sprintf("max iterations (%d) reached with task %s still pending", l.cfg.Loop.MaxIterations, remaining.ID),
		}
	}

	if !l.cfg.Loop.SkipReview {
		if err := l.reviewPhase(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs one implement + gate + fix cycle for a single task.
func (l *Loop) iterate(ctx context.Context, snap *journal.Snapshot, iteration int, task progress.Task) error {
	fmt.Fprintln(l.out, render.PhaseLine(iteration, phaseImplement, "task "+task.ID+" "+task.Title))
	if err := l.implementPhase(ctx, snap, task); err != nil {
		return err
	}

	verdict := l.runGates(ctx, snap)
	for attempt := 1; !verdict.Succeeded && attempt <= l.cfg.Loop.MaxFixAttempts; attempt++ {
		fmt.Fprintln(l.out, render.Warn(fmt.Sprintf("fix attempt %d/%d", attempt, l.cfg.Loop.MaxFixAttempts)))
		if err := l.fixPhase(ctx, snap, task, verdict.FirstFailure); err != nil {
			return err
		}
		verdict = l.runGates(ctx, snap)
	}
	if !verdict.Succeeded {
		return &RunError{
			Phase:  phaseGate,
			Reason: fmt.Sprintf("gates still failing after %d fix attempts: %s", l.cfg.Loop.MaxFixAttempts, verdict.FirstFailure),
		}
	}

	// The agent is asked to mark the task itself, but the loop cannot
	// depend on that: an unmarked task would repeat forever.
	if err := progress.MarkTaskState(config.ProgressPath(l.root), task.ID, progress.StateCompleted); err != nil {
		return fmt.Errorf("mark task %s completed: %w", task.ID, err)
	}
	l.event("task_completed", map[string]any{"run_id": snap.RunID, "task_id": task.ID})
	return nil
}

// runGates executes the configured gate commands and reports the verdict.
func (l *Loop) runGates(ctx context.Context, snap *journal.Snapshot) gate.Result {
	timeout := time.Duration(l.cfg.Gates.CommandTimeoutSec) * time.Second
	result := l.gates.Run(ctx, l.cfg.Gates.Commands, gate.Strategy(l.cfg.Gates.Strategy), timeout)

	detail := fmt.Sprintf("%d commands in %s", len(result.Commands), result.Duration.Round(time.Millisecond))
	fmt.Fprintln(l.out, render.GateVerdict(result.Succeeded, detail))

	if result.Succeeded {
		l.event("gate_passed", map[string]any{"run_id": snap.RunID, "commands": len(result.Commands)})
	} else {
		l.event("gate_failed", map[string]any{"run_id": snap.RunID, "first_failure": result.FirstFailure})
	}
	return result
}

func (l *Loop) event(name string, details map[string]any) {
	if err := l.audit.Log(name, details); err != nil {
		l.logger.Printf("[WARN] audit write failed event=%s error=%v", name, err)
	}
}

func (l *Loop) notifyf(title, message string) {
	if !l.cfg.Notify.Enabled {
		return
	}
	if err := l.notify(title, message); err != nil {
		l.logger.Printf("[DEBUG] notification failed error=%v", err)
	}
}
