// Package runner owns the engine goroutine. Intents from transports stage in
// a ring-buffer command queue; a fixed ticker drains them, advances the
// engine's expiry sweep, and drives the overlay refresh and snapshot save
// cadences. Request/response paths go through Call, which runs on the same
// goroutine, so the manager itself never needs a lock.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raymoo/monoidal-effects/effects"
	"github.com/raymoo/monoidal-effects/logging"
)

const (
	// EventCommandDropped is published when the queue rejects a command.
	EventCommandDropped logging.EventType = "runner.command_dropped"
	// EventCommandFailed is published when a drained command errors.
	EventCommandFailed logging.EventType = "runner.command_failed"
)

// Config tunes the command queue and tick cadences.
type Config struct {
	// TickRate is ticks per second; defaults to 10.
	TickRate int
	// CommandCapacity bounds the staged command queue.
	CommandCapacity int
	// PerActorLimit throttles staged commands per issuing actor; 0 disables.
	PerActorLimit int
	// WarningStep publishes a queue warning every time the backlog crosses a
	// multiple of this length; 0 disables.
	WarningStep int
	// HUDRefreshEvery refreshes the overlay every N ticks; 0 disables.
	HUDRefreshEvery int
	// SaveInterval triggers interval snapshots; 0 saves only on shutdown.
	SaveInterval time.Duration
}

// Roster is the host-side join/leave surface the loop drives.
type Roster interface {
	Join(actorID string, now time.Time) bool
	Leave(actorID string) bool
}

// Overlay is the display surface refreshed on the loop's cadence.
type Overlay interface {
	Refresh(mgr *effects.Manager, now time.Time)
	RemoveActor(actorID string)
}

// Store persists snapshots on the loop's cadence.
type Store interface {
	Save(ctx context.Context, mgr *effects.Manager, reason string, now time.Time) error
}

// Deps carries the collaborators the loop drives.
type Deps struct {
	Roster    Roster
	Overlay   Overlay
	Store     Store
	Publisher logging.Publisher
	Clock     logging.Clock
}

// Hooks let the server observe loop activity without reaching into it.
type Hooks struct {
	AfterTick      func(TickResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// TickResult summarises one executed tick.
type TickResult struct {
	Tick     uint64
	Now      time.Time
	Commands int
	Expired  int
}

type call struct {
	fn   func(*effects.Manager) error
	done chan error
}

// Loop serialises every engine mutation through one goroutine.
type Loop struct {
	mgr    *effects.Manager
	deps   Deps
	hooks  Hooks
	config Config

	buffer    *CommandBuffer
	calls     chan call
	clock     logging.Clock
	publisher logging.Publisher

	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64

	lastSave time.Time
}

// NewLoop wraps the manager with a command queue and tick loop.
func NewLoop(mgr *effects.Manager, cfg Config, deps Deps, hooks Hooks) *Loop {
	if mgr == nil {
		return nil
	}
	clock := deps.Clock
	if clock == nil {
		clock = logging.SystemClock()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = 256
	}
	return &Loop{
		mgr:           mgr,
		deps:          deps,
		hooks:         hooks,
		config:        cfg,
		buffer:        NewCommandBuffer(cfg.CommandCapacity),
		calls:         make(chan call),
		clock:         clock,
		publisher:     publisher,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
	}
}

// Enqueue stages a command, enforcing per-actor throttling and capacity
// limits.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	if l == nil {
		return false, RejectQueueFull
	}
	reason := ""
	var dropCount uint64
	l.queueMu.Lock()
	if l.config.PerActorLimit > 0 && cmd.ActorID != "" {
		count := l.perActorCount[cmd.ActorID]
		if count >= l.config.PerActorLimit {
			reason = RejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else {
			l.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = RejectQueueFull
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else if l.config.WarningStep > 0 {
			length := l.buffer.Len()
			if length >= l.config.WarningStep && length%l.config.WarningStep == 0 {
				l.queueMu.Unlock()
				if l.hooks.OnQueueWarning != nil {
					l.hooks.OnQueueWarning(length)
				}
				return true, ""
			}
		}
	}
	l.queueMu.Unlock()
	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	return true, ""
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	if l == nil {
		return 0
	}
	return l.buffer.Len()
}

// Call runs fn on the loop goroutine and waits for it. Transports use it for
// request/response paths that need a synchronous answer from the manager.
func (l *Loop) Call(ctx context.Context, fn func(*effects.Manager) error) error {
	if l == nil {
		return fmt.Errorf("runner: nil loop")
	}
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case l.calls <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Advance executes a single tick: drain staged commands, sweep expiry, run
// the overlay and save cadences. Tests drive it directly; Run drives it from
// the ticker.
func (l *Loop) Advance(now time.Time) TickResult {
	if l == nil {
		return TickResult{}
	}
	commands := l.drainCommands()
	for _, cmd := range commands {
		l.execute(cmd, now)
	}
	expired := l.mgr.AdvanceTick(now)
	tick := l.mgr.CurrentTick()

	if l.deps.Overlay != nil && l.config.HUDRefreshEvery > 0 && tick%uint64(l.config.HUDRefreshEvery) == 0 {
		l.deps.Overlay.Refresh(l.mgr, now)
	}
	if l.config.SaveInterval > 0 && !now.Before(l.lastSave.Add(l.config.SaveInterval)) {
		l.save("interval", now)
	}

	result := TickResult{Tick: tick, Now: now, Commands: len(commands), Expired: expired}
	if l.hooks.AfterTick != nil {
		l.hooks.AfterTick(result)
	}
	return result
}

// Run drives the fixed-timestep loop until the stop channel closes, then
// takes a final shutdown snapshot.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	tickRate := l.config.TickRate
	if tickRate <= 0 {
		tickRate = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	l.lastSave = l.clock.Now()
	for {
		select {
		case <-stop:
			l.save("shutdown", l.clock.Now())
			return
		case <-ticker.C:
			l.Advance(l.clock.Now())
		case c := <-l.calls:
			c.done <- c.fn(l.mgr)
		}
	}
}

func (l *Loop) execute(cmd Command, now time.Time) {
	switch cmd.Type {
	case CommandApply:
		if cmd.Apply == nil {
			return
		}
		_, err := l.mgr.Apply(effects.Application{
			TypeName:  cmd.Apply.TypeName,
			Actors:    cmd.Apply.Actors,
			Duration:  cmd.Apply.Duration,
			Permanent: cmd.Apply.Permanent,
			Values:    cmd.Apply.Values,
		}, now)
		if err != nil {
			l.commandFailed(cmd, err)
		}
	case CommandCancel:
		if cmd.Cancel == nil {
			return
		}
		l.mgr.Cancel(cmd.Cancel.EffectID)
	case CommandCancelBy:
		if cmd.CancelBy == nil {
			return
		}
		l.mgr.CancelBy(cmd.CancelBy.Kind, cmd.CancelBy.Key, cmd.CancelBy.Actor)
	case CommandJoin:
		if l.deps.Roster != nil {
			l.deps.Roster.Join(cmd.ActorID, now)
		}
		l.mgr.Defrost(cmd.ActorID, now)
	case CommandLeave:
		l.mgr.Hibernate(cmd.ActorID, now)
		if l.deps.Roster != nil {
			l.deps.Roster.Leave(cmd.ActorID)
		}
		if l.deps.Overlay != nil {
			l.deps.Overlay.RemoveActor(cmd.ActorID)
		}
	case CommandDeath:
		l.mgr.HandleDeath(cmd.ActorID)
	case CommandSave:
		l.save("manual", now)
	}
}

func (l *Loop) save(reason string, now time.Time) {
	if l.deps.Store == nil {
		return
	}
	// The saver publishes its own failure events.
	_ = l.deps.Store.Save(context.Background(), l.mgr, reason, now)
	l.lastSave = now
}

func (l *Loop) drainCommands() []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	commands := l.buffer.Drain()
	if len(l.perActorCount) > 0 {
		l.perActorCount = make(map[string]int)
	}
	return commands
}

func (l *Loop) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := l.dropCounts[actorID] + 1
	l.dropCounts[actorID] = count
	return count
}

// reportDrop logs drops at power-of-two counts so a flooding actor cannot
// flood the log as well.
func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	if count > 0 && count&(count-1) != 0 {
		return
	}
	l.publisher.Publish(context.Background(), logging.Event{
		Type:     EventCommandDropped,
		Actor:    logging.ActorRef(cmd.ActorID),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload: map[string]any{
			"reason":  reason,
			"command": string(cmd.Type),
			"dropped": count,
		},
	})
}

func (l *Loop) commandFailed(cmd Command, err error) {
	l.publisher.Publish(context.Background(), logging.Event{
		Type:     EventCommandFailed,
		Tick:     l.mgr.CurrentTick(),
		Actor:    logging.ActorRef(cmd.ActorID),
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload: map[string]any{
			"command": string(cmd.Type),
			"error":   err.Error(),
		},
	})
}
