package match

import (
	"context"
	"time"

	"hunt-arena/server/internal/orders"
	"hunt-arena/server/logging"
	loggingLifecycle "hunt-arena/server/logging/lifecycle"
	loggingSimulation "hunt-arena/server/logging/simulation"
)

const metricUnitsLive = "match.units_live"

// StepResult describes one executed tick.
type StepResult struct {
	Tick         uint64
	Now          float64
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	Commands     int
	Snapshot     Snapshot
}

// LoopHooks are optional callbacks invoked by Run.
type LoopHooks struct {
	// AfterStep runs on the loop goroutine after every tick.
	AfterStep func(StepResult)
}

// Enqueue stages a command for the next tick, enforcing per-actor
// throttling and the buffer capacity. It is safe for concurrent use.
func (mt *Match) Enqueue(cmd Command) (bool, string) {
	if _, err := cmd.Order(); err != nil {
		return false, CommandRejectInvalid
	}
	reason := ""
	var dropCount uint64
	mt.queueMu.Lock()
	if mt.cfg.PerActorLimit > 0 && cmd.ActorID != "" {
		count := mt.perActorCount[cmd.ActorID]
		if count >= mt.cfg.PerActorLimit {
			reason = CommandRejectQueueLimit
			dropCount = mt.incrementDropLocked(cmd.ActorID)
		} else {
			mt.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !mt.commands.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = mt.incrementDropLocked(cmd.ActorID)
		} else if step := mt.cfg.WarningStep; step > 0 {
			if length := mt.commands.Len(); length >= step && length%step == 0 {
				mt.logger.Printf("[match] command queue length=%d", length)
			}
		}
	}
	mt.queueMu.Unlock()
	if reason != "" {
		mt.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	return true, ""
}

// Pending reports the number of staged commands.
func (mt *Match) Pending() int {
	return mt.commands.Len()
}

func (mt *Match) drainCommands() []Command {
	mt.queueMu.Lock()
	defer mt.queueMu.Unlock()
	commands := mt.commands.Drain()
	if len(mt.perActorCount) > 0 {
		mt.perActorCount = make(map[string]int)
	}
	return commands
}

func (mt *Match) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := mt.dropCounts[actorID] + 1
	mt.dropCounts[actorID] = count
	return count
}

func (mt *Match) reportDrop(reason string, cmd Command, count uint64) {
	if count > 0 && count&(count-1) == 0 {
		mt.logger.Printf(
			"[backpressure] dropping command actor=%s type=%s reason=%s count=%d limit=%d",
			cmd.ActorID,
			cmd.Type,
			reason,
			count,
			mt.cfg.PerActorLimit,
		)
	}
}

// apply turns a staged command into an order on its actor.
func (mt *Match) apply(cmd Command) {
	reject := func(reason string) {
		loggingSimulation.CommandRejected(context.Background(), mt.publisher, mt.tick,
			logging.EntityRef{ID: cmd.ActorID, Kind: logging.EntityKindUnit},
			loggingSimulation.CommandRejectedPayload{Command: string(cmd.Type), Reason: reason}, nil)
	}
	u, ok := mt.units[cmd.ActorID]
	if !ok || u.Dead {
		reject(CommandRejectUnknownActor)
		return
	}
	if u.IsStructure() {
		reject(CommandRejectImmobile)
		return
	}
	if cmd.Type == CommandBuild && !buildable(mt.arena, cmd.UnitType) {
		reject(CommandRejectUnknownType)
		return
	}
	order, err := cmd.Order()
	if err != nil {
		reject(CommandRejectInvalid)
		return
	}
	if order == nil {
		u.Stop()
		return
	}
	u.Issue(order, cmd.Queue)
}

// Step applies staged commands and advances every unit by delta seconds.
// It must not run concurrently with itself.
func (mt *Match) Step(delta float64) StepResult {
	mt.tick++
	commands := mt.drainCommands()
	for _, cmd := range commands {
		mt.apply(cmd)
	}

	mt.engine.BeginTick(mt.tick, mt.now)
	for _, u := range mt.Units() {
		if u.Dead || (u.Order == nil && len(u.Queue) == 0) {
			continue
		}
		mt.engine.Advance(u, delta)
	}
	mt.now += delta

	if mt.metrics != nil {
		mt.metrics.Store(metricUnitsLive, uint64(len(mt.units)))
	}
	return StepResult{
		Tick:     mt.tick,
		Now:      mt.now,
		Delta:    delta,
		Commands: len(commands),
		Snapshot: mt.publishSnapshot(),
	}
}

// Issue gives a unit an order directly, bypassing the command queue. Only
// the goroutine driving Step may call it.
func (mt *Match) Issue(id string, order orders.Order, queue bool) bool {
	u, ok := mt.units[id]
	if !ok || u.Dead || u.IsStructure() {
		return false
	}
	u.Issue(order, queue)
	return true
}

// Run drives the fixed-timestep loop until ctx is done.
func (mt *Match) Run(ctx context.Context, hooks LoopHooks) {
	tickRate := mt.cfg.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds
	if mt.cfg.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(mt.cfg.CatchupMaxTicks)
	}
	budgetDuration := time.Second / time.Duration(tickRate)

	loggingLifecycle.MatchStarted(ctx, mt.publisher, logging.EntityRef{ID: mt.id, Kind: logging.EntityKindMatch},
		loggingLifecycle.MatchStartedPayload{Map: mt.cfg.Name, TickRate: tickRate, Resolution: mt.m.Resolution()}, nil)
	defer func() {
		loggingLifecycle.MatchStopped(context.Background(), mt.publisher, mt.tick,
			logging.EntityRef{ID: mt.id, Kind: logging.EntityKindMatch},
			loggingLifecycle.MatchStoppedPayload{Ticks: mt.tick}, nil)
	}()

	last := mt.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := mt.clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			start := mt.clock.Now()
			result := mt.Step(dt)
			result.Duration = mt.clock.Now().Sub(start)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			mt.checkBudget(ctx, result)

			if hooks.AfterStep != nil {
				hooks.AfterStep(result)
			}
		}
	}
}

// checkBudget publishes an overrun event for every tick slower than its
// budget, tracking how many ticks in a row overran.
func (mt *Match) checkBudget(ctx context.Context, result StepResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		mt.streak = 0
		return
	}
	mt.streak++
	loggingSimulation.TickBudgetOverrun(ctx, mt.publisher, result.Tick, loggingSimulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         mt.streak,
	}, nil)
}
