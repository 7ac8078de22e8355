package orders

import (
	"fmt"
	"math"
	"testing"

	"hunt-arena/server/internal/geom"
	loggingorders "hunt-arena/server/logging/orders"
)

func TestAdvanceStopsAtLoopCap(t *testing.T) {
	h := newHarness(t, 1, openRows(4, 4)...)
	u := h.world.add(newUnit("caster", "wolves", 1.5, 1.5, Stats{Radius: 0.4}))
	for i := 0; i < 12; i++ {
		u.Issue(&Cast{OrderID: fmt.Sprintf("c%d", i)}, true)
	}

	h.step(0.05, u)

	if got := h.events.Count(loggingorders.EventLoopCapExceeded); got != 1 {
		t.Fatalf("expected one loop cap event, got %d", got)
	}
	if len(h.hooks.casts) != LoopCap {
		t.Fatalf("expected %d casts to complete, got %d", LoopCap, len(h.hooks.casts))
	}
	cast, ok := u.Order.(*Cast)
	if !ok || cast.OrderID != "c10" {
		t.Fatalf("expected c10 to stay active, got %#v", u.Order)
	}
	if len(u.Queue) != 1 {
		t.Fatalf("expected one queued order left, got %d", len(u.Queue))
	}
}

func TestTurningOutsideConeCostsBudget(t *testing.T) {
	h := newHarness(t, 2, openRows(10, 3)...)
	u := h.world.add(newUnit("u", "sheep", 5, 1.5, Stats{Radius: 0.4, Speed: 1, TurnSpeed: math.Pi}))
	u.Issue(&Walk{Target: geom.Pt(2, 1.5)}, false)

	h.step(0.5, u)
	if u.Pos != geom.Pt(5, 1.5) {
		t.Fatalf("unit moved while turning around: %v", u.Pos)
	}
	if math.Abs(u.Facing-math.Pi/2) > 1e-9 {
		t.Fatalf("facing after first tick = %.4f, want %.4f", u.Facing, math.Pi/2)
	}

	h.step(0.5, u)
	// Turning from 90 to 60 degrees off costs 1/6 s; the rest is walked.
	wantX := 5 - (0.5 - 1.0/6)
	if math.Abs(u.Pos.X-wantX) > 1e-6 || u.Pos.Y != 1.5 {
		t.Fatalf("position after second tick = %v, want x %.4f", u.Pos, wantX)
	}
	if math.Abs(geom.AngleDiff(u.Facing, math.Pi)) > 1e-9 {
		t.Fatalf("expected unit to face west, got %.4f", u.Facing)
	}
}

func TestWalkArrivesThenStartsQueuedOrder(t *testing.T) {
	h := newHarness(t, 2, openRows(10, 3)...)
	u := h.world.add(newUnit("u", "sheep", 1, 1.5, Stats{Radius: 0.4, Speed: 2}))
	u.Issue(&Walk{Target: geom.Pt(7.5, 1.5)}, false)
	u.Issue(&Hold{}, true)

	for i := 0; i < 60; i++ {
		h.step(0.1, u)
	}
	if geom.Distance(u.Pos, geom.Pt(7.5, 1.5)) > 1e-9 {
		t.Fatalf("expected unit at the target, got %v", u.Pos)
	}
	if _, ok := u.Order.(*Hold); !ok {
		t.Fatalf("expected queued hold to be active, got %#v", u.Order)
	}
	if p, ok := h.world.tree.Position("u"); !ok || p != u.Pos {
		t.Fatalf("spatial index not kept in step: %v", p)
	}
}

func TestHoldConsumesBudget(t *testing.T) {
	h := newHarness(t, 1, openRows(3, 3)...)
	u := h.world.add(newUnit("u", "sheep", 1.5, 1.5, Stats{Radius: 0.4, Speed: 2}))
	u.Issue(&Hold{}, false)
	if rest := h.engine.Advance(u, 0.2); rest != 0 {
		t.Fatalf("expected hold to consume the budget, %.3f left", rest)
	}
	if u.Pos != geom.Pt(1.5, 1.5) {
		t.Fatalf("hold moved the unit to %v", u.Pos)
	}
}

func TestCastCompletesAfterRemaining(t *testing.T) {
	h := newHarness(t, 1, openRows(3, 3)...)
	u := h.world.add(newUnit("u", "wolves", 1.5, 1.5, Stats{Radius: 0.4}))
	u.Issue(&Cast{OrderID: "howl", Remaining: 0.12}, false)

	for i := 0; i < 2; i++ {
		if rest := h.engine.Advance(u, 0.05); rest != 0 {
			t.Fatalf("tick %d: expected budget to be spent, %.3f left", i, rest)
		}
	}
	if len(h.hooks.casts) != 0 {
		t.Fatalf("cast completed early")
	}
	rest := h.engine.Advance(u, 0.05)
	if math.Abs(rest-0.03) > 1e-9 {
		t.Fatalf("expected 0.03 s left after the cast, got %.4f", rest)
	}
	if len(h.hooks.casts) != 1 || h.hooks.casts[0] != "howl" || u.Order != nil {
		t.Fatalf("cast not completed: casts=%v order=%#v", h.hooks.casts, u.Order)
	}
}

func TestBuildWalksIntoRangeAndCommits(t *testing.T) {
	h := newHarness(t, 2, openRows(10, 3)...)
	u := h.world.add(newUnit("builder", "sheep", 1, 1.5, Stats{Radius: 0.4, Speed: 2, BuildRange: 1}))
	u.Issue(&Build{UnitType: "pen", X: 6, Y: 1.5}, false)

	for i := 0; i < 60 && u.Order != nil; i++ {
		h.step(0.1, u)
	}
	if len(h.hooks.builds) != 1 || h.hooks.builds[0] != geom.Pt(6, 1.5) {
		t.Fatalf("unexpected builds %v", h.hooks.builds)
	}
	if d := geom.Distance(u.Pos, geom.Pt(6, 1.5)); d > 1.4+1e-9 {
		t.Fatalf("built from %.3f away, want within 1.4", d)
	}
	if u.Order != nil {
		t.Fatalf("build order still active")
	}
}

func TestBuildRejectedPlacementCancels(t *testing.T) {
	h := newHarness(t, 2, openRows(6, 3)...)
	h.hooks.rejectBuild = true
	u := h.world.add(newUnit("builder", "sheep", 1, 1.5, Stats{Radius: 0.4, Speed: 2, BuildRange: 1}))
	u.Issue(&Build{UnitType: "pen", X: 2, Y: 1.5}, false)

	h.step(0.1, u)
	if u.Order != nil {
		t.Fatalf("expected rejected build to be dropped")
	}
	if got := h.events.Count(loggingorders.EventOrderCancelled); got != 1 {
		t.Fatalf("expected one cancellation, got %d", got)
	}
}

func attackerStats() Stats {
	return Stats{
		Radius:         0.4,
		Speed:          3,
		AttackRange:    0.5,
		AttackDamage:   1,
		Backswing:      0.3,
		DamagePoint:    0.1,
		AttackCooldown: 1,
		RangeTolerance: 0.5,
		AcquireRange:   3,
	}
}

func TestAttackLandsDamageAndHonoursCooldown(t *testing.T) {
	h := newHarness(t, 2, openRows(8, 3)...)
	wolf := h.world.add(newUnit("wolf", "wolves", 2, 1.5, attackerStats()))
	sheep := h.world.add(newUnit("sheep", "sheep", 3.2, 1.5, Stats{Radius: 0.4}))
	wolf.Issue(&Attack{TargetID: sheep.ID}, false)

	h.step(0.05, wolf, sheep)
	h.step(0.05, wolf, sheep)
	if len(h.hooks.hits) != 0 {
		t.Fatalf("damage landed before the damage point")
	}
	h.step(0.05, wolf, sheep)
	if len(h.hooks.hits) != 1 {
		t.Fatalf("expected the first hit at the damage point, got %d", len(h.hooks.hits))
	}
	if math.Abs(wolf.Cooldown-0.95) > 1e-9 {
		t.Fatalf("cooldown after hit = %.4f, want 0.95", wolf.Cooldown)
	}

	for i := 0; i < 37; i++ {
		h.step(0.05, wolf, sheep)
	}
	if len(h.hooks.hits) != 2 {
		t.Fatalf("expected two hits in two seconds, got %d", len(h.hooks.hits))
	}
	if wolf.Pos != geom.Pt(2, 1.5) {
		t.Fatalf("attacker in range should not move, got %v", wolf.Pos)
	}
}

func TestAttackSwingLostWhenTargetEscapes(t *testing.T) {
	h := newHarness(t, 2, openRows(10, 3)...)
	wolf := h.world.add(newUnit("wolf", "wolves", 2, 1.5, attackerStats()))
	sheep := h.world.add(newUnit("sheep", "sheep", 3.2, 1.5, Stats{Radius: 0.4}))
	attack := &Attack{TargetID: sheep.ID}
	wolf.Issue(attack, false)

	h.step(0.05, wolf)
	if attack.Swing == nil {
		t.Fatalf("expected a swing to start in range")
	}
	h.world.Move(sheep, geom.Pt(6, 1.5))
	h.step(0.05, wolf)

	if len(h.hooks.hits) != 0 {
		t.Fatalf("damage landed on an escaped target")
	}
	if attack.Swing != nil {
		t.Fatalf("expected the swing to be lost")
	}
	if wolf.Pos == geom.Pt(2, 1.5) {
		t.Fatalf("expected the attacker to give chase")
	}
}

func TestAttackOnLostTarget(t *testing.T) {
	t.Run("walks to last known position", func(t *testing.T) {
		h := newHarness(t, 2, openRows(10, 3)...)
		wolf := h.world.add(newUnit("wolf", "wolves", 1, 1.5, attackerStats()))
		sheep := h.world.add(newUnit("sheep", "sheep", 7, 1.5, Stats{Radius: 0.4}))
		wolf.Issue(&Attack{TargetID: sheep.ID}, false)

		h.step(0.05, wolf)
		sheep.Hidden = true
		h.step(0.05, wolf)

		walk, ok := wolf.Order.(*Walk)
		if !ok || walk.Target != geom.Pt(7, 1.5) || walk.TargetID != "" {
			t.Fatalf("expected walk to last known position, got %#v", wolf.Order)
		}
	})

	t.Run("drops the order when more are queued", func(t *testing.T) {
		h := newHarness(t, 2, openRows(10, 3)...)
		wolf := h.world.add(newUnit("wolf", "wolves", 1, 1.5, attackerStats()))
		sheep := h.world.add(newUnit("sheep", "sheep", 7, 1.5, Stats{Radius: 0.4}))
		wolf.Issue(&Attack{TargetID: sheep.ID}, false)
		wolf.Issue(&Hold{}, true)

		h.step(0.05, wolf)
		sheep.Dead = true
		h.step(0.05, wolf)

		if _, ok := wolf.Order.(*Hold); !ok {
			t.Fatalf("expected queued hold after losing the target, got %#v", wolf.Order)
		}
		if got := h.events.Count(loggingorders.EventOrderCancelled); got != 1 {
			t.Fatalf("expected one cancellation, got %d", got)
		}
	})
}

func TestAttackMoveAcquiresNearestEnemy(t *testing.T) {
	h := newHarness(t, 2, openRows(12, 3)...)
	wolf := h.world.add(newUnit("wolf", "wolves", 1, 1.5, attackerStats()))
	h.world.add(newUnit("packmate", "wolves", 2.5, 2.5, Stats{Radius: 0.3}))
	far := h.world.add(newUnit("far", "sheep", 3.8, 2.4, Stats{Radius: 0.3}))
	near := h.world.add(newUnit("near", "sheep", 3.5, 1.5, Stats{Radius: 0.4}))
	move := &AttackMove{Target: geom.Pt(11, 1.5)}
	wolf.Issue(move, false)

	h.step(0.05, wolf)
	if move.TargetID != near.ID {
		t.Fatalf("expected to engage %q, got %q", near.ID, move.TargetID)
	}

	near.Dead = true
	h.step(0.05, wolf)
	if move.TargetID != far.ID {
		t.Fatalf("expected to switch to %q, got %q", far.ID, move.TargetID)
	}
}

func TestHandleBlockedPathEscalatesThenGivesUp(t *testing.T) {
	h := newHarness(t, 1, "....#....")
	u := h.world.add(newUnit("u", "sheep", 3.5, 0.5, Stats{Radius: 0.4, Speed: 1}))
	walk := &Walk{Target: geom.Pt(7.5, 0.5)}
	u.Issue(walk, false)
	walk.Path = []geom.Point{geom.Pt(7.5, 0.5)}
	walk.planned = true

	if h.engine.handleBlockedPath(u, &walk.Route, walk.Target, nil, 0) {
		t.Fatalf("expected no replacement route through the wall")
	}
	if got := h.events.Count(loggingorders.EventBlockedPath); got != 2 {
		t.Fatalf("expected both escalation steps to be reported, got %d", got)
	}
	if walk.Path != nil {
		t.Fatalf("expected the stuck route to be dropped, got %v", walk.Path)
	}
}

func TestIssueStopAndQueue(t *testing.T) {
	u := newUnit("u", "sheep", 0, 0, Stats{Radius: 0.4})
	first := &Walk{Target: geom.Pt(1, 1)}
	u.Issue(first, true)
	if u.Order != first {
		t.Fatalf("queueing with no active order should activate it")
	}
	u.Issue(&Hold{}, true)
	u.Issue(&Cast{OrderID: "x"}, true)
	if len(u.Queue) != 2 {
		t.Fatalf("expected two queued orders, got %d", len(u.Queue))
	}
	replacement := &Hold{}
	u.Issue(replacement, false)
	if u.Order != replacement || len(u.Queue) != 0 {
		t.Fatalf("issuing without queue should replace everything")
	}
	u.Stop()
	if u.Order != nil || u.Queue != nil {
		t.Fatalf("stop left orders behind")
	}
}

func TestUnknownOrderPanics(t *testing.T) {
	h := newHarness(t, 1, openRows(3, 3)...)
	u := h.world.add(newUnit("u", "sheep", 1.5, 1.5, Stats{Radius: 0.4}))
	u.Order = nil
	defer func() {
		if recover() == nil {
			t.Fatalf("expected dispatch on a nil order to panic")
		}
	}()
	h.engine.dispatch(u, 0.1)
}

func TestRepathJitterIsStableAndBounded(t *testing.T) {
	for _, id := range []string{"wolf-1", "wolf-2", "sheep-17", ""} {
		j := repathJitter(id)
		if j < 0 || j >= RepathJitter {
			t.Fatalf("jitter %.3f for %q out of range", j, id)
		}
		if j != repathJitter(id) {
			t.Fatalf("jitter for %q not deterministic", id)
		}
	}
}

func TestFollowRoutesAroundFence(t *testing.T) {
	h := newHarness(t, 2, openRows(12, 8)...)
	for k := 0; k < 6; k++ {
		h.world.add(newPost(fmt.Sprintf("post-%d", k), 6, float64(k)+0.5))
	}
	wolf := h.world.add(newUnit("wolf", "wolves", 9, 2, Stats{Radius: 0.4}))
	sheep := h.world.add(newUnit("sheep", "sheep", 3, 2, Stats{Radius: 0.4, Speed: 2, FollowRange: 0.5}))
	sheep.Issue(&Walk{TargetID: wolf.ID}, false)

	reached := false
	for i := 0; i < 400; i++ {
		h.step(0.05, sheep, wolf)
		if geom.Distance(sheep.Pos, wolf.Pos) <= 1.3+1e-6 {
			reached = true
			break
		}
	}
	if !reached {
		t.Fatalf("sheep never reached the wolf, stopped at %v", sheep.Pos)
	}
	if sheep.Pos.X <= 6.5 {
		t.Fatalf("sheep did not get past the fence: %v", sheep.Pos)
	}
	if got := h.events.Count(loggingorders.EventLoopCapExceeded); got != 0 {
		t.Fatalf("unexpected loop cap events: %d", got)
	}
	if _, ok := sheep.Order.(*Walk); !ok {
		t.Fatalf("follow order should stay active, got %#v", sheep.Order)
	}
}

func TestPursuitReplansSparingly(t *testing.T) {
	h := newHarness(t, 2, openRows(40, 6)...)
	wolf := h.world.add(newUnit("wolf", "wolves", 2, 3, attackerStats()))
	sheep := h.world.add(newUnit("sheep", "sheep", 8, 3, Stats{Radius: 0.4}))
	wolf.Issue(&Attack{TargetID: sheep.ID}, false)

	ticks := 0
	for ; ticks < 300 && len(h.hooks.hits) == 0; ticks++ {
		h.world.Move(sheep, sheep.Pos.Add(geom.Pt(0.05, 0)))
		h.step(0.05, wolf)
	}
	if len(h.hooks.hits) == 0 {
		t.Fatalf("wolf never caught the sheep: wolf %v sheep %v", wolf.Pos, sheep.Pos)
	}
	repaths := h.metrics.Snapshot()[metricRepaths]
	if repaths < 1 || repaths*2 >= uint64(ticks) {
		t.Fatalf("expected occasional replans over %d ticks, got %d", ticks, repaths)
	}
}
