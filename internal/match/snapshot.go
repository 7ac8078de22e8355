package match

import "hunt-arena/server/internal/geom"

// UnitSnapshot is the observable state of one unit.
type UnitSnapshot struct {
	ID        string      `json:"id"`
	Team      string      `json:"team"`
	Type      string      `json:"type"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Facing    float64     `json:"facing"`
	Radius    float64     `json:"radius,omitempty"`
	Health    float64     `json:"health"`
	Structure bool        `json:"structure,omitempty"`
	Order     string      `json:"order,omitempty"`
	Queued    int         `json:"queued,omitempty"`
	Heading   *geom.Point `json:"heading,omitempty"`
}

// Snapshot is an immutable copy of the match state after a tick.
type Snapshot struct {
	MatchID string         `json:"matchId"`
	Tick    uint64         `json:"tick"`
	Time    float64        `json:"time"`
	Units   []UnitSnapshot `json:"units"`
}

// Snapshot returns the state published after the latest tick.
func (mt *Match) Snapshot() Snapshot {
	mt.snapMu.RLock()
	defer mt.snapMu.RUnlock()
	return mt.snapshot
}

func (mt *Match) publishSnapshot() Snapshot {
	units := mt.Units()
	snap := Snapshot{
		MatchID: mt.id,
		Tick:    mt.tick,
		Time:    mt.now,
		Units:   make([]UnitSnapshot, 0, len(units)),
	}
	for _, u := range units {
		us := UnitSnapshot{
			ID:        u.ID,
			Team:      u.Team,
			Type:      u.Type,
			X:         u.Pos.X,
			Y:         u.Pos.Y,
			Facing:    u.Facing,
			Radius:    u.Radius(),
			Health:    u.Health,
			Structure: u.IsStructure(),
			Queued:    len(u.Queue),
		}
		if u.Order != nil {
			us.Order = u.Order.Name()
		}
		if next, ok := u.Heading(); ok {
			us.Heading = &next
		}
		snap.Units = append(snap.Units, us)
	}
	mt.snapMu.Lock()
	mt.snapshot = snap
	mt.snapMu.Unlock()
	return snap
}
