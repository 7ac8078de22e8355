package orders

import "hunt-arena/server/internal/geom"

func (e *Engine) advanceBuild(u *Unit, b *Build, delta float64) float64 {
	site := geom.Pt(b.X, b.Y)
	reach := u.Stats.BuildRange + u.Radius()
	rest, outcome := e.follow(u, &b.Route, site, nil, reach, delta)
	switch outcome {
	case followArrived:
		if !e.hooks.Build(u, b.UnitType, site) {
			e.cancel(u, reasonPlacement)
			return rest
		}
		e.complete(u)
	case followStuck:
		e.cancel(u, reasonUnreachable)
	case followBlocked:
		e.cancel(u, reasonBlocked)
	}
	return rest
}
