package orders

// Classification groups understood by TeamClassifier.
const (
	GroupEnemy     = "enemy"
	GroupAlly      = "ally"
	GroupAlive     = "alive"
	GroupStructure = "structure"
	GroupUnit      = "unit"
)

// TeamClassifier classifies by team membership and unit shape. Unknown
// groups never match.
type TeamClassifier struct{}

func (TeamClassifier) TestClassification(source, candidate *Unit, groups []string) bool {
	if source == nil || candidate == nil {
		return false
	}
	for _, group := range groups {
		var ok bool
		switch group {
		case GroupEnemy:
			ok = candidate.Team != source.Team
		case GroupAlly:
			ok = candidate.Team == source.Team
		case GroupAlive:
			ok = !candidate.Dead
		case GroupStructure:
			ok = candidate.IsStructure()
		case GroupUnit:
			ok = !candidate.IsStructure()
		}
		if !ok {
			return false
		}
	}
	return true
}
