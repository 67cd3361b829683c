package domain

// ViolationPenalty is the flat cost of one violation, regardless of kind.
const ViolationPenalty = 10

// IntegrityScore maps a violation count to a trust percentage in [0, 100].
func IntegrityScore(violations int) int {
	score := 100 - ViolationPenalty*violations
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
