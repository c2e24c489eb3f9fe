package storage

// Outcome classifies the effect of a single write.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInserted
	OutcomeUpdated
	OutcomeUnchanged
	OutcomeDuplicate
)

// String returns the lowercase outcome name used in logs and metric labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}
