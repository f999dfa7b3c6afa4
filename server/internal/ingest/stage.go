package ingest

// Stage is a step of the ingestion pipeline. It labels log lines and the
// pulsewatch_ingest_total metric.
type Stage uint8

const (
	StageReceived Stage = iota + 1
	StageValidated
	StagePersisted
	StageEvaluated
	StageNotified
	StagePublished
	StageDone
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageValidated:
		return "validated"
	case StagePersisted:
		return "persisted"
	case StageEvaluated:
		return "evaluated"
	case StageNotified:
		return "notified"
	case StagePublished:
		return "published"
	case StageDone:
		return "done"
	case StageRejected:
		return "rejected"
	}
	return "unknown"
}
