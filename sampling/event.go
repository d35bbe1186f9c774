package sampling

import "fmt"

// WorkOrder describes one episode to run. Orders are values: once pushed onto
// the work queue they are never modified.
type WorkOrder struct {
	EpisodeID         int64
	InstancePath      string
	InitialBound      float64
	Seed              uint32
	ExpertProbability float64
	TimeLimit         float64
	OutputDir         string // staging directory for this order's samples
}

// EventType tags an Event.
type EventType int

const (
	EventStart EventType = iota
	EventSample
	EventDone
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventSample:
		return "sample"
	case EventDone:
		return "done"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is one entry of a worker's per-episode stream: Start, zero or more
// Sample, then Done. StagingFile is set for Sample only.
type Event struct {
	Type         EventType
	EpisodeID    int64
	InstancePath string
	Seed         uint32
	StagingFile  string
}

func newEvent(t EventType, o WorkOrder) Event {
	return Event{Type: t, EpisodeID: o.EpisodeID, InstancePath: o.InstancePath, Seed: o.Seed}
}
