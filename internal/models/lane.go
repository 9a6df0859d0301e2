package models

// Lane is a processing priority: fast (one low-res rendition, low latency) or
// slow (multiple adaptive renditions, content-adaptive rate control). Clip is
// the parallel clip-extraction path.
type Lane string

const (
	LaneFast Lane = "fast"
	LaneSlow Lane = "slow"
	LaneClip Lane = "clip"
)

// WorkerLanes is the set of lanes a worker instance accepts, derived from
// configuration at construction. It is never persisted; routing recomputes the
// match for every event so differently configured pools can share topics.
type WorkerLanes map[Lane]bool

// NewWorkerLanes builds the lane set from configured lane names. The name
// "all" enables every lane.
func NewWorkerLanes(names []string) WorkerLanes {
	lanes := make(WorkerLanes, len(names))
	for _, name := range names {
		if name == "all" {
			return WorkerLanes{LaneFast: true, LaneSlow: true, LaneClip: true}
		}
		lanes[Lane(name)] = true
	}
	return lanes
}

// Accepts reports whether this worker processes the given lane.
func (w WorkerLanes) Accepts(lane Lane) bool {
	return w[lane]
}

// Names returns the enabled lane names in a stable order.
func (w WorkerLanes) Names() []string {
	var names []string
	for _, lane := range []Lane{LaneFast, LaneSlow, LaneClip} {
		if w[lane] {
			names = append(names, string(lane))
		}
	}
	return names
}
