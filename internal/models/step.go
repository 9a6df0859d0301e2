package models

import "fmt"

// SlowLaneStep is one step of the slow-lane chain. The step value carried in
// a continuation event is the only progress checkpoint that crosses process
// boundaries; there is no separate job-state store. Steps execute in a fixed
// linear order.
type SlowLaneStep string

const (
	StepEncode720p      SlowLaneStep = "encode-720p"
	StepEncode1080p     SlowLaneStep = "encode-1080p"
	StepGenerateSprites SlowLaneStep = "generate-sprites"
)

// FirstSlowLaneStep is where a slow-lane job with no step field starts.
const FirstSlowLaneStep = StepEncode720p

// slowLaneOrder is the total order of the chain.
var slowLaneOrder = []SlowLaneStep{StepEncode720p, StepEncode1080p, StepGenerateSprites}

// ParseStep validates a step value from an inbound event. An empty value maps
// to the first step.
func ParseStep(s string) (SlowLaneStep, error) {
	if s == "" {
		return FirstSlowLaneStep, nil
	}
	for _, step := range slowLaneOrder {
		if string(step) == s {
			return step, nil
		}
	}
	return "", fmt.Errorf("unknown slow-lane step %q", s)
}

// Next returns the step to re-publish after this one, or ok=false when this
// step is terminal for the chain.
func (s SlowLaneStep) Next() (next SlowLaneStep, ok bool) {
	for i, step := range slowLaneOrder {
		if step == s && i+1 < len(slowLaneOrder) {
			return slowLaneOrder[i+1], true
		}
	}
	return "", false
}

// Valid reports whether s is a known step.
func (s SlowLaneStep) Valid() bool {
	for _, step := range slowLaneOrder {
		if step == s {
			return true
		}
	}
	return false
}

func (s SlowLaneStep) String() string { return string(s) }
