// Package sprites lays out the seek-preview sheet: a single JPEG grid of
// evenly sampled thumbnails plus the WebVTT index that maps playback time to
// grid cells.
package sprites

import (
	"fmt"
	"math"
)

// Fixed cell dimensions. Players key off the xywh fragments, so these never
// change without a coordinated player update.
const (
	CellWidth  = 160
	CellHeight = 90

	SheetName = "sprite.jpg"
	VTTName   = "sprite.vtt"
)

// Grid is the sampling plan for one video.
type Grid struct {
	Interval float64 // seconds between sampled frames
	Count    int     // sampled frames
	Cols     int
	Rows     int
	Duration float64
}

// PlanGrid picks the sampling interval from the video length and shapes the
// sheet as close to square as the count allows. Longer videos sample more
// sparsely so the sheet stays a reasonable size.
func PlanGrid(duration float64) (Grid, error) {
	if duration <= 0 {
		return Grid{}, fmt.Errorf("invalid duration %gs", duration)
	}

	var interval float64
	switch {
	case duration < 600:
		interval = 5
	case duration < 3600:
		interval = 10
	default:
		interval = 20
	}

	count := int(math.Ceil(duration / interval))
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := int(math.Ceil(float64(count) / float64(cols)))

	return Grid{
		Interval: interval,
		Count:    count,
		Cols:     cols,
		Rows:     rows,
		Duration: duration,
	}, nil
}

// CellOffset returns the pixel position of sampled frame i, filled row-major.
func (g Grid) CellOffset(i int) (x, y int) {
	return (i % g.Cols) * CellWidth, (i / g.Cols) * CellHeight
}
