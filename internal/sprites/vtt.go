package sprites

import (
	"fmt"
	"math"
	"strings"
)

// WriteVTT renders the WebVTT index for the grid. Each cue covers one sampling
// interval and points at its cell via a media-fragment rectangle; the final
// cue is clamped to the video duration.
func WriteVTT(g Grid) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")

	for i := 0; i < g.Count; i++ {
		start := float64(i) * g.Interval
		end := math.Min(float64(i+1)*g.Interval, g.Duration)
		x, y := g.CellOffset(i)

		b.WriteString("\n")
		fmt.Fprintf(&b, "%s --> %s\n", vttTimestamp(start), vttTimestamp(end))
		fmt.Fprintf(&b, "%s#xywh=%d,%d,%d,%d\n", SheetName, x, y, CellWidth, CellHeight)
	}

	return b.String()
}

// vttTimestamp formats seconds as HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	millis := int64(math.Round(seconds * 1000))
	h := millis / 3600000
	millis -= h * 3600000
	m := millis / 60000
	millis -= m * 60000
	s := millis / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
