package progress

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// byteColumnWidth keeps concurrently rendered sizes aligned
const byteColumnWidth = 8

// FormatBytes renders a byte count as a fixed-width human readable string,
// e.g. " 12.3 MB"
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return fmt.Sprintf("%*s", byteColumnWidth, humanize.Bytes(uint64(n)))
}

// FormatSpeed renders bytes per second, negative speeds are unknown
func FormatSpeed(bps float64) string {
	if bps < 0 {
		return fmt.Sprintf("%*s", byteColumnWidth+2, "N/A")
	}
	return FormatBytes(int64(bps)) + "/s"
}

// FitName shortens name to at most width runes, keeping its tail
func FitName(name string, width int) string {
	runes := []rune(name)
	if width <= 0 || len(runes) <= width {
		return fmt.Sprintf("%-*s", width, name)
	}
	if width <= 3 {
		return string(runes[len(runes)-width:])
	}
	return "..." + string(runes[len(runes)-width+3:])
}
