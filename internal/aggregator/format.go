package aggregator

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatBytes renders a byte count the way the extension UI shows it:
// 1024-based units, value rounded to two decimals.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	i := 0
	div := int64(1)
	for i < len(sizeUnits)-1 && n >= div*1024 {
		div *= 1024
		i++
	}
	v := math.Round(float64(n)/float64(div)*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
