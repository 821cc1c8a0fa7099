package codefile

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count for display: "10B", "2.5KB", "123MB".
// Values at or above 100 in a unit drop the fractional digit.
func FormatSize(sizeBytes int64) string {
	if sizeBytes == 0 {
		return "0B"
	}
	size := float64(sizeBytes)
	unit := 0
	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}
	if size == float64(int64(size)) || size >= 100 {
		return fmt.Sprintf("%d%s", int64(size), sizeUnits[unit])
	}
	return fmt.Sprintf("%.1f%s", size, sizeUnits[unit])
}
