package format

import (
	"fmt"
	"math"
)

// Decimal units. Accelerator vendors label VRAM this way, so binary units
// are deliberately absent.
const (
	Byte     = 1
	KiloByte = Byte * 1000
	MegaByte = KiloByte * 1000
	GigaByte = MegaByte * 1000
	TeraByte = GigaByte * 1000
)

func HumanBytes(b int64) string {
	var value float64
	var unit string

	switch {
	case b >= TeraByte:
		value, unit = float64(b)/TeraByte, "TB"
	case b >= GigaByte:
		value, unit = float64(b)/GigaByte, "GB"
	case b >= MegaByte:
		value, unit = float64(b)/MegaByte, "MB"
	case b >= KiloByte:
		value, unit = float64(b)/KiloByte, "KB"
	default:
		return fmt.Sprintf("%d B", b)
	}

	if value >= 10 || value == math.Trunc(value) {
		return fmt.Sprintf("%.0f %s", value, unit)
	}

	return fmt.Sprintf("%.1f %s", value, unit)
}

// GB formats a decimal gigabyte quantity with two decimals. Negative values
// are kept so that an overcommitted breakdown still reads correctly.
func GB(gb float64) string {
	return fmt.Sprintf("%.2f GB", gb)
}
