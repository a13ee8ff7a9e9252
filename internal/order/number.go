package order

import (
	"fmt"
	"time"
)

// FormatNumber renders BH + YYYYMMDD + the zero padded daily sequence.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("BH%s%04d", day.Format("20060102"), seq)
}
