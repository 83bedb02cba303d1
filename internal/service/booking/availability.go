package booking

import (
	"strconv"
	"strings"

	"github.com/healtheasy/booking-engine/internal/model"
)

// DefaultMinGapMinutes is the minimum spacing between two appointments for
// the same doctor and date.
const DefaultMinGapMinutes = 15

// IsAvailable decides whether candidateTime is bookable for the doctor on
// the given date. Cancelled and Failed appointments free their slot; a
// stored appointment with a malformed or missing time is skipped rather
// than treated as an error, to tolerate legacy records. The candidate time
// is the caller's responsibility and is assumed well-formed.
func IsAvailable(existing []model.Appointment, doctorID, date, candidateTime string, minGapMinutes int) bool {
	candidate, ok := minutesOfDay(candidateTime)
	if !ok {
		return true
	}
	for _, apt := range existing {
		if apt.DoctorID != doctorID || apt.Date != date {
			continue
		}
		if !apt.Status.BlocksSlot() {
			continue
		}
		minutes, ok := minutesOfDay(apt.Time)
		if !ok {
			continue
		}
		if abs(candidate-minutes) < minGapMinutes {
			return false
		}
	}
	return true
}

// minutesOfDay converts "HH:MM" to minutes since midnight.
func minutesOfDay(t string) (int, bool) {
	parts := strings.SplitN(t, ":", 3)
	if len(parts) < 2 {
		return 0, false
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hours*60 + minutes, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
