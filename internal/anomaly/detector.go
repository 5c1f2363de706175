package anomaly

import (
	"fmt"
)

// Detector flags implausible meter readings against a customer's history.
// Flagged readings are logged, never rejected; the confirmation step is where
// a human corrects the value.
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// Check compares a recognized reading against prior values for the same
// customer and type, newest first. Meters are cumulative, so a value below
// the most recent prior reading is always suspect; a sudden jump above the
// rolling average needs enough history first.
func (d *Detector) Check(value int, priorValues []int) (bool, string) {
	if len(priorValues) == 0 {
		return false, ""
	}

	if value < priorValues[0] {
		return true, fmt.Sprintf("reading %d is below the previous reading %d", value, priorValues[0])
	}

	if len(priorValues) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := 0
	for _, v := range priorValues {
		sum += v
	}
	average := float64(sum) / float64(len(priorValues))

	if average > 0 && float64(value) > d.spikeThreshold*average {
		return true, fmt.Sprintf("reading %d exceeds %.1fx the rolling average %.2f",
			value, d.spikeThreshold, average)
	}

	return false, ""
}
