package db

import (
	"time"
)

// Measure types accepted by the service. The upload body is case-sensitive;
// the listing query filter is normalized to these values.
const (
	MeasureTypeWater = "WATER"
	MeasureTypeGas   = "GAS"
)

// Measure represents one utility-meter reading in the database
type Measure struct {
	UUID         string
	Value        int
	Datetime     time.Time
	Type         string
	Confirmed    bool
	CustomerCode string
	URL          string
}
