package algo

import "github.com/shopspring/decimal"

// Recorder receives the numeric telemetry of an algo instance.
type Recorder interface {
	Gauge(name string, value decimal.Decimal)
	Count(name string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) Gauge(string, decimal.Decimal) {}
func (NopRecorder) Count(string)                  {}
