package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector tracks message flow through a session
type StatsCollector struct {
	StartTime          time.Time
	MessagesReceived   uint64
	MessagesDispatched uint64
	Deliveries         uint64
	DecodeFailures     uint64
	HandlerErrors      uint64
	lastUpdate         atomic.Int64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	s := &StatsCollector{
		StartTime: time.Now(),
	}
	s.touch()
	return s
}

func (s *StatsCollector) touch() {
	s.lastUpdate.Store(time.Now().UnixNano())
}

func (s *StatsCollector) IncReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
	s.touch()
}

func (s *StatsCollector) IncDispatched() {
	atomic.AddUint64(&s.MessagesDispatched, 1)
	s.touch()
}

func (s *StatsCollector) AddDeliveries(n int) {
	atomic.AddUint64(&s.Deliveries, uint64(n))
	s.touch()
}

func (s *StatsCollector) IncDecodeFailures() {
	atomic.AddUint64(&s.DecodeFailures, 1)
	s.touch()
}

func (s *StatsCollector) IncHandlerErrors() {
	atomic.AddUint64(&s.HandlerErrors, 1)
	s.touch()
}

// LastUpdate returns the time of the most recent change
func (s *StatsCollector) LastUpdate() time.Time {
	return time.Unix(0, s.lastUpdate.Load())
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":              uptime.String(),
		"messages_received":   atomic.LoadUint64(&s.MessagesReceived),
		"messages_dispatched": atomic.LoadUint64(&s.MessagesDispatched),
		"deliveries":          atomic.LoadUint64(&s.Deliveries),
		"decode_failures":     atomic.LoadUint64(&s.DecodeFailures),
		"handler_errors":      atomic.LoadUint64(&s.HandlerErrors),
		"last_update":         s.LastUpdate(),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates the dispatch rate in messages per second
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesDispatched)) / uptime
}
