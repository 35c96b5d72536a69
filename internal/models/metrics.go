package models

import "time"

// SystemMetrics is a point-in-time view of the service counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AlertRuns                uint64    `json:"alert_runs"`
	AlertCasesCreated        uint64    `json:"alert_cases_created"`
	AlertRemindersSent       uint64    `json:"alert_reminders_sent"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
