// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// Counters.
	LedgerCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_credits_total",
			Help: "Total number of ledger credit operations",
		},
		[]string{"source"},
	)

	LedgerCoinsCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_coins_credited_total",
			Help: "Total coins credited across all users",
		},
	)

	MissionsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missions_generated_total",
			Help: "Total number of daily missions generated",
		},
		[]string{"type"},
	)

	MissionClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mission_claims_total",
			Help: "Total number of mission claim attempts",
		},
		[]string{"status"},
	)

	DrillsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drills_started_total",
			Help: "Total number of drills started",
		},
		[]string{"type"},
	)

	DrillClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drill_claims_total",
			Help: "Total number of drill reward claim attempts",
		},
		[]string{"status"},
	)

	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_unlocked_total",
			Help: "Total number of achievements unlocked",
		},
		[]string{"achievement"},
	)

	// Gauges.
	PendingCreditsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_credits_queued",
			Help: "Current number of queued pending credits awaiting retry",
		},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last scheduler job run",
		},
		[]string{"job"},
	)

	// Histograms.
	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduler jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 8), // 10ms to ~22s
		},
		[]string{"job"},
	)
)

// RecordCredit records a completed ledger credit.
func RecordCredit(source string, coins int64) {
	LedgerCreditsTotal.WithLabelValues(source).Inc()
	LedgerCoinsCreditedTotal.Add(float64(coins))
}

// RecordMissionGenerated records one generated mission.
func RecordMissionGenerated(missionType string) {
	MissionsGeneratedTotal.WithLabelValues(missionType).Inc()
}

// RecordMissionClaim records a mission claim attempt outcome.
func RecordMissionClaim(status string) {
	MissionClaimsTotal.WithLabelValues(status).Inc()
}

// RecordDrillStarted records a started drill.
func RecordDrillStarted(drillType string) {
	DrillsStartedTotal.WithLabelValues(drillType).Inc()
}

// RecordDrillClaim records a drill claim attempt outcome.
func RecordDrillClaim(status string) {
	DrillClaimsTotal.WithLabelValues(status).Inc()
}

// RecordAchievementUnlocked records an achievement unlock.
func RecordAchievementUnlocked(achievementID string) {
	AchievementsUnlockedTotal.WithLabelValues(achievementID).Inc()
}

// SetPendingCredits updates the pending credit queue depth gauge.
func SetPendingCredits(count int64) {
	PendingCreditsQueued.Set(float64(count))
}

// ObserveSchedulerJob records a completed scheduler job run.
func ObserveSchedulerJob(job string, duration time.Duration) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(duration.Seconds())
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}
