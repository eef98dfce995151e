// Runtime-togglable feature flags for the handful of optional ambient
// behaviors MEW has: durable journaling, query plan caching, and
// OpenTelemetry instrumentation. Unlike
// the static Config (loaded once at startup), these can flip mid-process,
// which is what the test suite needs to exercise both code paths without
// threading a fresh Config through every call.
package config

import "sync/atomic"

const (
	EnvDurableJournalEnabled = "MEW_DURABLE_JOURNAL_ENABLED"
	EnvPlanCacheEnabled      = "MEW_PLAN_CACHE_ENABLED"
	EnvTelemetryEnabled      = "MEW_TELEMETRY_ENABLED"
)

var (
	durableJournalEnabled atomic.Bool
	planCacheEnabled      atomic.Bool
	telemetryEnabled      atomic.Bool
)

func init() {
	durableJournalEnabled.Store(getEnvBool(EnvDurableJournalEnabled, false))
	planCacheEnabled.Store(getEnvBool(EnvPlanCacheEnabled, true))
	telemetryEnabled.Store(getEnvBool(EnvTelemetryEnabled, true))
}

func IsDurableJournalEnabled() bool { return durableJournalEnabled.Load() }
func SetDurableJournalEnabled(v bool) { durableJournalEnabled.Store(v) }

func IsPlanCacheEnabled() bool   { return planCacheEnabled.Load() }
func SetPlanCacheEnabled(v bool) { planCacheEnabled.Store(v) }

func IsTelemetryEnabled() bool   { return telemetryEnabled.Load() }
func SetTelemetryEnabled(v bool) { telemetryEnabled.Store(v) }

// WithPlanCacheDisabled temporarily disables the plan cache, returning a
// restore function; used by tests that need to force re-planning.
func WithPlanCacheDisabled() func() {
	prev := planCacheEnabled.Load()
	planCacheEnabled.Store(false)
	return func() { planCacheEnabled.Store(prev) }
}
