package config

import "time"

// Postgres pool. Pod commits hold row locks briefly, so a small pool is enough.
const (
	DBMaxOpenConns    = 20
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
	DBPingTimeout     = 5 * time.Second
)

const RedisPingTimeout = 3 * time.Second

// HTTP server. WriteTimeout stays 0 because /api/events streams.
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// SchedulerTickTimeout bounds one assembly pass or timeout sweep.
const SchedulerTickTimeout = 20 * time.Second

// DefaultRateLimitPerMin applies when POD_ACTION_LIMIT_PER_MINUTE is unset.
const DefaultRateLimitPerMin = 30
