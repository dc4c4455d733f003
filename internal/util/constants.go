package util

const (
	DatabaseMySQL    = "mysql"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// DefaultAttemptDurationSeconds is the countdown used when an exam has no usable duration.
const DefaultAttemptDurationSeconds = 3600

const (
	SubmitTriggerManual  = "manual"
	SubmitTriggerTimeout = "timeout"
)
