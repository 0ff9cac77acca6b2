package model

import "time"

type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

func (h HealthStatus) Valid() bool {
	switch h {
	case HealthUnknown, HealthHealthy, HealthDegraded, HealthUnhealthy:
		return true
	}
	return false
}

// AccountRecord is one managed identity. Alias and LastUsed serialize as
// null when unset so every document carries the full field set.
type AccountRecord struct {
	Email        string       `json:"email"`
	UUID         string       `json:"uuid"`
	Added        time.Time    `json:"added"`
	Alias        *string      `json:"alias"`
	LastUsed     *time.Time   `json:"lastUsed"`
	UsageCount   int          `json:"usageCount"`
	HealthStatus HealthStatus `json:"healthStatus"`
}

// SwitchEvent records one completed switch. From is 0 when the previous
// live identity was unknown.
type SwitchEvent struct {
	From      int       `json:"from"`
	To        int       `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}
