package gatehouse

import "time"

// Config holds configuration for the gatehouse engine.
type Config struct {
	// ResolveTimeout bounds each resolver refresh. A slot that has not
	// settled when the timeout fires moves to Failed rather than
	// staying Pending forever. Defaults to 10s.
	ResolveTimeout time.Duration `json:"resolve_timeout,omitempty"`

	// CacheTTL is the time-to-live for cached decisions.
	// Zero means no caching.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// AuditDecisions enables an audit entry per settled decision.
	// Defaults to false; impersonation transitions are always audited.
	AuditDecisions *bool `json:"audit_decisions,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ResolveTimeout: 10 * time.Second,
	}
}

func (c Config) resolveTimeout() time.Duration {
	if c.ResolveTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ResolveTimeout
}

func (c Config) auditDecisions() bool {
	return c.AuditDecisions != nil && *c.AuditDecisions
}
