package api

import (
	"context"
	"time"
)

// HealthTimeout bounds the liveness probe.
const HealthTimeout = 2 * time.Second

// HealthStatus is the shallow liveness answer.
type HealthStatus struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"-"`
}

// Health calls GET /health. The backend does not check its database here.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	start := time.Now()
	var hs HealthStatus
	if err := c.get(ctx, "health", "/health", nil, &hs); err != nil {
		return nil, err
	}
	hs.Latency = time.Since(start)
	if hs.Status == "" {
		hs.Status = "ok"
	}
	return &hs, nil
}
