// Package limiter provides per-source-address admission control using a
// token bucket. Two backends share the same contract: an in-process Memory
// limiter for single-instance deployments, and a Redis limiter that enforces
// one global budget across replicas.
package limiter

import "context"

// Limit defines the token bucket policy: Rate tokens accrue per second,
// capped at Burst.
type Limit struct {
	Rate  float64
	Burst int
}

// SourceLimiter decides whether a single request from a source address is
// admitted. There is no blocking or queueing: a rejection is immediate and
// consumes nothing.
type SourceLimiter interface {
	Admit(ctx context.Context, source string) (bool, error)
}
