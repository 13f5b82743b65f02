// Package pipeline orchestrates ingestion of captured requests. The ordering
// is load-bearing: existence check, rate-limit admission, size validation,
// durable append, then broadcast. Any failure before the append leaves no
// trace in storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/limiter"
	"github.com/hookbin/hookbin/internal/store"
)

var (
	ErrThrottled       = errors.New("rate limit exceeded")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Limits caps the size of a single captured request.
type Limits struct {
	MaxBodySize    int
	MaxHeadersSize int
}

type Pipeline struct {
	store   store.Store
	limiter limiter.SourceLimiter
	hub     *hub.Hub
	limits  Limits
	log     *zap.Logger
}

func New(s store.Store, l limiter.SourceLimiter, h *hub.Hub, limits Limits, log *zap.Logger) *Pipeline {
	return &Pipeline{store: s, limiter: l, hub: h, limits: limits, log: log}
}

// Ingest runs one captured request through the pipeline and returns the
// persisted form, with sequence and timestamp assigned by the store. The same
// value is what subscribers receive, so live and persisted views never
// disagree.
func (p *Pipeline) Ingest(ctx context.Context, binID, source, method string, headers []store.Header, body []byte) (*store.CapturedRequest, error) {
	ok, err := p.store.Exists(ctx, binID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrBinNotFound
	}

	admitted, err := p.limiter.Admit(ctx, source)
	if err != nil {
		return nil, err
	}
	if !admitted {
		p.log.Debug("request throttled", zap.String("bin_id", binID), zap.String("source", source))
		return nil, ErrThrottled
	}

	if len(body) > p.limits.MaxBodySize {
		return nil, fmt.Errorf("%w: body is %d bytes", ErrPayloadTooLarge, len(body))
	}
	if size := headersSize(headers); size > p.limits.MaxHeadersSize {
		return nil, fmt.Errorf("%w: headers are %d bytes", ErrPayloadTooLarge, size)
	}

	req := &store.CapturedRequest{
		BinID:   binID,
		Method:  method,
		Headers: headers,
		Body:    body,
	}
	if err := p.store.Append(ctx, req); err != nil {
		return nil, err
	}

	p.hub.Publish(binID, req)

	p.log.Info("request captured",
		zap.String("bin_id", binID),
		zap.String("source", source),
		zap.String("method", method),
		zap.Int64("seq", req.Seq),
	)
	return req, nil
}

// Subscribe attaches a live observer to a bin, failing if the bin does not
// exist.
func (p *Pipeline) Subscribe(ctx context.Context, binID string) (*hub.Subscription, error) {
	ok, err := p.store.Exists(ctx, binID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrBinNotFound
	}
	return p.hub.Subscribe(binID), nil
}

func headersSize(headers []store.Header) int {
	size := 0
	for _, h := range headers {
		size += len(h.Name) + len(h.Value)
	}
	return size
}
