package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrBinNotFound     = errors.New("bin not found")
	ErrRequestNotFound = errors.New("request not found")
)

type Bin struct {
	ID           string    `json:"id"`
	LastActivity time.Time `json:"last_activity"`
}

// Header is one name/value pair as it arrived. Arrival order and duplicate
// names are preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CapturedRequest is one immutable record of a request received at a bin.
// Seq is assigned by the store at append time and defines the total order
// within a bin.
type CapturedRequest struct {
	Seq       int64     `json:"seq"`
	BinID     string    `json:"bin_id"`
	Method    string    `json:"method"`
	Headers   []Header  `json:"headers"`
	Body      []byte    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeHeaders serializes headers for storage. The stored form is opaque to
// the database; it is only ever decoded back through DecodeHeaders.
func EncodeHeaders(headers []Header) (string, error) {
	if headers == nil {
		headers = []Header{}
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeHeaders(raw string) ([]Header, error) {
	var headers []Header
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

type Store interface {
	// CreateBin allocates a fresh bin id and persists it with
	// last_activity = now.
	CreateBin(ctx context.Context) (*Bin, error)
	GetBin(ctx context.Context, id string) (*Bin, error)

	// Append stores req under req.BinID, assigning Seq and Timestamp on the
	// passed value. Inserting, evicting the oldest rows beyond the retention
	// limit, and bumping the bin's last_activity happen in one transaction.
	Append(ctx context.Context, req *CapturedRequest) error

	// List returns all retained requests for a bin, oldest first.
	List(ctx context.Context, binID string) ([]*CapturedRequest, error)
	GetRequest(ctx context.Context, binID string, seq int64) (*CapturedRequest, error)

	// DeleteExpired removes every bin whose last_activity is strictly older
	// than the cutoff, along with its requests, and returns the deleted ids.
	DeleteExpired(ctx context.Context, olderThan time.Time) ([]string, error)

	Exists(ctx context.Context, binID string) (bool, error)

	Close() error
}
