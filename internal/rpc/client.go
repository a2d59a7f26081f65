// Package rpc adapts the Soroban JSON-RPC getEvents stream into bounded,
// resumable batches for the ingestor.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable marks transient transport failures (network errors,
	// timeouts, server-side soft errors). Callers retry with backoff.
	ErrUnavailable = errors.New("rpc unavailable")

	// ErrInvalidCursor marks a resume position the upstream rejected. The
	// stored bookmark no longer falls inside the server's retention window;
	// retrying cannot help and an operator must re-seed.
	ErrInvalidCursor = errors.New("rpc rejected cursor")
)

// RawEvent is a single contract event as rendered by the RPC. Topics and
// the value blob stay as raw JSON; the decoder interprets them.
type RawEvent struct {
	Type                     string            `json:"type"`
	Ledger                   uint32            `json:"ledger"`
	LedgerClosedAt           string            `json:"ledgerClosedAt"`
	ContractID               string            `json:"contractId"`
	ID                       string            `json:"id"`
	PagingToken              string            `json:"pagingToken"`
	Topic                    []json.RawMessage `json:"topic"`
	Value                    json.RawMessage   `json:"value"`
	InSuccessfulContractCall bool              `json:"inSuccessfulContractCall"`
	TxHash                   string            `json:"txHash"`
}

// Batch is one page of events. Cursor resumes the page stream exactly where
// it left off; LatestLedger is the chain head the server knew about.
type Batch struct {
	Events       []RawEvent
	Cursor       string
	LatestLedger uint32
}

type getEventsParams struct {
	StartLedger uint32            `json:"startLedger,omitempty"`
	Filters     []eventFilter     `json:"filters"`
	Pagination  *paginationParams `json:"pagination,omitempty"`
}

type eventFilter struct {
	Type        string   `json:"type"`
	ContractIDs []string `json:"contractIds"`
}

type paginationParams struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type getEventsResult struct {
	Events       []RawEvent `json:"events"`
	Cursor       string     `json:"cursor"`
	LatestLedger uint32     `json:"latestLedger"`
}

type latestLedgerResult struct {
	Sequence uint32 `json:"sequence"`
}

// Client calls the Soroban RPC over HTTP. It is the only network-facing
// collaborator the indexer consumes.
type Client struct {
	cli        *jrpc2.Client
	contractID string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient creates a client bound to one contract's event stream.
func NewClient(url, contractID string, timeout time.Duration, logger *zap.Logger) *Client {
	ch := jhttp.NewChannel(url, nil)
	return &Client{
		cli:        jrpc2.NewClient(ch, nil),
		contractID: contractID,
		timeout:    timeout,
		logger:     logger,
	}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// FetchNext returns the next batch of events strictly after the given
// position. With a pagination cursor the server resumes mid-stream;
// otherwise scanning starts at afterLedger+1. An empty batch means the
// upstream has no new finalized ledgers yet.
func (c *Client) FetchNext(ctx context.Context, afterLedger uint32, afterCursor string, limit int) (Batch, error) {
	params := getEventsParams{
		Filters: []eventFilter{{
			Type:        "contract",
			ContractIDs: []string{c.contractID},
		}},
		Pagination: &paginationParams{Limit: limit},
	}
	if afterCursor != "" {
		// startLedger and cursor are mutually exclusive in the protocol.
		params.Pagination.Cursor = afterCursor
	} else {
		params.StartLedger = afterLedger + 1
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result getEventsResult
	if err := c.cli.CallResult(ctx, "getEvents", params, &result); err != nil {
		return Batch{}, c.classify(err)
	}

	c.logger.Debug("fetched events",
		zap.Int("count", len(result.Events)),
		zap.Uint32("latest_ledger", result.LatestLedger))

	return Batch{
		Events:       result.Events,
		Cursor:       result.Cursor,
		LatestLedger: result.LatestLedger,
	}, nil
}

// LatestLedger returns the chain head ledger sequence.
func (c *Client) LatestLedger(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result latestLedgerResult
	if err := c.cli.CallResult(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, c.classify(err)
	}
	return result.Sequence, nil
}

// classify maps transport and protocol errors onto the fetcher's error
// taxonomy. Request-shape rejections mean the resume position is stale;
// everything else is transient.
func (c *Client) classify(err error) error {
	var rpcErr *jrpc2.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case jrpc2.InvalidRequest, jrpc2.InvalidParams:
			return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Network failure, timeout, or cancellation.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
