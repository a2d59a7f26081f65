package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"go.uber.org/zap"
)

const testContract = "CAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAC"

// newTestClient runs a real JSON-RPC server behind an HTTP bridge and
// returns a client pointed at it.
func newTestClient(t *testing.T, methods handler.Map) *Client {
	t.Helper()

	bridge := jhttp.NewBridge(methods, nil)
	srv := httptest.NewServer(bridge)
	t.Cleanup(func() {
		srv.Close()
		bridge.Close()
	})

	c := NewClient(srv.URL, testContract, 5*time.Second, zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFetchNext_StartLedger(t *testing.T) {
	var gotParams getEventsParams

	c := newTestClient(t, handler.Map{
		"getEvents": handler.New(func(ctx context.Context, params json.RawMessage) (getEventsResult, error) {
			if err := json.Unmarshal(params, &gotParams); err != nil {
				return getEventsResult{}, err
			}
			return getEventsResult{
				Events: []RawEvent{{
					Type:           "contract",
					Ledger:         103,
					LedgerClosedAt: "2024-01-01T00:00:00Z",
					ContractID:     testContract,
					TxHash:         "TX1",
				}},
				Cursor:       "tok-103",
				LatestLedger: 110,
			}, nil
		}),
	})

	batch, err := c.FetchNext(context.Background(), 102, "", 50)
	if err != nil {
		t.Fatalf("FetchNext() error: %v", err)
	}

	// Resume strictly after the given ledger.
	if gotParams.StartLedger != 103 {
		t.Errorf("startLedger = %d; want 103", gotParams.StartLedger)
	}
	if len(gotParams.Filters) != 1 || gotParams.Filters[0].ContractIDs[0] != testContract {
		t.Errorf("filters = %+v; want single contract filter", gotParams.Filters)
	}
	if gotParams.Pagination == nil || gotParams.Pagination.Limit != 50 {
		t.Errorf("pagination = %+v; want limit 50", gotParams.Pagination)
	}

	if len(batch.Events) != 1 {
		t.Fatalf("batch has %d events; want 1", len(batch.Events))
	}
	if batch.Cursor != "tok-103" {
		t.Errorf("Cursor = %q; want tok-103", batch.Cursor)
	}
	if batch.LatestLedger != 110 {
		t.Errorf("LatestLedger = %d; want 110", batch.LatestLedger)
	}
}

func TestFetchNext_CursorOverridesStartLedger(t *testing.T) {
	var gotParams getEventsParams

	c := newTestClient(t, handler.Map{
		"getEvents": handler.New(func(ctx context.Context, params json.RawMessage) (getEventsResult, error) {
			if err := json.Unmarshal(params, &gotParams); err != nil {
				return getEventsResult{}, err
			}
			return getEventsResult{}, nil
		}),
	})

	if _, err := c.FetchNext(context.Background(), 102, "tok-resume", 50); err != nil {
		t.Fatalf("FetchNext() error: %v", err)
	}

	if gotParams.StartLedger != 0 {
		t.Errorf("startLedger = %d; want omitted when a cursor is set", gotParams.StartLedger)
	}
	if gotParams.Pagination == nil || gotParams.Pagination.Cursor != "tok-resume" {
		t.Errorf("pagination = %+v; want cursor tok-resume", gotParams.Pagination)
	}
}

func TestFetchNext_EmptyBatchIsNotAnError(t *testing.T) {
	c := newTestClient(t, handler.Map{
		"getEvents": handler.New(func(ctx context.Context, params json.RawMessage) (getEventsResult, error) {
			return getEventsResult{LatestLedger: 200}, nil
		}),
	})

	batch, err := c.FetchNext(context.Background(), 200, "", 50)
	if err != nil {
		t.Fatalf("FetchNext() error: %v", err)
	}
	if len(batch.Events) != 0 {
		t.Errorf("batch has %d events; want 0", len(batch.Events))
	}
}

func TestFetchNext_InvalidCursor(t *testing.T) {
	c := newTestClient(t, handler.Map{
		"getEvents": handler.New(func(ctx context.Context, params json.RawMessage) (getEventsResult, error) {
			return getEventsResult{}, &jrpc2.Error{
				Code:    jrpc2.InvalidParams,
				Message: "startLedger must be within the ledger range",
			}
		}),
	})

	_, err := c.FetchNext(context.Background(), 5, "", 50)
	if !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("FetchNext() error = %v; want ErrInvalidCursor", err)
	}
}

func TestFetchNext_ServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, handler.Map{
		"getEvents": handler.New(func(ctx context.Context, params json.RawMessage) (getEventsResult, error) {
			return getEventsResult{}, errors.New("ledger store busy")
		}),
	})

	_, err := c.FetchNext(context.Background(), 100, "", 50)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("FetchNext() error = %v; want ErrUnavailable", err)
	}
}

func TestFetchNext_NetworkErrorIsUnavailable(t *testing.T) {
	// A server that immediately closes the connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testContract, time.Second, zap.NewNop())
	defer c.Close()

	_, err := c.FetchNext(context.Background(), 100, "", 50)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("FetchNext() error = %v; want ErrUnavailable", err)
	}
}

func TestLatestLedger(t *testing.T) {
	c := newTestClient(t, handler.Map{
		"getLatestLedger": handler.New(func(ctx context.Context) (latestLedgerResult, error) {
			return latestLedgerResult{Sequence: 4242}, nil
		}),
	})

	seq, err := c.LatestLedger(context.Background())
	if err != nil {
		t.Fatalf("LatestLedger() error: %v", err)
	}
	if seq != 4242 {
		t.Errorf("LatestLedger() = %d; want 4242", seq)
	}
}
