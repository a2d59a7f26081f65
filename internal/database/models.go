package database

// Event is a single indexed contract event. Immutable once written; the
// surrogate ID orders events consistently with ledger order because
// ingestion commits ledgers sequentially.
type Event struct {
	ID         int64   `json:"id"`
	EventType  string  `json:"event_type"`
	ProjectID  *string `json:"project_id,omitempty"`
	Actor      *string `json:"actor,omitempty"`
	Amount     *string `json:"amount,omitempty"`
	Ledger     uint32  `json:"ledger"`
	Timestamp  int64   `json:"timestamp"`
	ContractID string  `json:"contract_id"`
	TxHash     string  `json:"tx_hash,omitempty"`
	CreatedAt  int64   `json:"created_at"`
}

// Cursor is the indexer's resume bookmark: the highest ledger whose events
// are durably stored, plus the opaque pagination token the RPC handed back.
type Cursor struct {
	LastLedger uint32 `json:"last_ledger"`
	LastCursor string `json:"last_cursor,omitempty"`
}

// EventFilter selects events for the read-only query surface.
// Nil fields are not applied.
type EventFilter struct {
	ProjectID   *string
	EventType   *string
	StartLedger *uint32
	EndLedger   *uint32
	Limit       int
}
