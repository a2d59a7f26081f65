package api

import "github.com/dinahmaccodes/pifp-stellar/internal/database"

// EventsResponse is the response for the events endpoints.
type EventsResponse struct {
	Events []database.Event `json:"events"`
	Count  int              `json:"count"`
}

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status      string           `json:"status"`
	LastLedger  uint32           `json:"last_ledger"`
	TotalEvents int64            `json:"total_events"`
	Ingestion   map[string]int64 `json:"ingestion"`
}

// ErrorResponse is the response for error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
