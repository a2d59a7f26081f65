package ingestor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dinahmaccodes/pifp-stellar/internal/database"
	"github.com/dinahmaccodes/pifp-stellar/internal/rpc"
)

// ErrMalformedEvent marks a raw payload the decoder could not turn into a
// valid event. The item is skipped and counted; it never aborts a batch.
var ErrMalformedEvent = errors.New("malformed event")

// Event kinds emitted by the PIFP contract, as stored in the database.
const (
	KindProjectCreated   = "project_created"
	KindProjectFunded    = "project_funded"
	KindProjectVerified  = "project_verified"
	KindFundsReleased    = "funds_released"
	KindRoleSet          = "role_set"
	KindRoleDel          = "role_del"
	KindProtocolPaused   = "protocol_paused"
	KindProtocolUnpaused = "protocol_unpaused"
	KindUnknown          = "unknown"
)

// KindFromTopic maps the leading topic symbol onto a stored event kind.
// The contract emits "donation_received" for deposits; older deployments
// used "funded". Both map to the same kind.
func KindFromTopic(topic string) string {
	switch topic {
	case "created":
		return KindProjectCreated
	case "funded", "donation_received":
		return KindProjectFunded
	case "verified":
		return KindProjectVerified
	case "released":
		return KindFundsReleased
	case "role_set":
		return KindRoleSet
	case "role_del":
		return KindRoleDel
	case "paused":
		return KindProtocolPaused
	case "unpaused":
		return KindProtocolUnpaused
	default:
		return KindUnknown
	}
}

// Decode turns a raw RPC event into a typed record. It is pure: no side
// effects, no shared state. Required fields are the event type (leading
// topic), ledger, close time, and contract id; amount, when present, must be
// a valid decimal string.
func Decode(raw rpc.RawEvent) (*database.Event, error) {
	if len(raw.Topic) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrMalformedEvent)
	}

	topic, err := symbolFromTopic(raw.Topic[0])
	if err != nil {
		return nil, fmt.Errorf("%w: leading topic: %v", ErrMalformedEvent, err)
	}
	kind := KindFromTopic(topic)

	if raw.Ledger == 0 {
		return nil, fmt.Errorf("%w: missing ledger", ErrMalformedEvent)
	}
	if raw.ContractID == "" {
		return nil, fmt.Errorf("%w: missing contract id", ErrMalformedEvent)
	}

	closedAt, err := time.Parse(time.RFC3339, raw.LedgerClosedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger close time: %v", ErrMalformedEvent, err)
	}

	var projectID *string
	if len(raw.Topic) > 1 {
		if v, err := scalarFromTopic(raw.Topic[1]); err == nil && v != "" {
			projectID = &v
		}
	}

	actor, amount := decodeValue(raw.Value, kind)
	if amount != nil && !validDecimal(*amount) {
		return nil, fmt.Errorf("%w: amount %q is not a decimal string", ErrMalformedEvent, *amount)
	}

	return &database.Event{
		EventType:  kind,
		ProjectID:  projectID,
		Actor:      actor,
		Amount:     amount,
		Ledger:     raw.Ledger,
		Timestamp:  closedAt.Unix(),
		ContractID: raw.ContractID,
		TxHash:     raw.TxHash,
	}, nil
}

// decodeValue pulls actor and amount out of the JSON-rendered event data.
// The RPC renders Soroban values either as plain scalars or as
// {"type": ..., "value": ...} wrappers; field names vary by event kind.
func decodeValue(value json.RawMessage, kind string) (actor, amount *string) {
	switch kind {
	case KindProjectCreated:
		actor = extractField(value, "creator", "address")
		amount = extractField(value, "goal")
	case KindProjectFunded:
		actor = extractField(value, "donator", "funder", "address")
		amount = extractField(value, "amount")
	case KindProjectVerified:
		actor = extractField(value, "oracle", "verifier", "address")
	case KindFundsReleased:
		amount = extractField(value, "amount")
	case KindRoleSet, KindRoleDel, KindProtocolPaused, KindProtocolUnpaused:
		// Data is typically the caller address, either bare or wrapped.
		if s, err := scalarFromTopic(value); err == nil && s != "" {
			actor = &s
		} else {
			actor = extractField(value, "address", "caller", "by")
		}
	}
	return actor, amount
}

// topicValue is the {"type": ..., "value": ...} wrapper the RPC uses when
// rendering XDR as JSON.
type topicValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// symbolFromTopic extracts a symbol string from a topic entry. Accepts both
// the wrapped form and a bare string.
func symbolFromTopic(raw json.RawMessage) (string, error) {
	var wrapped topicValue
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Value) > 0 {
		var s string
		if err := json.Unmarshal(wrapped.Value, &s); err == nil {
			return s, nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return "", fmt.Errorf("topic is neither a wrapped symbol nor a string")
}

// scalarFromTopic extracts a string or integer scalar, unwrapping if needed.
func scalarFromTopic(raw json.RawMessage) (string, error) {
	var wrapped topicValue
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Value) > 0 {
		raw = wrapped.Value
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("not a scalar")
}

// extractField returns the first matching key from a JSON object, searching
// nested objects one level at a time. Numbers come back as their decimal
// string form.
func extractField(raw json.RawMessage, keys ...string) *string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, err := scalarFromTopic(v); err == nil {
				return &s
			}
		}
	}

	// One level of nesting covers wrapped map renderings.
	for _, v := range obj {
		if found := extractField(v, keys...); found != nil {
			return found
		}
	}
	return nil
}

// validDecimal reports whether s is a plain decimal string: optional sign,
// digits, optional fractional part. No exponents, no spaces. Amounts are
// kept as text end to end to preserve i128 precision.
func validDecimal(s string) bool {
	body := strings.TrimPrefix(s, "-")
	intPart, fracPart, hasDot := strings.Cut(body, ".")
	if !allDigits(intPart) {
		return false
	}
	if hasDot && !allDigits(fracPart) {
		return false
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
