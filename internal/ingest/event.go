// Package ingest dispatches provider webhook events to connection lifecycle
// handling or record ingestion.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/healthsync/internal/domain"
)

// EventType is the aggregator's webhook event discriminator.
type EventType string

const (
	EventAuth       EventType = "auth"
	EventUserReauth EventType = "user_reauth"
	EventDeauth     EventType = "deauth"
	EventBody       EventType = "body"
	EventDaily      EventType = "daily"
	EventSleep      EventType = "sleep"
	EventActivity   EventType = "activity"
	EventAthlete    EventType = "athlete"
)

// DataType maps a data event to the stored record category.
func (t EventType) DataType() (domain.DataType, bool) {
	switch t {
	case EventBody:
		return domain.DataTypeBody, true
	case EventDaily:
		return domain.DataTypeDaily, true
	case EventSleep:
		return domain.DataTypeSleep, true
	case EventActivity:
		return domain.DataTypeActivity, true
	case EventAthlete:
		return domain.DataTypeAthlete, true
	default:
		return "", false
	}
}

// ID accepts identifiers delivered either as JSON strings or numbers.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil && f == math.Trunc(f) {
		*id = ID(strconv.FormatFloat(f, 'f', 0, 64))
		return nil
	}
	*id = ID(n.String())
	return nil
}

// EventUser identifies the provider account an event concerns.
type EventUser struct {
	UserID      ID     `json:"user_id"`
	ReferenceID ID     `json:"reference_id"`
	Provider    string `json:"provider"`
}

// Event is a decoded webhook delivery.
type Event struct {
	Type    EventType      `json:"type" validate:"required"`
	User    EventUser      `json:"user"`
	Data    []any          `json:"data"`
	RawUser map[string]any `json:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeEvent parses a webhook body. Only malformed JSON or a missing type is an error;
// unknown types decode successfully and are logged by the pipeline.
func DecodeEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	var envelope struct {
		User map[string]any `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		evt.RawUser = envelope.User
	}
	if err := validate.Struct(evt); err != nil {
		return Event{}, fmt.Errorf("decode webhook: %w", err)
	}
	return evt, nil
}

// accountRef is the subset of an event needed to resolve a connection.
type accountRef struct {
	ReferenceID    string `validate:"required"`
	ExternalUserID string `validate:"required"`
}

// linkRef is required to create or refresh a connection.
type linkRef struct {
	ReferenceID    string `validate:"required"`
	ExternalUserID string `validate:"required"`
	Provider       string `validate:"required"`
}

func (e Event) accountRef() (accountRef, error) {
	ref := accountRef{ReferenceID: string(e.User.ReferenceID), ExternalUserID: string(e.User.UserID)}
	return ref, validate.Struct(ref)
}

func (e Event) linkRef() (linkRef, error) {
	ref := linkRef{
		ReferenceID:    string(e.User.ReferenceID),
		ExternalUserID: string(e.User.UserID),
		Provider:       strings.TrimSpace(e.User.Provider),
	}
	return ref, validate.Struct(ref)
}
