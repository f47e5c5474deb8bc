package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a connection cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid connection status transition")

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

var transitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionPending:      {ConnectionConnected, ConnectionDisconnected},
	ConnectionConnected:    {ConnectionConnected, ConnectionDisconnected, ConnectionError},
	ConnectionDisconnected: {ConnectionConnected, ConnectionDisconnected},
	ConnectionError:        {ConnectionConnected, ConnectionDisconnected},
}

// CanTransition reports whether a connection in from may move to to.
func CanTransition(from, to ConnectionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Connection links a user to an upstream provider account.
type Connection struct {
	ID             string
	UserID         string
	Provider       Provider
	ExternalUserID string
	ReferenceID    string
	Status         ConnectionStatus
	ConnectedAt    *time.Time
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MarkConnected records a successful auth or reauth.
func (c *Connection) MarkConnected(now time.Time, referenceID string, metadata map[string]any) error {
	if err := c.transition(ConnectionConnected, now); err != nil {
		return err
	}
	at := now.UTC()
	c.ConnectedAt = &at
	c.ReferenceID = referenceID
	c.Metadata = map[string]any{"webhook_user": metadata}
	return nil
}

// MarkDisconnected records a deauth. ConnectedAt is cleared.
func (c *Connection) MarkDisconnected(now time.Time) error {
	if err := c.transition(ConnectionDisconnected, now); err != nil {
		return err
	}
	c.ConnectedAt = nil
	return nil
}

// MarkFailed records a backfill failure; only connected connections can fail.
func (c *Connection) MarkFailed(now time.Time, reason string) error {
	if err := c.transition(ConnectionError, now); err != nil {
		return err
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata["error"] = reason
	return nil
}

func (c *Connection) transition(to ConnectionStatus, now time.Time) error {
	from := c.Status
	if from == "" {
		from = ConnectionPending
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.Status = to
	c.UpdatedAt = now.UTC()
	return nil
}
