// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"net/url"
)

var (
	ErrRoomURLEmpty     = errors.New("room url empty")
	ErrRoomURLMalformed = errors.New("room url malformed")
)

// RoomCredentials are the short-lived join credentials allocated by the
// conversation backend. Single-use: one join attempt per value, never persisted.
type RoomCredentials struct {
	ConversationID string `json:"conversation_id"`
	RoomURL        string `json:"room_url"`
	RoomToken      string `json:"room_token"`
}

// Validate checks credentials without touching the network.
// RoomToken may be empty: open rooms need no token.
func (c RoomCredentials) Validate() error {
	if c.RoomURL == "" {
		return ErrRoomURLEmpty
	}
	u, err := url.Parse(c.RoomURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrRoomURLMalformed
	}
	return nil
}
