// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
)

func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub starts a hub under a cancelable context and returns both.
func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.RunWithContext(ctx)
	time.Sleep(10 * time.Millisecond)
	return hub, cancel
}

// createTestClient builds a client without a network connection; tests read
// from its send channel directly.
func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, conn: nil, send: make(chan Message, 256)}
}

func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.clients == nil || hub.broadcast == nil || hub.Register == nil || hub.Unregister == nil {
		t.Fatal("hub channels not initialized")
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("new hub reports %d clients, want 0", got)
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	client := createTestClient(hub)
	registerClient(hub, client)
	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("client count after register = %d, want 1", got)
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("client count after unregister = %d, want 0", got)
	}

	// The hub closed the channel; a receive must not block.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after unregister")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after unregister")
	}
}

func TestBroadcastSearchResultReachesAllClients(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	first := createTestClient(hub)
	second := createTestClient(hub)
	registerClient(hub, first)
	registerClient(hub, second)

	result := &models.SearchResult{
		Generation:   3,
		PassID:       "pass-1",
		Origin:       models.Coordinate{Lat: 51.5, Lon: -0.1},
		RadiusMeters: 2000,
		Venues:       []models.Venue{{ID: "canonical:1", Name: "The Anchor"}},
		CompletedAt:  time.Now().UTC(),
	}
	hub.BroadcastSearchResult(result)

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeSearchResult {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeSearchResult)
			}
			got, ok := msg.Data.(*models.SearchResult)
			if !ok {
				t.Fatalf("message data is %T, want *models.SearchResult", msg.Data)
			}
			if got.Generation != 3 || len(got.Venues) != 1 {
				t.Errorf("unexpected payload: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive broadcast", client.id)
		}
	}
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	slow := createTestClient(hub)
	slow.send = make(chan Message) // unbuffered with no reader: always full
	registerClient(hub, slow)

	hub.BroadcastJSON(MessageTypeStateUpdate, map[string]int{"venues": 12})
	time.Sleep(20 * time.Millisecond)

	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("slow client not dropped, count = %d", got)
	}
}

func TestRunWithContextShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub)
	registerClient(hub, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after context cancel")
	}

	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("clients remaining after shutdown = %d, want 0", got)
	}
}
