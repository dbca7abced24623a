// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package services

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/pubcompass/pubcompass/internal/logging"
	"github.com/pubcompass/pubcompass/internal/models"
)

// ResultBroadcaster matches the hub method that pushes a search result to
// connected clients.
type ResultBroadcaster interface {
	BroadcastSearchResult(result *models.SearchResult)
}

// ResultRelayService subscribes to the search-results topic on the event
// bus and fans each pass result out to WebSocket clients. Running it as a
// supervised service means the subscription is re-established after a
// crash.
type ResultRelayService struct {
	subscriber  message.Subscriber
	topic       string
	broadcaster ResultBroadcaster
}

// NewResultRelayService wires the bus-to-hub relay.
func NewResultRelayService(subscriber message.Subscriber, topic string, broadcaster ResultBroadcaster) *ResultRelayService {
	return &ResultRelayService{
		subscriber:  subscriber,
		topic:       topic,
		broadcaster: broadcaster,
	}
}

// Serve implements suture.Service.
func (s *ResultRelayService) Serve(ctx context.Context) error {
	msgs, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				// Subscription channel closed underneath us; let the
				// supervisor restart the service.
				return errors.New("search-results subscription closed")
			}

			var result models.SearchResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("discarding malformed search result")
				msg.Ack()
				continue
			}
			s.broadcaster.BroadcastSearchResult(&result)
			msg.Ack()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *ResultRelayService) String() string {
	return "result-relay"
}
