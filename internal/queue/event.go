// Package queue defines message payloads exchanged over the message broker
// and the consumer that drains them.
package queue

import (
	"time"

	"github.com/iliyamo/items-api/internal/model"
)

// DefaultQueueName is the durable queue item events are routed to.
const DefaultQueueName = "items.events"

const (
	ItemCreated = "item.created"
	ItemUpdated = "item.updated"
	ItemDeleted = "item.deleted"
)

// ItemEvent is published after a mutation commits.  Deleted events carry
// only the id.
type ItemEvent struct {
	Type        string `json:"type"`
	ItemID      int64  `json:"item_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// NewItemEvent stamps an event for item with the current UTC time.
func NewItemEvent(kind string, item model.Item) ItemEvent {
	return ItemEvent{
		Type:        kind,
		ItemID:      item.ID,
		Name:        item.Name,
		Description: item.Description,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339),
	}
}
