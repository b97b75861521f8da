/*
Package events provides an in-memory publish/subscribe broker for mutation
notifications: triple inserts and deletes, and completed patch batches.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher (pkg/store) → Event Channel (buffer: 100)     │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                    │
	│                                                            │
	│  Event Types:                                              │
	│    - triple.inserted, triple.deleted                      │
	│    - patch.applied, patch.failed                           │
	│    - scrub.reclaimed                                        │
	└────────────────────────────────────────────────────────────┘

Delivery is best-effort and non-blocking: a subscriber whose buffer is full
misses the event rather than stalling the writer. Subscribers that need a
durable record of every mutation should not rely on this broker alone.

# Best Practices

Do:
  - Always defer broker.Unsubscribe(sub)
  - Process events asynchronously in goroutine
  - Filter events by type at subscriber
  - Start broker before publishing events

Don't:
  - Block in subscriber event loop
  - Publish events before broker.Start()
  - Rely on event delivery for anything that must not be missed
*/
package events
