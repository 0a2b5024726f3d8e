/*
Package event provides the pub/sub event bus for chatrelay.

Components publish an Event after a state change has been persisted. The
HTTP server relays the stream to clients over Server-Sent Events, and tests
use it to observe the order of operations.

# Architecture

The bus is a thin wrapper over watermill's gochannel. Events are JSON encoded
into watermill messages on a single topic and decoded again per subscriber.
Publish waits for every subscriber to acknowledge, so a subscriber sees
events in publish order.

# Event Types

Session Events:
  - session.created: a session was created and persisted
  - session.deleted: a session record was removed

Message Events:
  - message.created: a user or assistant turn was persisted
  - message.failed: a turn failed at the provider; the user turn is kept

Run Events:
  - run.status: one poll of a provider run, with its mapped state

# Usage

	bus := event.NewBus(logging.NewWatermillAdapter(logging.Logger))
	defer bus.Close()

	events, err := bus.Subscribe(ctx, event.MessageCreated)
	if err != nil {
		return err
	}
	for e := range events {
		fmt.Println(e.SessionID, e.Data)
	}

A nil *Bus discards published events, so components take one optionally.
Subscribers that stop reading lose events instead of blocking publishers.
*/
package event
