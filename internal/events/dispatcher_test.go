package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcher(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(nil)

	var created, transitioned int
	dispatcher.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		created++
		return nil
	})
	dispatcher.Subscribe(EventTicketTransitioned, func(context.Context, Event) error {
		transitioned++
		return nil
	})
	// Failing handlers must not block others on the same event type.
	dispatcher.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		return errors.New("boom")
	})
	dispatcher.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		created++
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: "tk-1"})
	require.NoError(t, err)

	assert.Equal(t, 2, created)
	assert.Equal(t, 0, transitioned)
}
