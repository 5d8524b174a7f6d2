package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_DeliversToSubscribersOfType(t *testing.T) {
	d := NewInMemoryDispatcher()

	var cleared []string
	d.Subscribe(EventSessionCleared, func(_ context.Context, e Event) error {
		cleared = append(cleared, e.SessionID)
		return nil
	})
	d.Subscribe(EventCredentialSaved, func(context.Context, Event) error {
		t.Fatal("unexpected delivery")
		return nil
	})

	err := d.Publish(context.Background(), New(EventSessionCleared, "s1", SessionClearedPayload{Reason: ClearReasonLogout}))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, cleared)
}

func TestDispatcher_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	calls := 0
	d.Subscribe(EventSessionCleared, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventSessionCleared, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), New(EventSessionCleared, "s1", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestNew_StampsIDAndTime(t *testing.T) {
	e := New(EventDecisionMade, "s1", DecisionMadePayload{Route: "/admin/dashboard", Decision: "allow"})
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, EventDecisionMade, e.Type)
}
