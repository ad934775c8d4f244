package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatroom-service/internal/mocks"
)

func TestPublishEventWithoutPublisher(t *testing.T) {
	SetPublisher(nil)
	require.NoError(t, PublishEvent(context.Background(), "ws_events.rooms", EventEnvelope{}, nil))
}

func TestPublishEventAttachesHeaders(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	t.Cleanup(func() { SetPublisher(nil) })

	var got EventEnvelope
	publisher.On("Publish", mock.Anything, "ws_events.rooms", mock.AnythingOfType("observability.EventEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(EventEnvelope) }).
		Return(nil).Once()

	err := PublishEvent(context.Background(), "ws_events.rooms", EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}, BuildHeaders("req-1", "trace-1"))
	require.NoError(t, err)
	publisher.AssertExpectations(t)
	assert.Equal(t, "ws_connect", got.EventName)
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "trace_id": "trace-1"}, got.Headers)
}

func TestPublishEventReturnsError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	SetPublisher(publisher)
	t.Cleanup(func() { SetPublisher(nil) })

	publisher.On("Publish", mock.Anything, "k", mock.Anything).Return(assert.AnError).Once()
	assert.ErrorIs(t, PublishEvent(context.Background(), "k", "raw", nil), assert.AnError)
}

func TestBuildHeadersSkipsEmpty(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
}
