package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventVariants(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"subscription.created","data":{"id":"sub_1","status":"active","customer":{"email":"A@X.com"},"modified_at":"2024-05-01T10:00:00.5Z"}}`))
	require.NoError(t, err)
	changed, ok := ev.(SubscriptionChanged)
	require.True(t, ok, "expected SubscriptionChanged, got %T", ev)
	assert.Equal(t, TypeSubscriptionCreated, changed.EventType())
	assert.Equal(t, "sub_1", changed.Subscription.ID)
	assert.Equal(t, "a@x.com", EventEmail(ev))
	at := changed.Subscription.OccurredAt()
	require.NotNil(t, at)
	assert.True(t, at.Equal(time.Date(2024, 5, 1, 10, 0, 0, 500_000_000, time.UTC)))

	ev, err = ParseEvent([]byte(`{"type":"subscription.canceled","data":{"id":"sub_1","customer":{"email":"b@x.com"}}}`))
	require.NoError(t, err)
	_, ok = ev.(SubscriptionCanceled)
	assert.True(t, ok)

	ev, err = ParseEvent([]byte(`{"type":"checkout.completed","data":{"id":"co_1","customer_email":"c@x.com"}}`))
	require.NoError(t, err)
	checkout, ok := ev.(CheckoutCompleted)
	require.True(t, ok)
	assert.Nil(t, checkout.Checkout.Subscription)
	assert.Equal(t, "c@x.com", EventEmail(ev))
}

func TestParseEventUnknownVariants(t *testing.T) {
	cases := map[string]string{
		"unhandled type": `{"type":"order.created","data":{"id":"o_1"}}`,
		"missing type":   `{"data":{}}`,
		"array body":     `[1,2,3]`,
		"scalar body":    `"hello"`,
		"bad data shape": `{"type":"subscription.updated","data":"oops"}`,
		"missing data":   `{"type":"subscription.updated"}`,
		"numeric type":   `{"type":42}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(body))
			require.NoError(t, err)
			_, ok := ev.(UnknownEvent)
			assert.True(t, ok, "expected UnknownEvent, got %T", ev)
		})
	}
}

func TestParseEventRejectsNonJSON(t *testing.T) {
	for _, body := range []string{"", "not json", `{"type":`} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedBody)
	}
}

func TestParseTimestamp(t *testing.T) {
	require.NotNil(t, parseTimestamp("2024-05-01T10:00:00Z"))
	require.NotNil(t, parseTimestamp("2024-05-01T10:00:00.123456"))
	unix := parseTimestamp("1614265330")
	require.NotNil(t, unix)
	assert.Equal(t, int64(1614265330), unix.Unix())
	assert.Nil(t, parseTimestamp(""))
	assert.Nil(t, parseTimestamp("yesterday"))
}
