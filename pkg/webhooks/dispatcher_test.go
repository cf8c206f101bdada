package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/async"
	"github.com/campuscms/campuscms/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func newTestDispatcher(t *testing.T, store *Store) *Dispatcher {
	t.Helper()
	d := &Dispatcher{
		store:   store,
		pool:    async.NewPool(context.Background(), 1, "webhook-delivery", time.Second, testLogger()),
		client:  &http.Client{Timeout: time.Second},
		logger:  testLogger(),
		backoff: time.Millisecond,
		now:     time.Now,
	}
	t.Cleanup(func() { d.Shutdown(time.Second) })
	return d
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"event":"blog.update"}`)
	sig := Sign("secret", body)

	assert.True(t, VerifySignature("secret", sig, body))
	assert.False(t, VerifySignature("other", sig, body))
	assert.False(t, VerifySignature("secret", sig, []byte(`{}`)))
	assert.Contains(t, sig, "sha256=")
}

func TestDispatcherDeliversSignedEvent(t *testing.T) {
	type received struct {
		event     Event
		signature string
		eventName string
		body      []byte
	}
	got := make(chan received, 1)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var event Event
		require.NoError(t, json.Unmarshal(body, &event))
		got <- received{
			event:     event,
			signature: r.Header.Get("X-Campus-Signature"),
			eventName: r.Header.Get("X-Campus-Event"),
			body:      body,
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(receiver.Close)

	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`FROM webhook_subscriptions\s+WHERE is_active`).
		WithArgs("blog_post.update", "*").
		WillReturnRows(sqlmock.NewRows(subscriptionColumnNames()).
			AddRow(1, "receiver", receiver.URL, "hook-secret", `{*}`, true, nil, now, now))

	d := newTestDispatcher(t, store)
	d.ContentChanged(context.Background(), "blog_post", "update", 7)

	select {
	case r := <-got:
		assert.Equal(t, "blog_post.update", r.eventName)
		assert.Equal(t, "blog_post.update", r.event.Name)
		assert.Equal(t, int64(7), r.event.ContentID)
		assert.True(t, VerifySignature("hook-secret", r.signature, r.body))
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never arrived")
	}
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	var attempts int64
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	store, _ := newMockStore(t)
	d := newTestDispatcher(t, store)

	sub := &Subscription{Name: "flaky", URL: receiver.URL}
	err := d.deliver(context.Background(), sub, "blog_post.create", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
}

func TestDeliverDoesNotRetryRejections(t *testing.T) {
	var attempts int64
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(receiver.Close)

	store, _ := newMockStore(t)
	d := newTestDispatcher(t, store)

	sub := &Subscription{Name: "strict", URL: receiver.URL}
	err := d.deliver(context.Background(), sub, "blog_post.create", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&attempts))
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int64
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(receiver.Close)

	store, _ := newMockStore(t)
	d := newTestDispatcher(t, store)

	sub := &Subscription{Name: "down", URL: receiver.URL}
	err := d.deliver(context.Background(), sub, "blog_post.create", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gave up")
	assert.Equal(t, int64(maxAttempts), atomic.LoadInt64(&attempts))
}
