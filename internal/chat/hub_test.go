package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pairlyhq/pairly-backend/pkg/logger"
)

func TestHubShutdownUnblocksClients(t *testing.T) {
	newStoppedHub := func(t *testing.T) *Hub {
		t.Helper()
		h := NewHub(nil, logger.NewNop())
		done := make(chan struct{})
		go func() {
			h.Run()
			close(done)
		}()
		h.Shutdown()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("hub loop did not exit on shutdown")
		}
		return h
	}

	t.Run("unregister returns after shutdown", func(t *testing.T) {
		h := newStoppedHub(t)
		client := NewClient(h, nil, "alice", nil, logger.NewNop())

		finished := make(chan struct{})
		go func() {
			h.requestUnregister(client)
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("unregister blocked after hub shutdown")
		}
	})

	t.Run("register after shutdown closes the client", func(t *testing.T) {
		h := newStoppedHub(t)
		client := NewClient(h, nil, "alice", nil, logger.NewNop())

		finished := make(chan struct{})
		go func() {
			h.Register(client)
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("register blocked after hub shutdown")
		}

		select {
		case <-client.closeOnce:
		default:
			t.Fatal("client was not closed")
		}
		assert.False(t, h.IsUserOnline("alice"))
	})
}
