package msg

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func TestSubscribe(t *testing.T) {
	pidPub, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub1, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub2, err := uuid.NewUUID()
	assert.NilError(t, err)

	pubsub := NewPublisher(pidPub)
	ch1, err := pubsub.Subscribe(pidSub1, Status)
	assert.NilError(t, err)
	ch2, err := pubsub.Subscribe(pidSub2, Status)
	assert.NilError(t, err)

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	randValue := r.Float64()

	pubsub.Publish(Status, randValue)

	incoming := <-ch1
	assert.Equal(t, incoming.Payload(), randValue, "First subscriber did not recieve the correct published value")
	assert.Equal(t, incoming.PID(), pidPub)
	assert.Equal(t, incoming.Topic(), Status)

	incoming = <-ch2
	assert.Equal(t, incoming.Payload(), randValue, "Second subscriber did not recieve the correct published value")
}

func TestSubscribeTwiceRejected(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()

	_, err := pubsub.Subscribe(pid, Log)
	assert.NilError(t, err)

	_, err = pubsub.Subscribe(pid, Log)
	assert.ErrorIs(t, err, ErrSubscribed)

	_, err = pubsub.Subscribe(pid, Status)
	assert.NilError(t, err)
}

func TestTopicsAreIsolated(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()

	chStatus, _ := pubsub.Subscribe(pid, Status)
	chLog, _ := pubsub.Subscribe(pid, Log)

	pubsub.Publish(Log, "entry")

	select {
	case m := <-chLog:
		assert.Equal(t, m.Payload(), "entry")
	default:
		t.Fatal("log subscriber got nothing")
	}

	select {
	case m := <-chStatus:
		t.Fatalf("status subscriber got %v", m.Payload())
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()

	ch, _ := pubsub.Subscribe(pid, Status)
	pubsub.Unsubscribe(pid)

	_, ok := <-ch
	assert.Assert(t, !ok, "channel should be closed after Unsubscribe")

	// publishing with no subscribers must not panic
	pubsub.Publish(Status, 1)
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	ch, _ := pubsub.Subscribe(uuid.New(), Status)

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			pubsub.Publish(Status, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Equal(t, len(ch), queueSize)
}
