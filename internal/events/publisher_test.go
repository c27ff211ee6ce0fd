package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	evt := New(TypeContactsAssigned, "acc-1", "admin-1", map[string]int{"assigned": 2})
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "acc-1", string(w.msgs[0].Key))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, TypeContactsAssigned, got.Type)
}

func TestKafkaPublisherFallsBackToEventIDKey(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())
	evt := New(TypeReconcileCompleted, "", "", nil)
	require.NoError(t, p.Publish(context.Background(), evt))
	assert.Equal(t, evt.ID, string(w.msgs[0].Key))
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisher(&fakeWriter{err: boom}, zap.NewNop())
	err := p.Publish(context.Background(), New(TypeAccountDeleted, "a", "b", nil))
	assert.ErrorIs(t, err, boom)
}
