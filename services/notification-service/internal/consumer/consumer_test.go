package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/healthcarepro/clinicbook/libs/db"
	"github.com/healthcarepro/clinicbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memInbox keeps an id only when the claimed work succeeds, like the
// transactional repository does.
type memInbox struct {
	seen map[string]bool
	err  error
}

func newInbox() *memInbox { return &memInbox{seen: map[string]bool{}} }

func (m *memInbox) Claim(_ context.Context, eventID, _ string, fn func(q db.Querier) error) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[eventID] {
		return false, nil
	}
	if err := fn(nil); err != nil {
		return false, err
	}
	m.seen[eventID] = true
	return true, nil
}

type sliceReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

func msg(id, topic string) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Headers: kafkax.EventMeta{EventID: id, EventType: topic}.Headers(),
	}
}

func newConsumer(reader Reader, inbox Inbox, handler Handler) *Consumer {
	c := NewWithReader(reader, zap.NewNop(), inbox, handler)
	c.retry = &backoff.ZeroBackOff{}
	return c
}

func TestRunDedupesByEventID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{
		msgs:   []kafka.Message{msg("e1", "t.a"), msg("e1", "t.a"), msg("e2", "t.b")},
		cancel: cancel,
	}
	var handled []string
	c := newConsumer(reader, newInbox(), func(_ context.Context, m kafka.Message, _ db.Querier) error {
		handled = append(handled, kafkax.ExtractEventMeta(m).EventID)
		return nil
	})

	c.Run(ctx)

	assert.Equal(t, []string{"e1", "e2"}, handled)
	assert.True(t, reader.closed)
}

func TestRunRetriesFailedEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{msgs: []kafka.Message{msg("e1", "t.a")}, cancel: cancel}
	inbox := newInbox()
	calls := 0
	c := newConsumer(reader, inbox, func(context.Context, kafka.Message, db.Querier) error {
		calls++
		if calls < 3 {
			return errors.New("record notification: db down")
		}
		return nil
	})

	c.Run(ctx)

	assert.Equal(t, 3, calls)
	assert.True(t, inbox.seen["e1"])
}

func TestFailedHandlerLeavesEventUnseen(t *testing.T) {
	inbox := newInbox()
	c := newConsumer(nil, inbox, func(context.Context, kafka.Message, db.Querier) error {
		return errors.New("record notification: db down")
	})

	err := c.Process(context.Background(), msg("e1", "t.a"))
	require.Error(t, err)
	assert.False(t, inbox.seen["e1"])

	c.handler = func(context.Context, kafka.Message, db.Querier) error { return nil }
	require.NoError(t, c.Process(context.Background(), msg("e1", "t.a")))
	assert.True(t, inbox.seen["e1"])
}

func TestRunDropsEventAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &sliceReader{msgs: []kafka.Message{msg("e1", "t.a"), msg("e2", "t.a")}, cancel: cancel}
	inbox := newInbox()
	var handled []string
	c := newConsumer(reader, inbox, func(_ context.Context, m kafka.Message, _ db.Querier) error {
		id := kafkax.ExtractEventMeta(m).EventID
		handled = append(handled, id)
		if id == "e1" {
			return errors.New("boom")
		}
		return nil
	})
	c.tries = 2

	c.Run(ctx)

	assert.Equal(t, []string{"e1", "e1", "e2"}, handled)
	assert.False(t, inbox.seen["e1"])
	assert.True(t, inbox.seen["e2"])
}

func TestProcessSkipsHandlerWhenInboxUnavailable(t *testing.T) {
	calls := 0
	inbox := &memInbox{err: errors.New("db down")}
	c := newConsumer(nil, inbox, func(context.Context, kafka.Message, db.Querier) error {
		calls++
		return nil
	})

	assert.Error(t, c.Process(context.Background(), msg("e1", "t.a")))
	assert.Zero(t, calls)
}
