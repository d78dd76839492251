package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Output: io.Discard, Level: logger.ERROR})
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestMessageBuilder(t *testing.T) {
	msg, err := NewMessage().
		WithKey("room-1").
		WithValue(map[string]string{"hello": "world"}).
		WithEventType("booking.created").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "room-1", msg.Key)
	assert.JSONEq(t, `{"hello":"world"}`, string(msg.Value))
	assert.Len(t, msg.GetEventID(), 36)
	assert.NotEmpty(t, msg.Headers[HeaderTimestamp])

	_, err = NewMessage().WithKey("k").WithValue(make(chan int)).Build()
	assert.Error(t, err)
}

func TestRetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	assert.Equal(t, 0, msg.GetRetryCount())
	for i := 0; i < 12; i++ {
		msg.IncrementRetryCount()
	}
	assert.Equal(t, 12, msg.GetRetryCount())
	assert.Equal(t, "12", msg.Headers[HeaderRetryCount])
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknown, ClassifyError(nil))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(errors.New("dial tcp: Connection Refused")))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypePermanent, ClassifyError(errors.New("bad payload")))
	assert.Equal(t, ErrorTypeTransient, ClassifyError(NewTransientError("store", errors.New("x"))))

	assert.True(t, ShouldRetry(errors.New("i/o timeout"), 0, 3))
	assert.False(t, ShouldRetry(errors.New("i/o timeout"), 3, 3))
	assert.False(t, ShouldRetry(errors.New("bad payload"), 0, 3))
}

func TestProducer_Publish(t *testing.T) {
	writer := &fakeWriter{}
	p := newProducerWithWriters("events", writer, nil, testLogger())

	var seen []string
	p.Use(func(ctx context.Context, msg Message, next func(context.Context, Message) error) error {
		seen = append(seen, msg.Topic)
		return next(ctx, msg)
	})

	msg, err := NewMessage().WithKey("room-1").WithValue("v").WithSource("test").Build()
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "room-1", string(writer.messages[0].Key))
	assert.Equal(t, "test", header(writer.messages[0], HeaderSource))
	assert.Equal(t, []string{"events"}, seen)
}

func TestProducer_Validation(t *testing.T) {
	p := newProducerWithWriters("events", &fakeWriter{}, nil, testLogger())

	assert.ErrorIs(t, p.Publish(context.Background(), Message{Value: []byte("x")}), ErrEmptyKey)
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k"}), ErrEmptyValue)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), Message{Key: "k", Value: []byte("x")}), ErrProducerClosed)
}

func TestProducer_DeadLetter(t *testing.T) {
	brokerErr := errors.New("leader not available")
	dlq := &fakeWriter{}
	p := newProducerWithWriters("events", &fakeWriter{err: brokerErr}, dlq, testLogger())

	msg, err := NewMessage().WithKey("room-1").WithValue("v").Build()
	require.NoError(t, err)

	err = p.Publish(context.Background(), msg)
	assert.ErrorIs(t, err, brokerErr)
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "events", header(dlq.messages[0], HeaderOriginalTopic))
	assert.Equal(t, brokerErr.Error(), header(dlq.messages[0], HeaderDLQError))
	assert.Empty(t, msg.Headers[HeaderOriginalTopic], "caller's headers untouched")
}

func TestBookingEventPublisher(t *testing.T) {
	writer := &fakeWriter{}
	pub := &BookingEventPublisher{producer: newProducerWithWriters("room-booking-events", writer, nil, testLogger())}

	occurred := time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC)
	event := &model.BookingEvent{
		Type:       model.EventBookingCreated,
		Booking:    model.Booking{ID: "b1", RoomID: "room-7", UserName: "alice"},
		Actor:      "alice",
		OccurredAt: occurred,
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, writer.messages, 1)
	km := writer.messages[0]
	assert.Equal(t, "room-7", string(km.Key))
	assert.Equal(t, model.EventBookingCreated, header(km, HeaderEventType))
	assert.Equal(t, BookingEventSource, header(km, HeaderSource))
	assert.NotEmpty(t, header(km, HeaderEventID))
	assert.True(t, km.Time.Equal(occurred))

	decoded, err := DecodeBookingEvent(fromKafka(km))
	require.NoError(t, err)
	assert.Equal(t, "b1", decoded.Booking.ID)
	assert.Equal(t, "alice", decoded.Actor)

	assert.ErrorIs(t, pub.Publish(context.Background(), nil), ErrInvalidMessage)
}

func TestDecodeBookingEvent_Malformed(t *testing.T) {
	_, err := DecodeBookingEvent(Message{Value: []byte("{not json"), Headers: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, ErrorTypePermanent, ClassifyError(err))
}

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1"), Offset: 10},
			{Key: []byte("b"), Value: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	var handled []string
	c := newConsumer("events", "group", 3, reader, nil, func(ctx context.Context, msg Message) error {
		handled = append(handled, msg.Key)
		return nil
	}, testLogger())

	err := c.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, handled)
	assert.Equal(t, []int64{10, 11}, reader.committed)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Start(context.Background()), ErrConsumerClosed)
}

func TestConsumer_RetriesTransientThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{{Key: []byte("a"), Value: []byte("1"), Offset: 3}},
		cancel:  cancel,
	}
	dlq := &fakeWriter{}
	attempts := 0
	c := newConsumer("events", "group", 2, reader, dlq, func(ctx context.Context, msg Message) error {
		attempts++
		return errors.New("connection reset by peer")
	}, testLogger())
	c.retryDelay = time.Millisecond

	_ = c.Start(ctx)

	assert.Equal(t, 3, attempts, "first try plus two retries")
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, "group", header(dlq.messages[0], "dlq-consumer-group"))
	assert.Equal(t, "2", header(dlq.messages[0], HeaderRetryCount))
	assert.Equal(t, []int64{3}, reader.committed)
}

func TestConsumer_PermanentErrorSkipsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		pending: []kafka.Message{{Key: []byte("a"), Value: []byte("1"), Offset: 1}},
		cancel:  cancel,
	}
	attempts := 0
	c := newConsumer("events", "group", 5, reader, nil, func(ctx context.Context, msg Message) error {
		attempts++
		return NewPermanentError("decode", errors.New("bad"))
	}, testLogger())

	var order []string
	c.Use(func(ctx context.Context, msg Message, next MessageHandler) error {
		order = append(order, "outer")
		return next(ctx, msg)
	})

	_ = c.Start(ctx)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"outer"}, order)
	assert.Equal(t, []int64{1}, reader.committed)
}
