package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishMarshalsEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, "", logging.NewLogger("test", "kafka"), metrics.NewMetrics("test"))

	event := map[string]float64{"total": 505}
	if err := p.Publish(context.Background(), "explain", "SPY240621C00500000", event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "explain" || string(msg.Key) != "SPY240621C00500000" {
		t.Errorf("topic/key = %q/%q", msg.Topic, msg.Key)
	}
	var got map[string]float64
	if err := json.Unmarshal(msg.Value, &got); err != nil || got["total"] != 505 {
		t.Errorf("value = %s (%v)", msg.Value, err)
	}
}

func TestPublishFailureGoesToDLQ(t *testing.T) {
	boom := errors.New("broker unavailable")
	w := &fakeWriter{err: boom}
	dlq := &fakeWriter{}
	p := newProducer(w, dlq, "explain.dlq", logging.NewLogger("test", "kafka"), nil)

	if err := p.PublishRaw(context.Background(), "explain", []byte("k"), []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(dlq.msgs) != 1 || dlq.msgs[0].Topic != "explain.dlq" {
		t.Errorf("dlq messages = %+v", dlq.msgs)
	}
}

type fakeReader struct {
	msgs      []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(context.Context) (kafkago.Message, error) {
	if len(r.msgs) == 0 {
		return kafkago.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumeCommitsOnlySuccessfulMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafkago.Message{
		{Topic: "fills", Offset: 1, Value: []byte("ok")},
		{Topic: "fills", Offset: 2, Value: []byte("bad")},
		{Topic: "fills", Offset: 3, Value: []byte("ok")},
	}}
	c := &Consumer{reader: r, logger: logging.NewLogger("test", "kafka")}

	var handled int
	err := c.Consume(context.Background(), func(_ context.Context, m kafkago.Message) error {
		handled++
		if string(m.Value) == "bad" {
			return errors.New("rejected")
		}
		return nil
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Consume returned %v, want io.EOF", err)
	}
	if handled != 3 {
		t.Errorf("handled = %d, want 3", handled)
	}
	if len(r.committed) != 2 || r.committed[0] != 1 || r.committed[1] != 3 {
		t.Errorf("committed = %v, want [1 3]", r.committed)
	}
}

func TestHeaderCarrier(t *testing.T) {
	var headers []kafkago.Header
	c := (*headerCarrier)(&headers)
	c.Set("traceparent", "00-a-b-01")
	c.Set("traceparent", "00-c-d-01")
	c.Set("baggage", "desk=vol")

	if len(headers) != 2 {
		t.Fatalf("headers = %v, want 2 entries", headers)
	}
	if got := c.Get("traceparent"); got != "00-c-d-01" {
		t.Errorf("traceparent = %q", got)
	}
	if got := c.Get("missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
	if keys := c.Keys(); len(keys) != 2 || keys[1] != "baggage" {
		t.Errorf("keys = %v", keys)
	}
}
