package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gateload/gateload/pkg/types"
	"github.com/gateload/gateload/server/internal/config"
)

// fakeWriter records messages and fails the first failN writes.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	failN  int
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Message(nil), f.msgs...)
}

func newTestKafka(size int, w *fakeWriter) *Kafka {
	k := NewKafka(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "gate-load", BufferSize: size})
	k.w = w
	k.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return k
}

func rec(cp string, n int) types.HistoryRecord {
	return types.HistoryRecord{
		Minute:       time.Date(2026, 3, 14, 9, n, 0, 0, time.UTC),
		CheckpointID: cp,
		Count:        n,
		Level:        types.LevelGreen,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublish_EvictsOldestWhenFull(t *testing.T) {
	k := newTestKafka(2, &fakeWriter{})
	k.Publish(rec("CP1", 1))
	k.Publish(rec("CP1", 2))
	k.Publish(rec("CP1", 3))

	if len(k.buf) != 2 {
		t.Fatalf("buffer len = %d, want 2", len(k.buf))
	}
	if first := <-k.buf; first.Count != 2 {
		t.Errorf("oldest kept = %d, want 2", first.Count)
	}
}

func TestRun_DeliversJSONKeyedByCheckpoint(t *testing.T) {
	w := &fakeWriter{}
	k := newTestKafka(10, w)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { k.Run(ctx); close(done) }()

	k.Publish(rec("CP2", 7))
	waitFor(t, func() bool { return len(w.messages()) == 1 })
	cancel()
	<-done

	m := w.messages()[0]
	if string(m.Key) != "CP2" {
		t.Errorf("key = %q, want CP2", m.Key)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(m.Value, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["checkpoint_id"] != "CP2" || body["n_t"] != float64(7) || body["event_id"] == "" {
		t.Errorf("body = %v", body)
	}
	if body["published_at"] != "2026-03-14T09:00:00Z" {
		t.Errorf("published_at = %v", body["published_at"])
	}
	if !w.closed {
		t.Error("writer not closed on shutdown")
	}
}

func TestRun_RetriesFailedWrites(t *testing.T) {
	w := &fakeWriter{failN: 2}
	k := newTestKafka(10, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go k.Run(ctx)

	k.Publish(rec("CP1", 1))
	k.Publish(rec("CP1", 2))
	// Two failures back off 0.5s then 1s (±25 %) before the first success.
	waitFor(t, func() bool { return len(w.messages()) == 2 })

	msgs := w.messages()
	var first map[string]interface{}
	_ = json.Unmarshal(msgs[0].Value, &first)
	if first["n_t"] != float64(1) {
		t.Errorf("first delivered = %v, want record 1 (order kept)", first["n_t"])
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := newBackoff()
	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := b.next()
		if d > backoffMax+backoffMax/4 {
			t.Fatalf("step %d: %v exceeds cap with jitter", i, d)
		}
		if i < 3 && d < prev/2 {
			t.Errorf("step %d: %v shrank from %v", i, d, prev)
		}
		prev = d
	}
	b.reset()
	if d := b.next(); d > backoffInitial+backoffInitial/4 {
		t.Errorf("after reset: %v, want about %v", d, backoffInitial)
	}
}
