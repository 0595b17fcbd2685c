package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/marketgate/mp-gateway/internal/model"
)

type fakeEvents struct {
	recorded []model.WebhookEvent
	rejected []model.WebhookEvent
	keys     map[string]bool
	topics   []string
}

func newFakeEvents() *fakeEvents { return &fakeEvents{keys: make(map[string]bool)} }

func (f *fakeEvents) RecordDelivery(_ context.Context, ev model.WebhookEvent, topic string, _ []byte) (bool, error) {
	if f.keys[*ev.EventKey] {
		return true, nil
	}
	f.keys[*ev.EventKey] = true
	f.recorded = append(f.recorded, ev)
	f.topics = append(f.topics, topic)
	return false, nil
}

func (f *fakeEvents) RecordRejected(_ context.Context, ev model.WebhookEvent) error {
	f.rejected = append(f.rejected, ev)
	return nil
}

func apiKeyConn() *model.Connection {
	return &model.Connection{
		ID:              7,
		WebhookAuthKind: model.WebhookAuthAPIKey,
		WebhookSecret:   "hook-secret",
	}
}

func orderBody(t *testing.T, extra string) []byte {
	t.Helper()
	body := map[string]any{"event_type": "order.updated", "resource_id": "o-1"}
	if extra != "" {
		body["note"] = extra
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestProcessFirstDeliveryAccepted(t *testing.T) {
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)

	res, err := p.Process(context.Background(), apiKeyConn(),
		Credentials{APIKey: "hook-secret"}, orderBody(t, ""))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.DedupHit {
		t.Fatal("first delivery reported as duplicate")
	}
	if len(store.recorded) != 1 {
		t.Fatalf("recorded = %d, want 1", len(store.recorded))
	}
	ev := store.recorded[0]
	if ev.VerifyStatus != model.VerifyOK || ev.EventType != "order.updated" || ev.RemoteID != "o-1" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.EventKey == nil || *ev.EventKey == "" {
		t.Fatal("accepted delivery missing event key")
	}
	if store.topics[0] != "marketplace.events" {
		t.Fatalf("topic = %q", store.topics[0])
	}
}

func TestProcessRedeliveryIsDedupHit(t *testing.T) {
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)
	conn := apiKeyConn()
	creds := Credentials{APIKey: "hook-secret"}
	body := orderBody(t, "")

	if _, err := p.Process(context.Background(), conn, creds, body); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	res, err := p.Process(context.Background(), conn, creds, body)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if !res.DedupHit {
		t.Fatal("redelivery not detected as duplicate")
	}
	if len(store.recorded) != 1 {
		t.Fatalf("recorded = %d, want 1", len(store.recorded))
	}
}

func TestProcessDifferentBodyIsNewEvent(t *testing.T) {
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)
	conn := apiKeyConn()
	creds := Credentials{APIKey: "hook-secret"}

	if _, err := p.Process(context.Background(), conn, creds, orderBody(t, "first")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	res, err := p.Process(context.Background(), conn, creds, orderBody(t, "second"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.DedupHit {
		t.Fatal("distinct body treated as duplicate")
	}
}

func TestProcessBadAPIKeyRejected(t *testing.T) {
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)

	_, err := p.Process(context.Background(), apiKeyConn(),
		Credentials{APIKey: "wrong"}, orderBody(t, ""))
	if !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("err = %v, want ErrVerifyFailed", err)
	}
	if len(store.rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(store.rejected))
	}
	ev := store.rejected[0]
	if ev.VerifyStatus != model.VerifyFailed || ev.EventKey != nil {
		t.Fatalf("rejected event = %+v", ev)
	}
	if len(store.recorded) != 0 {
		t.Fatal("rejected delivery entered dedup space")
	}
}

func TestProcessBasicAuth(t *testing.T) {
	conn := &model.Connection{
		ID:              8,
		WebhookAuthKind: model.WebhookAuthBasic,
		WebhookSecret:   "hook:pass",
	}
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)

	if _, err := p.Process(context.Background(), conn,
		Credentials{BasicUser: "hook", BasicPass: "pass"}, orderBody(t, "")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	_, err := p.Process(context.Background(), conn,
		Credentials{BasicUser: "hook", BasicPass: "nope"}, orderBody(t, ""))
	if !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("err = %v, want ErrVerifyFailed", err)
	}
}

func TestProcessMissingFieldsRejected(t *testing.T) {
	store := newFakeEvents()
	p := NewProcessor(store, "marketplace.events", nil)

	_, err := p.Process(context.Background(), apiKeyConn(),
		Credentials{APIKey: "hook-secret"}, []byte(`{"event_type":"order.updated"}`))
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}
