package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acks, nacks int
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	f.nacks++
	return nil
}

// knownResolver resolves every candidate whose text is in names.
type knownResolver struct {
	names map[string]string
	opts  int
}

func (k *knownResolver) ResolveBatch(ctx context.Context, candidates []common.Candidate, opts ...resolver.BatchOption) ([]common.ResolvedEntity, []common.Candidate) {
	k.opts = len(opts)
	resolved := []common.ResolvedEntity{}
	unresolved := []common.Candidate{}
	for _, c := range candidates {
		if name, ok := k.names[c.Text]; ok {
			resolved = append(resolved, common.ResolvedEntity{
				OriginalText: c.Text,
				ResolvedName: name,
				NodeType:     "Medicament",
				MatchScore:   1,
				MatchMethod:  common.MatchDirect,
			})
			continue
		}
		unresolved = append(unresolved, c)
	}
	return resolved, unresolved
}

func TestProcessResolveMessage(t *testing.T) {
	r := &knownResolver{names: map[string]string{"tylenol": "Acetaminophen"}}
	body := []byte(`{"batch_id":"b1","candidates":[{"text":"tylenol","category":"medication"},{"text":"xyz","category":"SYMPTOM"}],"workers":2}`)

	reply, err := ProcessResolveMessage(context.Background(), r, body)
	if err != nil {
		t.Fatalf("ProcessResolveMessage: %v", err)
	}
	if reply.BatchID != "b1" {
		t.Fatalf("expected batch id b1, got %q", reply.BatchID)
	}
	if len(reply.Resolved) != 1 || reply.Resolved[0].ResolvedName != "Acetaminophen" {
		t.Fatalf("unexpected resolved %+v", reply.Resolved)
	}
	if len(reply.Unresolved) != 1 || reply.Unresolved[0].Category != common.CategorySymptom {
		t.Fatalf("unexpected unresolved %+v", reply.Unresolved)
	}
	if r.opts != 2 {
		t.Fatalf("expected batch id and workers options, got %d", r.opts)
	}
}

func TestProcessResolveMessageGeneratesBatchID(t *testing.T) {
	reply, err := ProcessResolveMessage(context.Background(), &knownResolver{}, []byte(`{"candidates":[]}`))
	if err != nil {
		t.Fatalf("ProcessResolveMessage: %v", err)
	}
	if reply.BatchID == "" {
		t.Fatal("expected generated batch id")
	}
}

func TestProcessResolveMessageMalformed(t *testing.T) {
	tests := []string{
		`not json`,
		`{"candidates":[{"text":"x","category":"FOOD"}]}`,
	}
	for _, body := range tests {
		_, err := ProcessResolveMessage(context.Background(), &knownResolver{}, []byte(body))
		if !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%q: expected malformed message error, got %v", body, err)
		}
	}
}

func TestHandleDeliveryReplies(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	h := &Handler{
		Resolver:   &knownResolver{names: map[string]string{"tylenol": "Acetaminophen"}},
		Publisher:  pub,
		QueueName:  "resolve_queue",
		MaxRetries: 3,
	}

	h.HandleDelivery(context.Background(), amqp091.Delivery{
		Acknowledger:  ack,
		ReplyTo:       "amq.rabbitmq.reply-to",
		CorrelationId: "corr-1",
		Body:          []byte(`{"candidates":[{"text":"tylenol","category":"MEDICATION"}]}`),
	})

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected one ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(pub.sent))
	}
	sent := pub.sent[0]
	if sent.key != "amq.rabbitmq.reply-to" || sent.msg.CorrelationId != "corr-1" {
		t.Fatalf("reply not routed to caller: %+v", sent)
	}
	var reply QueueResolveReplyMsg
	if err := json.Unmarshal(sent.msg.Body, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if len(reply.Resolved) != 1 || reply.Resolved[0].OriginalText != "tylenol" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestHandleDeliveryWithoutReplyTo(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	h := &Handler{Resolver: &knownResolver{}, Publisher: pub, QueueName: "resolve_queue"}

	h.HandleDelivery(context.Background(), amqp091.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"candidates":[{"text":"x","category":"NUTRIENT"}]}`),
	})
	if ack.acks != 1 || len(pub.sent) != 0 {
		t.Fatalf("expected silent ack, got acks=%d sent=%d", ack.acks, len(pub.sent))
	}
}

func TestHandleDeliveryMalformedGoesToDLQ(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	h := &Handler{Resolver: &knownResolver{}, Publisher: pub, QueueName: "resolve_queue", MaxRetries: 5}

	h.HandleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(`{`)})

	if len(pub.sent) != 1 || pub.sent[0].key != "resolve_queue_dlq" {
		t.Fatalf("expected message in dlq, got %+v", pub.sent)
	}
	if ack.acks != 1 {
		t.Fatalf("expected original message to be acked, got %d", ack.acks)
	}
}

// replyFailer fails replies but accepts retry and dlq publishes.
type replyFailer struct {
	fakePublisher
}

func (r *replyFailer) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if key == "reply" {
		return errors.New("channel closed")
	}
	return r.fakePublisher.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func TestHandleDeliveryRetriesFailedReply(t *testing.T) {
	tests := []struct {
		name      string
		retries   int32
		wantQueue string
		wantCount int32
	}{
		{"first failure", 0, "resolve_queue_retry", 1},
		{"exhausted", 2, "resolve_queue_dlq", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &replyFailer{}
			ack := &fakeAck{}
			h := &Handler{Resolver: &knownResolver{}, Publisher: pub, QueueName: "resolve_queue", MaxRetries: 2}

			h.HandleDelivery(context.Background(), amqp091.Delivery{
				Acknowledger: ack,
				ReplyTo:      "reply",
				Headers:      amqp091.Table{"x-retries": tt.retries},
				Body:         []byte(`{"candidates":[]}`),
			})

			if len(pub.sent) != 1 || pub.sent[0].key != tt.wantQueue {
				t.Fatalf("expected publish to %s, got %+v", tt.wantQueue, pub.sent)
			}
			if got := pub.sent[0].msg.Headers["x-retries"]; got != tt.wantCount {
				t.Fatalf("expected x-retries %d, got %v", tt.wantCount, got)
			}
			if ack.acks != 1 {
				t.Fatalf("expected ack after rerouting, got %d", ack.acks)
			}
		})
	}
}

func TestHandleDeliveryNacksWhenRerouteFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	ack := &fakeAck{}
	h := &Handler{Resolver: &knownResolver{}, Publisher: pub, QueueName: "resolve_queue"}

	h.HandleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(`oops`)})
	if ack.nacks != 1 || ack.acks != 0 {
		t.Fatalf("expected requeue via nack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

type fakeDeclarer struct {
	declared map[string]amqp091.Table
}

func (f *fakeDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	f.declared[name] = args
	return amqp091.Queue{Name: name}, nil
}

func TestSetupQueues(t *testing.T) {
	d := &fakeDeclarer{declared: map[string]amqp091.Table{}}
	if err := SetupQueues(d, []string{"resolve_queue"}, 10*time.Second); err != nil {
		t.Fatalf("SetupQueues: %v", err)
	}
	for _, name := range []string{"resolve_queue", "resolve_queue_dlq", "resolve_queue_retry"} {
		if _, ok := d.declared[name]; !ok {
			t.Fatalf("expected %s to be declared", name)
		}
	}
	retry := d.declared["resolve_queue_retry"]
	if retry["x-dead-letter-routing-key"] != "resolve_queue" || retry["x-message-ttl"] != int32(10000) {
		t.Fatalf("unexpected retry queue args %v", retry)
	}
}
