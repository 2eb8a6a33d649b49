package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"spectrum-club/internal/apperr"
	"spectrum-club/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type ackResult struct {
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	results map[uint64]ackResult
	done    chan struct{}
}

func newFakeAcknowledger(expected int) *fakeAcknowledger {
	return &fakeAcknowledger{results: map[uint64]ackResult{}, done: make(chan struct{}, expected)}
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.record(tag, ackResult{acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.record(tag, ackResult{requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.record(tag, ackResult{requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) record(tag uint64, r ackResult) {
	a.mu.Lock()
	a.results[tag] = r
	a.mu.Unlock()
	a.done <- struct{}{}
}

func (a *fakeAcknowledger) result(tag uint64) ackResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results[tag]
}

type chanSource struct {
	ch chan amqp.Delivery
}

func (s chanSource) Deliveries(context.Context) (<-chan amqp.Delivery, error) {
	return s.ch, nil
}

type scriptedProvisioning struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string][]error
}

func (p *scriptedProvisioning) HandlePaymentSucceeded(_ context.Context, event models.PaymentSucceeded) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls[event.EventID]
	p.calls[event.EventID]++
	if script := p.results[event.EventID]; n < len(script) && script[n] != nil {
		return false, script[n]
	}
	return true, nil
}

func (p *scriptedProvisioning) callCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, key string, event any) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, RoutingKey: key, Body: body}
}

func TestPaymentConsumer_AckNackByOutcome(t *testing.T) {
	programID := int64(1)
	provisioning := &scriptedProvisioning{
		calls: map[string]int{},
		results: map[string][]error{
			"retry-then-ok": {apperr.ErrConflict, apperr.ErrConflict},
			"always-busy":   {apperr.ErrConflict, apperr.ErrConflict, apperr.ErrConflict},
			"bad-program":   {apperr.ErrNotFound},
		},
	}

	source := chanSource{ch: make(chan amqp.Delivery, 8)}
	c := NewPaymentConsumer(source, provisioning, zaptest.NewLogger(t))
	c.maxTries = 3
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	ack := newFakeAcknowledger(6)
	event := func(id string) models.PaymentSucceeded {
		return models.PaymentSucceeded{EventID: id, UserID: 1, Kind: models.PackageSessions, ProgramID: &programID, Sessions: 8}
	}
	source.ch <- delivery(t, ack, 1, RKPaymentSucceeded, event("ok"))
	source.ch <- delivery(t, ack, 2, RKPaymentSucceeded, event("retry-then-ok"))
	source.ch <- delivery(t, ack, 3, RKPaymentSucceeded, event("always-busy"))
	source.ch <- delivery(t, ack, 4, RKPaymentSucceeded, event("bad-program"))
	source.ch <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 5, RoutingKey: RKPaymentSucceeded, Body: []byte("{")}
	source.ch <- delivery(t, ack, 6, "payment.refunded", event("ignored"))
	close(source.ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	for i := 0; i < 6; i++ {
		<-ack.done
	}

	assert.Equal(t, ackResult{acked: true}, ack.result(1))
	assert.Equal(t, ackResult{acked: true}, ack.result(2))
	assert.Equal(t, ackResult{requeue: true}, ack.result(3), "conflict after max tries goes back to the queue")
	assert.Equal(t, ackResult{requeue: false}, ack.result(4))
	assert.Equal(t, ackResult{requeue: false}, ack.result(5), "malformed body is dead-lettered")
	assert.Equal(t, ackResult{acked: true}, ack.result(6))

	assert.Equal(t, 3, provisioning.callCount("retry-then-ok"))
	assert.Equal(t, 3, provisioning.callCount("always-busy"))
	assert.Equal(t, 1, provisioning.callCount("bad-program"))
	assert.Zero(t, provisioning.callCount("ignored"))
}

func TestPaymentConsumer_StopsOnContextCancel(t *testing.T) {
	source := chanSource{ch: make(chan amqp.Delivery)}
	c := NewPaymentConsumer(source, &scriptedProvisioning{calls: map[string]int{}}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
