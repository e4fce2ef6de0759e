package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type fakeConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (f *fakeConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (f *fakeConsumerGroup) Errors() <-chan error {
	return f.errorsCh
}

func (f *fakeConsumerGroup) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	if f.errorsCh != nil {
		close(f.errorsCh)
	}
	return nil
}

func (f *fakeConsumerGroup) Pause(map[string][]int32)  {}
func (f *fakeConsumerGroup) Resume(map[string][]int32) {}
func (f *fakeConsumerGroup) PauseAll()                 {}
func (f *fakeConsumerGroup) ResumeAll()                {}

type fakeGroupSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (f *fakeGroupSession) Claims() map[string][]int32               { return nil }
func (f *fakeGroupSession) MemberID() string                         { return "member" }
func (f *fakeGroupSession) GenerationID() int32                      { return 1 }
func (f *fakeGroupSession) MarkOffset(string, int32, int64, string)  {}
func (f *fakeGroupSession) Commit()                                  {}
func (f *fakeGroupSession) ResetOffset(string, int32, int64, string) {}
func (f *fakeGroupSession) Context() context.Context                 { return f.ctx }
func (f *fakeGroupSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	f.marked = append(f.marked, msg)
}

type fakeGroupClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (f *fakeGroupClaim) Topic() string                            { return TopicOrderEvents }
func (f *fakeGroupClaim) Partition() int32                         { return 0 }
func (f *fakeGroupClaim) InitialOffset() int64                     { return 0 }
func (f *fakeGroupClaim) HighWaterMarkOffset() int64               { return 0 }
func (f *fakeGroupClaim) Messages() <-chan *sarama.ConsumerMessage { return f.messages }

// orderEventMessage собирает сообщение о смене статуса заказа в том виде,
// в каком его публикует outbox worker.
func orderEventMessage(t *testing.T, orderID string, from, to domain.OrderState, retries int) *sarama.ConsumerMessage {
	t.Helper()

	raw, err := json.Marshal(statusEnvelope(t, orderID, from, to))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	msg := &sarama.ConsumerMessage{
		Topic: TopicOrderEvents,
		Key:   []byte(orderID),
		Value: raw,
	}
	if retries > 0 {
		msg.Headers = []*sarama.RecordHeader{
			{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(retries))},
		}
	}
	return msg
}

// collectOrderIDs возвращает handler, который разбирает событие смены
// статуса и копит идентификаторы заказов.
func collectOrderIDs(seen *[]string) MessageHandler {
	return func(_ context.Context, msg *sarama.ConsumerMessage) error {
		envelope, err := ParseEventEnvelope(msg)
		if err != nil {
			return err
		}
		event, err := ParseOrderStatusEvent(envelope)
		if err != nil {
			return err
		}
		*seen = append(*seen, event.OrderID)
		return nil
	}
}

func TestNewConsumerInvalidBrokers(t *testing.T) {
	handler := func(context.Context, *sarama.ConsumerMessage) error { return nil }

	if _, err := NewConsumer([]string{"invalid-broker:9092"}, "group", []string{TopicOrderEvents}, handler); err == nil {
		t.Fatal("expected new consumer error")
	}
	if _, err := NewConsumerWithDLQ([]string{"invalid-broker:9092"}, "group", []string{TopicOrderEvents}, handler, nil, 3); err == nil {
		t.Fatal("expected new consumer with dlq error")
	}
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumeCalls := 0
	errorsCh := make(chan error, 1)
	group := &fakeConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
			consumeCalls++
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}

	consumer := &Consumer{
		consumer:   group,
		topics:     []string{TopicOrderEvents},
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return nil },
		logger:     log.WithField("test", "consumer"),
		maxRetries: 2,
	}

	errorsCh <- errors.New("background error")
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := consumer.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if consumeCalls == 0 {
		t.Fatal("expected consume call")
	}
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	group := &fakeConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := &Consumer{consumer: group, logger: log.WithField("test", "stop")}
	if err := consumer.Stop(); err == nil {
		t.Fatal("expected stop error")
	}
}

func TestConsumerSetupCleanup(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.Setup(nil); err != nil {
		t.Fatalf("setup should return nil: %v", err)
	}
	if err := consumer.Cleanup(nil); err != nil {
		t.Fatalf("cleanup should return nil: %v", err)
	}
}

func TestConsumeClaimProcessesOrderEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	consumer := &Consumer{
		handler:    collectOrderIDs(&seen),
		logger:     log.WithField("test", "claim"),
		maxRetries: 2,
	}

	session := &fakeGroupSession{ctx: ctx}
	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- orderEventMessage(t, "order-1", domain.OrderStateBasket, domain.OrderStateNew, 0)
	claim.messages <- orderEventMessage(t, "order-2", domain.OrderStateNew, domain.OrderStateCanceled, 0)
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if len(session.marked) != 2 {
		t.Fatalf("expected two marked messages, got %d", len(session.marked))
	}
	if len(seen) != 2 || seen[0] != "order-1" || seen[1] != "order-2" {
		t.Fatalf("unexpected processed orders: %v", seen)
	}
}

func TestConsumeClaimPoisonMessageNotMarked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	consumer := &Consumer{
		handler:    collectOrderIDs(&seen),
		logger:     log.WithField("test", "claim-poison"),
		maxRetries: 1,
	}

	session := &fakeGroupSession{ctx: ctx}
	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Key: []byte("order-1"), Value: []byte("not-json")}
	close(claim.messages)

	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim failed: %v", err)
	}
	if len(session.marked) != 0 {
		t.Fatalf("poison message must not be marked, got %d", len(session.marked))
	}
	if len(seen) != 0 {
		t.Fatalf("poison message must not reach collector, got %v", seen)
	}
}

func TestHandleMessageWithRetry(t *testing.T) {
	failing := func(context.Context, *sarama.ConsumerMessage) error { return errors.New("notification rejected") }

	t.Run("success", func(t *testing.T) {
		var seen []string
		consumer := &Consumer{
			handler:    collectOrderIDs(&seen),
			logger:     log.WithField("test", "retry-success"),
			maxRetries: 2,
		}
		msg := orderEventMessage(t, "order-1", domain.OrderStateBasket, domain.OrderStateNew, 0)
		if err := consumer.handleMessageWithRetry(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 1 || seen[0] != "order-1" {
			t.Fatalf("event not processed: %v", seen)
		}
	})

	t.Run("retry below limit requeues", func(t *testing.T) {
		consumer := &Consumer{
			handler:    failing,
			logger:     log.WithField("test", "retry"),
			maxRetries: 3,
		}
		msg := orderEventMessage(t, "order-1", domain.OrderStateNew, domain.OrderStateConfirmed, 1)
		if err := consumer.handleMessageWithRetry(context.Background(), msg); err == nil {
			t.Fatal("expected retry error for redelivery")
		}
	})

	t.Run("exhausted retries without dlq", func(t *testing.T) {
		consumer := &Consumer{
			handler:    failing,
			logger:     log.WithField("test", "max-no-dlq"),
			maxRetries: 3,
		}
		msg := orderEventMessage(t, "order-1", domain.OrderStateNew, domain.OrderStateConfirmed, 3)
		if err := consumer.handleMessageWithRetry(context.Background(), msg); err == nil {
			t.Fatal("expected error when dlq is absent")
		}
	})

	t.Run("exhausted retries go to dlq", func(t *testing.T) {
		dlqProducer, mockSync := newMockedProducer(t)
		msg := orderEventMessage(t, "order-1", domain.OrderStateNew, domain.OrderStateConfirmed, 3)

		mockSync.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
			if !bytes.Equal(value, msg.Value) {
				return errors.New("dlq copy must keep the original envelope")
			}
			return nil
		})

		consumer := &Consumer{
			handler:     failing,
			dlqProducer: dlqProducer,
			logger:      log.WithField("test", "max-dlq"),
			maxRetries:  3,
		}
		if err := consumer.handleMessageWithRetry(context.Background(), msg); err != nil {
			t.Fatalf("unexpected error after dlq publish: %v", err)
		}
		if err := mockSync.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("dlq publish failure", func(t *testing.T) {
		dlqProducer, mockSync := newMockedProducer(t)
		mockSync.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		consumer := &Consumer{
			handler:     failing,
			dlqProducer: dlqProducer,
			logger:      log.WithField("test", "max-dlq-fail"),
			maxRetries:  3,
		}
		msg := orderEventMessage(t, "order-1", domain.OrderStateNew, domain.OrderStateConfirmed, 3)
		if err := consumer.handleMessageWithRetry(context.Background(), msg); err == nil {
			t.Fatal("expected dlq failure")
		}
		if err := mockSync.Close(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestGetRetryCount(t *testing.T) {
	consumer := &Consumer{}

	msg := orderEventMessage(t, "order-1", domain.OrderStateBasket, domain.OrderStateNew, 5)
	if got := consumer.getRetryCount(msg); got != 5 {
		t.Fatalf("unexpected retry count: %d", got)
	}

	msgInvalid := &sarama.ConsumerMessage{Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte("bad")}}}
	if got := consumer.getRetryCount(msgInvalid); got != 0 {
		t.Fatalf("invalid retry count should fallback to 0, got %d", got)
	}
}

func TestParsers(t *testing.T) {
	msg := orderEventMessage(t, "order-1", domain.OrderStateBasket, domain.OrderStateNew, 0)

	parsed, err := ParseEventEnvelope(msg)
	if err != nil {
		t.Fatalf("ParseEventEnvelope failed: %v", err)
	}
	if _, err := ParseEventEnvelope(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected ParseEventEnvelope error")
	}

	event, err := ParseOrderStatusEvent(parsed)
	if err != nil {
		t.Fatalf("ParseOrderStatusEvent failed: %v", err)
	}
	if event.OrderID != "order-1" || event.NewStatus != domain.OrderStateNew {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParseOrderStatusEvent(&EventEnvelope{EventType: "SomethingElse"}); err == nil {
		t.Fatal("expected error for unexpected event type")
	}
}

func TestSendToDLQPreservesOrderEvent(t *testing.T) {
	dlqProducer, mockSync := newMockedProducer(t)

	msg := orderEventMessage(t, "order-1", domain.OrderStateNew, domain.OrderStateSent, 3)
	mockSync.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		envelope, err := ParseEventEnvelope(&sarama.ConsumerMessage{Value: value})
		if err != nil {
			return err
		}
		if _, err := ParseOrderStatusEvent(envelope); err != nil {
			return err
		}
		return nil
	})

	consumer := &Consumer{
		dlqProducer: dlqProducer,
		logger:      log.WithField("test", "consumer-send-dlq"),
	}
	if err := consumer.sendToDLQ(msg, errors.New("boom")); err != nil {
		t.Fatalf("sendToDLQ failed: %v", err)
	}

	if err := mockSync.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := &Consumer{
		handler:    func(context.Context, *sarama.ConsumerMessage) error { return nil },
		logger:     log.WithField("test", "claim-stop"),
		maxRetries: 1,
	}
	session := &fakeGroupSession{ctx: ctx}
	claim := &fakeGroupClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}
