package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"pcbrecon/internal/model"
	"pcbrecon/internal/platform/rabbitmq"
)

// MessageStore is where consumed chat messages end up.
type MessageStore interface {
	Create(message *model.ChatMessage) error
}

// HistoryInvalidator drops cached history once a message is persisted.
type HistoryInvalidator interface {
	DeleteHistory(ctx context.Context, projectID uint) error
}

type MessagePersistWorker struct {
	conn      *amqp.Connection
	store     MessageStore
	history   HistoryInvalidator
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, store MessageStore, history HistoryInvalidator, queueName string) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		store:     store,
		history:   history,
		queueName: queueName,
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	// one unacked delivery at a time keeps per-project order
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.Handle(workerCtx, d.Body); err != nil {
					log.Printf("worker %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// Handle persists one queued message.
func (w *MessagePersistWorker) Handle(ctx context.Context, body []byte) error {
	msg, err := rabbitmq.DecodeMessage(body)
	if err != nil {
		return err
	}
	if err := w.store.Create(msg); err != nil {
		return fmt.Errorf("persist message failed: %w", err)
	}
	if w.history != nil {
		if err := w.history.DeleteHistory(ctx, msg.ProjectID); err != nil {
			log.Printf("worker drop history cache failed: %v", err)
		}
	}
	return nil
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
