package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/resolver"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

// ErrMalformedMessage marks messages that can never succeed. They go to the
// dead-letter queue without retries.
var ErrMalformedMessage = errors.New("malformed resolve message")

type QueueCandidateMsg struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type QueueResolveMsg struct {
	BatchID    string              `json:"batch_id,omitempty"`
	Candidates []QueueCandidateMsg `json:"candidates"`
	Workers    int                 `json:"workers,omitempty"`
	Memoize    bool                `json:"memoize,omitempty"`
}

type QueueResolveReplyMsg struct {
	BatchID    string                  `json:"batch_id"`
	Resolved   []common.ResolvedEntity `json:"resolved"`
	Unresolved []common.Candidate      `json:"unresolved"`
}

// BatchResolver is implemented by *resolver.Resolver.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, candidates []common.Candidate, opts ...resolver.BatchOption) ([]common.ResolvedEntity, []common.Candidate)
}

// ProcessResolveMessage decodes a resolve request and runs the batch.
func ProcessResolveMessage(
	ctx context.Context,
	r BatchResolver,
	body []byte,
) (*QueueResolveReplyMsg, error) {
	var data QueueResolveMsg
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	candidates := make([]common.Candidate, 0, len(data.Candidates))
	for i, c := range data.Candidates {
		category, err := common.ParseCategory(c.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrMalformedMessage, i, err)
		}
		candidates = append(candidates, common.Candidate{Text: c.Text, Category: category})
	}

	if data.BatchID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		data.BatchID = id
	}

	opts := []resolver.BatchOption{resolver.WithBatchID(data.BatchID)}
	if data.Workers > 0 {
		opts = append(opts, resolver.WithWorkers(data.Workers))
	}
	if data.Memoize {
		opts = append(opts, resolver.WithMemoization(true))
	}

	resolved, unresolved := r.ResolveBatch(ctx, candidates, opts...)
	return &QueueResolveReplyMsg{
		BatchID:    data.BatchID,
		Resolved:   resolved,
		Unresolved: unresolved,
	}, nil
}

// Handler processes deliveries of one resolve queue.
type Handler struct {
	Resolver   BatchResolver
	Publisher  Publisher
	QueueName  string
	MaxRetries int
}

// HandleDelivery resolves msg, replies to msg.ReplyTo when set and acks.
// Malformed messages go straight to the dead-letter queue, failed replies
// are retried via the retry queue.
func (h *Handler) HandleDelivery(ctx context.Context, msg amqp091.Delivery) {
	startTime := time.Now()
	logger.Info("[Queue] Received message", "queue", h.QueueName, "correlation_id", msg.CorrelationId)

	reply, err := ProcessResolveMessage(ctx, h.Resolver, msg.Body)
	if err == nil && msg.ReplyTo != "" {
		err = h.reply(ctx, msg, reply)
	}

	if err != nil {
		logger.Error("[Queue] Error processing message", "queue", h.QueueName, "err", err)
		h.handleProcessingError(ctx, msg, errors.Is(err, ErrMalformedMessage))
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info(
		"[Queue] Message processed successfully",
		"queue", h.QueueName,
		"batch_id", reply.BatchID,
		"resolved", len(reply.Resolved),
		"unresolved", len(reply.Unresolved),
		"duration", time.Since(startTime),
	)
}

func (h *Handler) reply(ctx context.Context, msg amqp091.Delivery, reply *QueueResolveReplyMsg) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return h.Publisher.PublishWithContext(
		ctx,
		"",
		msg.ReplyTo,
		false,
		false,
		amqp091.Publishing{
			ContentType:   "application/json",
			CorrelationId: msg.CorrelationId,
			Body:          body,
			Timestamp:     time.Now(),
		},
	)
}

func retriesOf(msg amqp091.Delivery) int {
	switch v := msg.Headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func (h *Handler) handleProcessingError(ctx context.Context, msg amqp091.Delivery, permanent bool) {
	retries := retriesOf(msg)

	if permanent || retries >= h.MaxRetries {
		dlqName := h.QueueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName, "retries", retries)
		pubErr := h.Publisher.PublishWithContext(
			ctx,
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType:   msg.ContentType,
				CorrelationId: msg.CorrelationId,
				ReplyTo:       msg.ReplyTo,
				Body:          msg.Body,
				Headers:       msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := h.QueueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := h.Publisher.PublishWithContext(
		ctx,
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType:   msg.ContentType,
			CorrelationId: msg.CorrelationId,
			ReplyTo:       msg.ReplyTo,
			Body:          msg.Body,
			Headers:       headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
