package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docextract/internal/infrastructure/resilience"
)

const workerQueueGroup = "extract-workers"

// jobMessage is the payload published for every submitted extraction job.
type jobMessage struct {
	JobID       string    `json:"job_id"`
	PublishedAt time.Time `json:"published_at"`
}

type Queue struct {
	conn        *nats.Conn
	subject     string
	executor    *resilience.Executor
	subscribers int
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	// Subscribers is the number of queue-group subscriptions a worker opens; each one
	// handles a job at a time.
	Subscribers        int
	ResilienceExecutor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	options = options.withDefaults()

	conn, err := nats.Connect(
		url,
		nats.Name("docextract"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		executor:    options.ResilienceExecutor,
		subscribers: options.Subscribers,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.Subscribers <= 0 {
		o.Subscribers = 1
	}
	return o
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishJobSubmitted(ctx context.Context, jobID string) error {
	payload, err := encodeJob(jobID, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		msg := nats.NewMsg(q.subject)
		msg.Header.Set(nats.MsgIdHdr, strings.TrimSpace(jobID))
		msg.Data = payload
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeJobSubmitted consumes job ids in the shared worker queue group until ctx ends,
// then drains the subscriptions so in-flight jobs finish.
func (q *Queue) SubscribeJobSubmitted(ctx context.Context, handler func(context.Context, string) error) error {
	deliver := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		job, err := decodeJob(msg.Data)
		if err != nil {
			slog.Error("job_message_invalid", "subject", msg.Subject, "error", err)
			return
		}
		slog.Debug("job_message_received", "job_id", job.JobID, "published_at", job.PublishedAt)
		if err := handler(ctx, job.JobID); err != nil {
			slog.Error("job_handler_failed", "job_id", job.JobID, "error", err)
		}
	}

	subs := make([]*nats.Subscription, 0, q.subscribers)
	for range q.subscribers {
		sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, deliver)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("nats subscribe: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	var drainErr error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			drainErr = errors.Join(drainErr, fmt.Errorf("nats drain subscription: %w", err))
		}
	}
	if drainErr != nil {
		return drainErr
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeJob(jobID string, at time.Time) ([]byte, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("nats publish: empty job id")
	}
	data, err := json.Marshal(jobMessage{JobID: jobID, PublishedAt: at.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode job message: %w", err)
	}
	return data, nil
}

// decodeJob accepts the JSON envelope or a bare job id.
func decodeJob(data []byte) (jobMessage, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return jobMessage{}, errors.New("empty job message")
	}
	if !strings.HasPrefix(raw, "{") {
		return jobMessage{JobID: raw}, nil
	}
	var msg jobMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return jobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	msg.JobID = strings.TrimSpace(msg.JobID)
	if msg.JobID == "" {
		return jobMessage{}, errors.New("job message without job_id")
	}
	return msg, nil
}
