package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix namespaces every task subject: gitmaya.tasks.<kind>.
	SubjectPrefix = "gitmaya.tasks."
	// WorkerGroup is the queue group name; NATS delivers each task to exactly
	// one member of the group.
	WorkerGroup = "gitmaya-workers"
)

// Task is one queued job envelope.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// maxRetries bounds redelivery of tasks whose handler keeps failing.
const maxRetries = 3

// Connect dials NATS with reconnect buffering suited to a relay that must not
// drop enqueues during short broker restarts.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}

// Publisher enqueues tasks. A nil Publisher is tolerated and drops tasks,
// mirroring the store's nil-DB behavior for partially configured deployments.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Enqueue publishes one task and returns its job id.
func (p *Publisher) Enqueue(ctx context.Context, kind string, payload any) (string, error) {
	if p == nil || p.nc == nil {
		return "", errors.New("queue not connected")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}
	t := Task{
		ID:         newJobID(),
		Kind:       kind,
		Payload:    body,
		EnqueuedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	if err := p.nc.Publish(SubjectPrefix+kind, b); err != nil {
		return "", err
	}
	return t.ID, nil
}

// HandlerFunc executes one task. A returned error requeues the task by
// re-publishing it; returning nil acknowledges it.
type HandlerFunc func(ctx context.Context, t Task) error

// Consumer pulls tasks from the queue group and executes them one at a time.
type Consumer struct {
	nc      *nats.Conn
	handler HandlerFunc
}

func NewConsumer(nc *nats.Conn, handler HandlerFunc) *Consumer {
	return &Consumer{nc: nc, handler: handler}
}

// Run blocks, processing one message to completion before fetching the next.
// It returns when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.nc == nil {
		return errors.New("queue not connected")
	}
	sub, err := c.nc.QueueSubscribeSync(SubjectPrefix+">", WorkerGroup)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		var t Task
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			// Malformed envelope: nothing to retry, drop it.
			continue
		}
		if err := c.handler(ctx, t); err != nil && t.Retries < maxRetries {
			// Store-level failures re-publish for redelivery; the handler is
			// responsible for absorbing everything it does not want retried.
			t.Retries++
			if b, merr := json.Marshal(t); merr == nil {
				_ = c.nc.Publish(msg.Subject, b)
			}
		}
	}
}

func newJobID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000")
	}
	return hex.EncodeToString(b)
}
