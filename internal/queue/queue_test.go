package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_NilPublisher(t *testing.T) {
	var p *Publisher
	_, err := p.Enqueue(context.Background(), "x", nil)
	assert.Error(t, err)

	_, err = NewPublisher(nil).Enqueue(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestNewJobID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newJobID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "job id collision")
		seen[id] = true
	}
}

// TestWithNATS 测试发布/消费闭环（需要 NATS_URL 环境变量）
func TestWithNATS(t *testing.T) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		t.Skip("NATS_URL not set, skipping queue integration tests")
	}

	nc, err := Connect(natsURL, "queue-test")
	require.NoError(t, err, "NATS 连接失败")
	defer nc.Close()

	got := make(chan Task, 1)
	consumer := NewConsumer(nc, func(_ context.Context, task Task) error {
		got <- task
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	// 给订阅一点建立时间
	time.Sleep(100 * time.Millisecond)

	pub := NewPublisher(nc)
	type payload struct {
		IMApplicationID string `json:"im_application_id"`
	}
	jobID, err := pub.Enqueue(ctx, "contacts.sync", payload{IMApplicationID: "app-1"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	select {
	case task := <-got:
		assert.Equal(t, jobID, task.ID)
		assert.Equal(t, "contacts.sync", task.Kind)
		var p payload
		require.NoError(t, json.Unmarshal(task.Payload, &p))
		assert.Equal(t, "app-1", p.IMApplicationID)
	case <-ctx.Done():
		t.Fatal("task was not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}
