// Package pipeline 实现了嵌入流水线的编排：有界工作队列、
// 单消费者执行循环与运行状态机。
package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// Queue 是承载运行 ID 的有界 FIFO 队列。
// 队列满时 Enqueue 阻塞而不是丢弃，保证不会漏掉任何运行。
type Queue struct {
	ch chan uuid.UUID
}

// NewQueue 创建一个容量为 capacity 的队列。
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{ch: make(chan uuid.UUID, capacity)}
}

// Enqueue 入队一个运行 ID，队列满时阻塞直到有空位或 ctx 取消。
func (q *Queue) Enqueue(ctx context.Context, runID uuid.UUID) error {
	select {
	case q.ch <- runID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue 按入队顺序取出一个运行 ID，队列空时阻塞直到有元素或 ctx 取消。
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case runID := <-q.ch:
		return runID, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Len 返回当前排队中的运行数。
func (q *Queue) Len() int {
	return len(q.ch)
}
