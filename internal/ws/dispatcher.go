package ws

import (
	"sync"

	"bitget-connector/pkg/logger"
	"bitget-connector/pkg/metrics"
	"bitget-connector/pkg/schema"
)

// Consumer receives channel data frames for one subscription.
type Consumer func(frame schema.Frame)

const defaultQueueSize = 64

// consumerQueue isolates one consumer behind a buffered queue so a slow
// consumer never blocks delivery to the others or the read loop.
type consumerQueue struct {
	fn   Consumer
	ch   chan schema.Frame
	done chan struct{}
}

func newConsumerQueue(fn Consumer, size int) *consumerQueue {
	q := &consumerQueue{
		fn:   fn,
		ch:   make(chan schema.Frame, size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *consumerQueue) run() {
	for {
		select {
		case f := <-q.ch:
			q.fn(f)
		case <-q.done:
			// 排空剩余帧后退出
			for {
				select {
				case f := <-q.ch:
					q.fn(f)
				default:
					return
				}
			}
		}
	}
}

// enqueue delivers at most once; a full queue drops the frame for this
// consumer only.
func (q *consumerQueue) enqueue(f schema.Frame) bool {
	select {
	case q.ch <- f:
		return true
	default:
		return false
	}
}

func (q *consumerQueue) stop() {
	close(q.done)
}

// Dispatcher routes channel data frames to registered consumers by
// (instType, channel, instId). Single-writer (subscribe/unsubscribe calls),
// multi-reader (the read loop).
type Dispatcher struct {
	mu        sync.RWMutex
	consumers map[string][]*consumerQueue // key -> registration order
	queueSize int
}

func NewDispatcher(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		consumers: make(map[string][]*consumerQueue),
		queueSize: queueSize,
	}
}

// Register adds a consumer for one subscription key. Consumers for the same
// key are invoked in registration order.
func (d *Dispatcher) Register(sub schema.Subscription, fn Consumer) {
	if fn == nil {
		return
	}
	key := sub.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumers[key] = append(d.consumers[key], newConsumerQueue(fn, d.queueSize))
}

// Unregister drops every consumer for the subscription.
func (d *Dispatcher) Unregister(sub schema.Subscription) {
	key := sub.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range d.consumers[key] {
		q.stop()
	}
	delete(d.consumers, key)
}

// Dispatch routes one channel data frame. The exact key is tried first; when
// the exchange omits instId the normalized key already is the "default" one.
// A key with no exact match falls back to the "default" catch-all for the
// same (instType, channel); a frame matching nothing is dropped and counted.
func (d *Dispatcher) Dispatch(frame schema.Frame) {
	sub := frame.Arg.Subscription()
	d.mu.RLock()
	queues := d.consumers[sub.Key()]
	if len(queues) == 0 && sub.InstID != schema.DefaultInstID {
		fallback := schema.Subscription{InstType: sub.InstType, Channel: sub.Channel, InstID: schema.DefaultInstID}
		queues = d.consumers[fallback.Key()]
	}
	d.mu.RUnlock()

	if len(queues) == 0 {
		metrics.RecordDroppedFrame("no_consumer")
		if logger.IsDebugEnabled() {
			logger.Debug("丢弃无人订阅的推送: %s", sub.Key())
		}
		return
	}
	for _, q := range queues {
		if !q.enqueue(frame) {
			metrics.RecordDroppedFrame("queue_full")
			logger.Warn("消费队列已满,丢帧: %s", sub.Key())
		}
	}
}

// Close stops every consumer queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, queues := range d.consumers {
		for _, q := range queues {
			q.stop()
		}
	}
	d.consumers = make(map[string][]*consumerQueue)
}
