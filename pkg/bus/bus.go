package bus

import (
	"sync"

	"go.uber.org/zap"
)

// MessageBus decouples chat channels from the agent core. Inbound and
// outbound sides are independent FIFO queues; delivery is at-most-once and
// best-effort, with no backpressure. A slow subscriber delays only its own
// channel.
type MessageBus struct {
	inbound     chan InboundMessage
	outbound    chan OutboundMessage
	subscribers map[string][]func(OutboundMessage)
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	log         *zap.SugaredLogger
}

// NewMessageBus creates a bus with bounded queues.
func NewMessageBus(log *zap.SugaredLogger) *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, 100),
		outbound:    make(chan OutboundMessage, 100),
		subscribers: make(map[string][]func(OutboundMessage)),
		stopChan:    make(chan struct{}),
		log:         log,
	}
}

// PublishInbound enqueues a message from a channel to the agent.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound exposes the inbound queue; receiving suspends until a
// message is available.
func (b *MessageBus) ConsumeInbound() <-chan InboundMessage {
	return b.inbound
}

// PublishOutbound enqueues a reply from the agent to the channels.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound registers a callback for one destination channel.
// Multiple callbacks per channel are allowed; each gets every message.
func (b *MessageBus) SubscribeOutbound(channel string, callback func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], callback)
}

// DispatchOutbound pulls outbound messages and fans them out to the
// subscribers of the message's channel. Run it in its own goroutine. A
// panicking callback is logged and does not lose the message for the other
// callbacks; a message for an unknown channel is dropped with a warning.
func (b *MessageBus) DispatchOutbound() {
	for {
		select {
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subscribers[msg.Channel]
			b.mu.RUnlock()

			if len(callbacks) == 0 {
				b.log.Warnw("dropping outbound message for unknown channel",
					"channel", msg.Channel, "chat_id", msg.ChatID)
				continue
			}
			for _, cb := range callbacks {
				go b.invoke(cb, msg)
			}
		case <-b.stopChan:
			return
		}
	}
}

func (b *MessageBus) invoke(cb func(OutboundMessage), msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("outbound subscriber panicked", "channel", msg.Channel, "panic", r)
		}
	}()
	cb(msg)
}

// Stop terminates the dispatch loop.
func (b *MessageBus) Stop() {
	b.stopOnce.Do(func() { close(b.stopChan) })
}
