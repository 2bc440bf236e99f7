package channels

import (
	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	"go.uber.org/zap"
)

// Manager owns the enabled channel adapters, starting them and wiring
// each one's outbound subscription on the bus.
type Manager struct {
	Bus      *bus.MessageBus
	channels map[string]Channel
	log      *zap.SugaredLogger
}

// NewManager builds adapters for every enabled channel in the config.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus, log *zap.SugaredLogger) *Manager {
	m := &Manager{
		Bus:      messageBus,
		channels: make(map[string]Channel),
		log:      log,
	}

	if cfg.Channels.Telegram.Enabled {
		tg := NewTelegramChannel(&cfg.Channels.Telegram, messageBus, log)
		m.channels[tg.Name()] = tg
	}

	return m
}

// StartAll starts every adapter and subscribes it to its outbound
// class. A failing adapter is logged and skipped, not fatal.
func (m *Manager) StartAll() {
	for name, ch := range m.channels {
		if err := ch.Start(); err != nil {
			m.log.Errorw("failed to start channel", "channel", name, "error", err)
			continue
		}
		channel := ch
		m.Bus.SubscribeOutbound(name, func(msg bus.OutboundMessage) {
			if err := channel.Send(msg); err != nil {
				m.log.Errorw("failed to send message", "channel", channel.Name(), "error", err)
			}
		})
		m.log.Infow("channel started", "channel", name)
	}
}

// StopAll stops every adapter.
func (m *Manager) StopAll() {
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.log.Warnw("failed to stop channel", "channel", name, "error", err)
		}
	}
}

// Get returns the adapter registered under name.
func (m *Manager) Get(name string) (Channel, bool) {
	ch, ok := m.channels[name]
	return ch, ok
}

// Enabled lists the names of configured adapters.
func (m *Manager) Enabled() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
