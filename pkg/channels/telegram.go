package channels

import (
	"fmt"
	"strconv"

	"github.com/calicobot/calico/pkg/bus"
	"github.com/calicobot/calico/pkg/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramChannel is the Telegram adapter built on long polling.
type TelegramChannel struct {
	BaseChannel
	Config  *config.TelegramConfig
	bot     *tgbotapi.BotAPI
	running bool
	log     *zap.SugaredLogger
}

// NewTelegramChannel creates the Telegram adapter.
func NewTelegramChannel(cfg *config.TelegramConfig, messageBus *bus.MessageBus, log *zap.SugaredLogger) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			Bus:       messageBus,
			AllowFrom: cfg.AllowFrom,
		},
		Config: cfg,
		log:    log,
	}
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

// Start authorizes the bot and begins consuming updates.
func (c *TelegramChannel) Start() error {
	if !c.Config.Enabled || c.Config.Token == "" {
		return nil
	}

	var err error
	c.bot, err = tgbotapi.NewBotAPI(c.Config.Token)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c.log.Infow("telegram bot authorized", "account", c.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := c.bot.GetUpdatesChan(u)
	c.running = true

	go func() {
		for update := range updates {
			if !c.running {
				break
			}
			if update.Message == nil {
				continue
			}
			c.handleUpdate(update)
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop() error {
	c.running = false
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
	}
	return nil
}

// Send delivers one outbound message to its Telegram chat.
func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if c.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %s", msg.ChatID)
	}
	if msg.Content == "" {
		return nil
	}

	reply := tgbotapi.NewMessage(chatID, msg.Content)
	_, err = c.bot.Send(reply)
	return err
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = fmt.Sprintf("%s|%s", senderID, msg.From.UserName)
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}

	if msg.IsCommand() && msg.Command() == "start" {
		reply := tgbotapi.NewMessage(msg.Chat.ID, "👋 Hi! I'm calico.\n\nSend me a message and I'll respond!")
		if _, err := c.bot.Send(reply); err != nil {
			c.log.Warnw("failed to send start reply", "error", err)
		}
		return
	}

	var media []string
	if msg.Photo != nil {
		content = "[Photo received]"
	} else if msg.Voice != nil {
		content = "[Voice received]"
	}
	if content == "" {
		content = "[Empty message]"
	}

	metadata := map[string]interface{}{
		"message_id": msg.MessageID,
		"username":   msg.From.UserName,
		"first_name": msg.From.FirstName,
	}

	c.HandleMessage(c.Name(), senderID, chatID, content, media, metadata)
}
