package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xenolinkco/xenochat/internal/bus"
	"github.com/xenolinkco/xenochat/internal/config"
	"github.com/xenolinkco/xenochat/internal/logging"
)

const telegramChannelName = "telegram"

// TelegramBot is the slice of the bot API the channel uses, extracted so
// tests can inject a fake.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(cfg)
}
func (w *tgBotWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }
func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}
func (w *tgBotWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// BotFactory creates TelegramBot instances, injectable for tests.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel bridges a telegram bot onto the bus. Every chat through
// it addresses the single xenoprofile named in the config; each telegram
// sender becomes their own character.
type TelegramChannel struct {
	BaseChannel
	token      string
	profileID  string
	proxy      string
	bot        TelegramBot
	botFactory BotFactory
	cancel     context.CancelFunc
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.ProfileID == "" {
		return nil, fmt.Errorf("telegram profileId is required")
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		profileID:   cfg.ProfileID,
		proxy:       cfg.Proxy,
		botFactory:  factory,
	}, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	logging.L("telegram").Infow("authorized", "username", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	logging.L("telegram").Infow("polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	log := logging.L("telegram")
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		log.Infow("rejected sender", "senderId", senderID, "username", msg.From.UserName)
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	if content == "" {
		return
	}

	senderName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if senderName == "" {
		senderName = msg.From.UserName
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:       telegramChannelName,
		UserID:        senderID,
		ChatID:        strconv.FormatInt(msg.Chat.ID, 10),
		ProfileID:     t.profileID,
		CharacterID:   "telegram-" + senderID,
		CharacterName: senderName,
		Content:       content,
		Timestamp:     time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"username":   msg.From.UserName,
			"message_id": msg.MessageID,
		},
	}
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	logging.L("telegram").Infow("stopped")
	return nil
}

// SetBot injects a bot directly, bypassing initBot. For tests.
func (t *TelegramChannel) SetBot(bot TelegramBot) { t.bot = bot }

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	// Telegram caps messages at 4096 chars; stay under with headroom.
	const maxLen = 4000
	content := toTelegramHTML(msg.Content)
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			if idx := strings.LastIndex(chunk[:maxLen], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(tgMsg); err != nil {
			// Markup can be rejected; retry the raw text without parse mode.
			tgMsg.ParseMode = ""
			tgMsg.Text = msg.Content
			if _, err2 := t.bot.Send(tgMsg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
			return nil
		}
	}
	return nil
}

// toTelegramHTML converts the markdown subset the model emits into
// Telegram HTML.
func toTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	s = replaceDelimited(s, "```", "<pre>", "</pre>", stripLanguageTag)
	s = replaceDelimited(s, "`", "<code>", "</code>", nil)
	s = replaceDelimited(s, "**", "<b>", "</b>", nil)
	s = replaceDelimited(s, "*", "<i>", "</i>", nil)
	return s
}

// replaceDelimited rewrites each delim...delim span as open+body+close,
// optionally transforming the body first. Unbalanced delimiters are left
// alone.
func replaceDelimited(s, delim, openTag, closeTag string, transform func(string) string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			break
		}
		end += start + len(delim)
		body := s[start+len(delim) : end]
		if transform != nil {
			body = transform(body)
		}
		b.WriteString(s[:start])
		b.WriteString(openTag)
		b.WriteString(body)
		b.WriteString(closeTag)
		s = s[end+len(delim):]
	}
	b.WriteString(s)
	return b.String()
}

// stripLanguageTag drops the language word on the first line of a fenced
// code block.
func stripLanguageTag(code string) string {
	nl := strings.Index(code, "\n")
	if nl < 0 {
		return code
	}
	firstLine := strings.TrimSpace(code[:nl])
	if firstLine != "" && !strings.Contains(firstLine, " ") {
		return code[nl+1:]
	}
	return code
}
