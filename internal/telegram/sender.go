package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is an inline keyboard button. Exactly one of Data and URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Reply is an outbound chat message.
type Reply struct {
	ChatID int64
	// EditMessageID, when non-zero, replaces the text of an existing message
	// instead of sending a new one.
	EditMessageID int
	Text          string
	// Markdown marks Text as MarkdownV2. Literal text must go through Escape.
	Markdown bool
	// Keyboard rows, top to bottom.
	Keyboard [][]Button
}

// Sender delivers replies to the chat platform.
type Sender interface {
	Send(ctx context.Context, r Reply) error
	AnswerCallback(ctx context.Context, queryID string) error
}

// Escape quotes text for use inside a MarkdownV2 reply.
func Escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
}

// BotSender is a Sender backed by the Bot API. It is created once at startup
// and shared by every webhook invocation.
type BotSender struct {
	api    *tgbotapi.BotAPI
	client *http.Client
}

// NewBotSender authenticates against the Bot API with token.
func NewBotSender(token string) (*BotSender, error) {
	return newBotSender(token, tgbotapi.APIEndpoint)
}

// newBotSender talks to endpoint, a format string taking the token and the
// method name.
func newBotSender(token, endpoint string) (*BotSender, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &BotSender{api: api, client: client}, nil
}

// Username is the bot's @handle.
func (s *BotSender) Username() string {
	return s.api.Self.UserName
}

func (s *BotSender) Send(ctx context.Context, r Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markup := keyboardMarkup(r.Keyboard)

	var c tgbotapi.Chattable
	if r.EditMessageID != 0 {
		edit := tgbotapi.NewEditMessageText(r.ChatID, r.EditMessageID, r.Text)
		edit.ReplyMarkup = markup
		if r.Markdown {
			edit.ParseMode = tgbotapi.ModeMarkdownV2
		}
		c = edit
	} else {
		msg := tgbotapi.NewMessage(r.ChatID, r.Text)
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		if r.Markdown {
			msg.ParseMode = tgbotapi.ModeMarkdownV2
		}
		c = msg
	}

	if _, err := s.api.Send(c); err != nil {
		// A repeated button press re-renders the same text.
		if r.EditMessageID != 0 && isNotModified(err) {
			return nil
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// isNotModified reports whether err is Telegram refusing an edit that would
// leave the message unchanged.
func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}

func (s *BotSender) AnswerCallback(ctx context.Context, queryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.Request(tgbotapi.NewCallback(queryID, "")); err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}

// Command is a bot command advertised in the client's command menu.
type Command struct {
	Name        string
	Description string
}

// SetCommands publishes the bot's command menu.
func (s *BotSender) SetCommands(commands []Command) error {
	list := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, c := range commands {
		list = append(list, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	if _, err := s.api.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}

// SetWebhook points the platform at url. A non-empty secret is echoed back by
// the platform in the X-Telegram-Bot-Api-Secret-Token header.
func (s *BotSender) SetWebhook(url, secret string, maxConnections int) error {
	params := tgbotapi.Params{"url": url}
	if secret != "" {
		params["secret_token"] = secret
	}
	if maxConnections > 0 {
		params["max_connections"] = strconv.Itoa(maxConnections)
	}
	params["allowed_updates"] = `["message","callback_query"]`
	if _, err := s.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook registration.
func (s *BotSender) DeleteWebhook(dropPending bool) error {
	if _, err := s.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// Close releases idle connections held by the sender.
func (s *BotSender) Close() {
	s.client.CloseIdleConnections()
}

func keyboardMarkup(rows [][]Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}
