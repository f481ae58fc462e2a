// Package telegram decodes inbound Bot API webhook updates and sends replies.
package telegram

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseErrorKind tells a malformed body apart from one that carries nothing we handle.
type ParseErrorKind int

const (
	Malformed ParseErrorKind = iota
	Unrecognized
)

func (k ParseErrorKind) String() string {
	if k == Unrecognized {
		return "unrecognized"
	}
	return "malformed"
}

type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s update: %s", e.Kind, e.Detail)
}

// Update is one inbound event. It is either a *Message or a *CallbackQuery.
type Update interface {
	// UpdateID is the platform's monotonically increasing update identifier.
	UpdateID() int
	// SenderID is the platform user that caused the update.
	SenderID() int64
	// ChatID is where replies go.
	ChatID() int64
	// Token is what the auth allow-list is matched against: the normalized
	// command for messages, the raw data for callbacks.
	Token() string

	isUpdate()
}

// Message is a text message, possibly a bot command.
type Message struct {
	ID        int
	MessageID int
	From      int64
	Chat      int64
	Text      string
	// Command is the first word of Text, lowercased and without an @BotName
	// suffix. Empty when Text does not start with "/".
	Command string
	Args    string
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID        int
	QueryID   string
	From      int64
	Chat      int64
	MessageID int
	Data      string
}

func (m *Message) UpdateID() int   { return m.ID }
func (m *Message) SenderID() int64 { return m.From }
func (m *Message) ChatID() int64   { return m.Chat }
func (m *Message) Token() string   { return m.Command }
func (*Message) isUpdate()         {}

func (c *CallbackQuery) UpdateID() int   { return c.ID }
func (c *CallbackQuery) SenderID() int64 { return c.From }
func (c *CallbackQuery) ChatID() int64   { return c.Chat }
func (c *CallbackQuery) Token() string   { return c.Data }
func (*CallbackQuery) isUpdate()         {}

// Parse decodes a raw webhook body. It returns a *ParseError with Kind
// Malformed for bodies that are not valid UTF-8 JSON and Unrecognized for
// updates that carry neither a message with a sender nor a callback query.
func Parse(body []byte) (Update, error) {
	if !utf8.Valid(body) {
		return nil, &ParseError{Kind: Malformed, Detail: "body is not valid UTF-8"}
	}
	var raw tgbotapi.Update
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ParseError{Kind: Malformed, Detail: err.Error()}
	}

	switch {
	case raw.Message != nil:
		msg := raw.Message
		if msg.From == nil {
			return nil, &ParseError{Kind: Unrecognized, Detail: "message has no sender"}
		}
		chatID := msg.From.ID
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		command, args := SplitCommand(msg.Text)
		return &Message{
			ID:        raw.UpdateID,
			MessageID: msg.MessageID,
			From:      msg.From.ID,
			Chat:      chatID,
			Text:      msg.Text,
			Command:   command,
			Args:      args,
		}, nil

	case raw.CallbackQuery != nil:
		q := raw.CallbackQuery
		if q.From == nil {
			return nil, &ParseError{Kind: Unrecognized, Detail: "callback query has no sender"}
		}
		cq := &CallbackQuery{
			ID:      raw.UpdateID,
			QueryID: q.ID,
			From:    q.From.ID,
			Chat:    q.From.ID,
			Data:    q.Data,
		}
		if q.Message != nil {
			cq.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				cq.Chat = q.Message.Chat.ID
			}
		}
		return cq, nil
	}

	return nil, &ParseError{Kind: Unrecognized, Detail: "no message or callback query"}
}

// SplitCommand extracts a normalized command token and its arguments from
// message text, so "/Login@RepoBot foo" yields ("/login", "foo").
func SplitCommand(text string) (command, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	token, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		token, rest = text[:i], text[i+1:]
	}
	token, _, _ = strings.Cut(token, "@")
	return strings.ToLower(token), strings.TrimSpace(rest)
}
