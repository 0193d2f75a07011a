// Package transport defines the chat-platform neutral types exchanged between
// the Telegram adapter, the command router and the notifier.
package transport

import "context"

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic thread id, 0 if none
	Private  bool
	FromID   int64
	// FromDisplay is the sender's @username, or their first name when no
	// username is set.
	FromDisplay string
	Text        string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Document is an in-memory file attachment.
type Document struct {
	FileName string
	MIME     string
	Data     []byte
	Caption  string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish the bot's
// command list to the platform menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
