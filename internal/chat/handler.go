// Package chat turns inbound text messages into replies. A user is
// Unregistered until their first plain-text message, which becomes their
// name; registered users can list their processes and run deadline checks.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"procbot/internal/clock"
	"procbot/internal/deadline"
	"procbot/internal/eventbus"
	"procbot/internal/messenger"
	"procbot/internal/storage"
	"procbot/internal/transport"
	logx "procbot/pkg/logx"
)

// Replier sends a reply into the chat a message came from.
type Replier interface {
	SendTo(ctx context.Context, to transport.ChatTarget, text string) messenger.Result
}

type Config struct {
	// Offsets are listed in /my; the reminder engine schedules from the same list.
	Offsets  []int
	Location *time.Location
	// Timeout bounds the handling of one inbound message.
	Timeout time.Duration
}

type Request struct {
	Update   transport.Update
	Chat     transport.ChatTarget
	FromID   int64
	Username string
	Text     string
	// IsCommand is set for any text starting with "/", even a bare one.
	IsCommand bool
	// Command is the lowercased command without the leading slash or
	// @botname suffix; empty for plain text and for a bare "/".
	Command string
	Args    string
	ReqID   string
	Logger  logx.Logger
}

type Handler struct {
	store storage.Store
	reply Replier
	bus   eventbus.Bus
	log   logx.Logger
	cfg   Config
}

func New(cfg Config, store storage.Store, reply Replier, bus eventbus.Bus, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Handler{store: store, reply: reply, bus: bus, log: log, cfg: cfg}
}

// parseCommand splits "/check@procbot 15-12-2025 09:00" into ("check",
// "15-12-2025 09:00", true). The head ends at the first whitespace of any
// kind. Plain text yields ok=false.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	head = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Handle applies one inbound message to the session state machine.
func (h *Handler) Handle(ctx context.Context, req *Request) error {
	if req.Text == "" {
		return nil
	}
	if req.Command == "start" {
		h.send(ctx, req, onboardingText)
		return nil
	}

	user, err := h.store.GetUser(ctx, req.FromID)
	registered := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get user: %w", err)
	}

	if !registered {
		if req.IsCommand {
			h.send(ctx, req, helpText(false))
			return nil
		}
		return h.register(ctx, req)
	}

	switch req.Command {
	case "my":
		return h.listProcesses(ctx, req, user)
	case "check":
		return h.check(ctx, req, user)
	default:
		h.send(ctx, req, helpText(true))
		return nil
	}
}

func (h *Handler) register(ctx context.Context, req *Request) error {
	name := strings.TrimSpace(req.Text)
	u, err := h.store.UpsertUser(ctx, req.FromID, name, req.Username)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	req.Logger.Info("user registered", logx.Int64("telegram_id", u.TelegramID), logx.String("name", u.Name))
	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: eventbus.TypeUserRegistered, Data: u.TelegramID})
	}
	h.send(ctx, req, registeredText(u.Name))
	return nil
}

func (h *Handler) listProcesses(ctx context.Context, req *Request, u storage.User) error {
	procs, err := h.store.ProcessesForOwner(ctx, u.Name)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	h.send(ctx, req, processListText(u.Name, procs, h.cfg.Offsets))
	return nil
}

func (h *Handler) check(ctx context.Context, req *Request, u storage.User) error {
	at, err := clock.ParseCheckInstant(req.Args, h.cfg.Location)
	if err != nil {
		req.Logger.Debug("check: bad argument", logx.String("args", req.Args), logx.Err(err))
		h.send(ctx, req, checkUsageText)
		return nil
	}
	procs, err := h.store.ProcessesForOwner(ctx, u.Name)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	h.send(ctx, req, deadline.Evaluate(at, procs).Render())
	return nil
}

func (h *Handler) send(ctx context.Context, req *Request, text string) {
	// send failures are logged by the messenger
	_ = h.reply.SendTo(ctx, req.Chat, text)
}
