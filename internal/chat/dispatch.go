package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"procbot/internal/transport"
	logx "procbot/pkg/logx"
)

// Run consumes updates one at a time until ctx is done or updates closes.
// Each message runs under the middleware chain; a failed message is answered
// with a generic error reply and does not stop the loop.
func (h *Handler) Run(ctx context.Context, updates <-chan transport.Update) error {
	handle := Chain(h.Handle,
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(h.cfg.Timeout),
	)
	h.log.Info("chat dispatcher started")
	defer h.log.Info("chat dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			req := h.newRequest(up)
			if req == nil {
				continue
			}
			if err := handle(ctx, req); err != nil {
				h.send(ctx, req, internalErrorText)
			}
		}
	}
}

func (h *Handler) newRequest(up transport.Update) *Request {
	m := up.Message
	if m == nil {
		return nil
	}
	text := strings.TrimSpace(m.Text)
	cmd, args, isCmd := parseCommand(text)
	rid := uuid.NewString()
	return &Request{
		Update:    up,
		Chat:      transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID},
		FromID:    m.FromID,
		Username:  m.FromUsername,
		Text:      text,
		IsCommand: isCmd,
		Command:   cmd,
		Args:      args,
		ReqID:     rid,
		Logger:    h.log.With(logx.String("rid", rid)),
	}
}
