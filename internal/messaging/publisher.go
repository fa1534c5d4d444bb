package messaging

import (
	"context"
	"strings"
	"time"

	"novachat/internal/domain"
	"novachat/internal/store"
)

type Publisher struct {
	store store.Adapter
	now   func() time.Time
}

func NewPublisher(st store.Adapter) *Publisher {
	return &Publisher{store: st, now: time.Now}
}

// Send appends one message. Empty or whitespace-only text is rejected
// before any store call. There is no local echo: the sender sees the
// message through the same stream delivery as everyone else.
func (p *Publisher) Send(ctx context.Context, from, to, text string) error {
	from = domain.NormalizeUsername(from)
	to = domain.NormalizeUsername(to)
	text = strings.TrimSpace(text)
	if from == "" || to == "" || from == to || text == "" {
		return domain.ErrInvalidInput
	}

	doc, err := store.Encode(domain.Message{
		From:         from,
		To:           to,
		Text:         text,
		CreatedAt:    p.now().UnixMilli(),
		Participants: []string{from, to},
	})
	if err != nil {
		return err
	}
	_, err = p.store.Append(ctx, domain.MessagesCollection, doc)
	return err
}
