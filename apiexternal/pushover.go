package apiexternal

import (
	"context"
	"time"

	"github.com/Kellerman81/go_media_organizer/slidingwindow"
	"github.com/gregdel/pushover"
	"github.com/pkg/errors"
)

// Notifier sends short status messages.
type Notifier interface {
	SendMessage(ctx context.Context, title string, message string) error
}

type PushOverClient struct {
	ApiKey        string
	Recipient     string
	LimiterWindow *slidingwindow.Limiter
	app           *pushover.Pushover
}

// NewPushOverClient allows 3 messages every 10 seconds.
func NewPushOverClient(apikey string, recipient string) *PushOverClient {
	return &PushOverClient{
		ApiKey:        apikey,
		Recipient:     recipient,
		LimiterWindow: slidingwindow.NewLimiter(10*time.Second, 3),
		app:           pushover.New(apikey),
	}
}

func (p *PushOverClient) SendMessage(ctx context.Context, title string, messagetext string) error {
	waitctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.LimiterWindow.Wait(waitctx); err != nil {
		return errors.Wrap(err, "pushover please wait")
	}
	recipient := pushover.NewRecipient(p.Recipient)
	message := pushover.NewMessageWithTitle(messagetext, title)
	if _, err := p.app.SendMessage(message, recipient); err != nil {
		return errors.Wrap(err, "pushover")
	}
	return nil
}

// NoopNotifier drops all messages.
type NoopNotifier struct{}

func (NoopNotifier) SendMessage(context.Context, string, string) error {
	return nil
}
