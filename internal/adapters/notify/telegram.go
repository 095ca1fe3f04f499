package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/metrics"
)

// sender is the slice of the Bot API client the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends best-effort messages to the administrators. All sends are
// fire-and-forget: failures are logged and counted, never retried, never
// surfaced to the end user. Only Forward reports its error so the caller can
// acknowledge the sender.
type Telegram struct {
	bot      sender
	log      zerolog.Logger
	adminIDs []int64
	// primary is a numeric chat id or an @username.
	primary string
}

// NewTelegram creates the notifier.
func NewTelegram(bot *tgbotapi.BotAPI, log zerolog.Logger, adminIDs []int64, primary string) *Telegram {
	return &Telegram{bot: bot, log: log, adminIDs: adminIDs, primary: primary}
}

// SubmissionFinished fans the submission outcome out to the primary contact
// and every configured admin.
func (n *Telegram) SubmissionFinished(ctx context.Context, ev domain.SubmissionEvent) {
	rec := ev.Record
	if ev.Err != nil {
		n.Alert(ctx, fmt.Sprintf("Error guardando envío de %s (%s): %v", rec.Submitter, rec.City, ev.Err))
		return
	}
	n.sendPrimary(fmt.Sprintf("nuevo piso ofrecido · %s · %s", rec.City, cell(rec.Price)))
	for _, id := range n.adminIDs {
		n.send(tgbotapi.NewMessage(id, fmt.Sprintf("Nuevo piso ofrecido por %s: %s %s", rec.Submitter, rec.City, cell(rec.Price))))
	}
}

// Forward relays a contact message to the primary admin. Without a primary
// recipient it falls back to the admin fan-out; it only reports success when
// at least one recipient got the message.
func (n *Telegram) Forward(ctx context.Context, text string) error {
	if strings.TrimSpace(n.primary) != "" {
		return n.sendPrimary(text)
	}
	var last error
	delivered := false
	for _, id := range n.adminIDs {
		if err := n.send(tgbotapi.NewMessage(id, text)); err != nil {
			last = err
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	if last != nil {
		return last
	}
	return errors.New("sin destinatario configurado para el reenvío")
}

// Alert fans a runtime error out to every configured admin.
func (n *Telegram) Alert(ctx context.Context, text string) {
	for _, id := range n.adminIDs {
		n.send(tgbotapi.NewMessage(id, text))
	}
}

func (n *Telegram) sendPrimary(text string) error {
	target := strings.TrimSpace(n.primary)
	if target == "" {
		return nil
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return n.send(tgbotapi.NewMessage(id, text))
	}
	if !strings.HasPrefix(target, "@") {
		target = "@" + target
	}
	return n.send(tgbotapi.NewMessageToChannel(target, text))
}

func cell(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (n *Telegram) send(msg tgbotapi.MessageConfig) error {
	start := time.Now()
	_, err := n.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "notify_admin", start, err)
	if err != nil {
		metrics.NotifyFailures.Inc()
		n.log.Error().Err(err).Msg("no se pudo notificar al admin")
	}
	return err
}
