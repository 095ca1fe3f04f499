package notify

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestForwardUsesPrimary(t *testing.T) {
	api := &fakeSender{}
	n := &Telegram{bot: api, log: zerolog.Nop(), adminIDs: []int64{1, 2}, primary: "juan"}
	if err := n.Forward(context.Background(), "hola"); err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected one message to the primary, got %d", len(api.sent))
	}
	if api.sent[0].ChannelUsername != "@juan" {
		t.Fatalf("expected the primary recipient, got %+v", api.sent[0].BaseChat)
	}
}

func TestForwardWithoutPrimaryFallsBackToAdmins(t *testing.T) {
	api := &fakeSender{}
	n := &Telegram{bot: api, log: zerolog.Nop(), adminIDs: []int64{1, 2}, primary: ""}
	if err := n.Forward(context.Background(), "hola"); err != nil {
		t.Fatalf("forward must fall back to the admin fan-out, got %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected one message per admin, got %d", len(api.sent))
	}
}

func TestForwardWithoutAnyRecipientFails(t *testing.T) {
	n := &Telegram{bot: &fakeSender{}, log: zerolog.Nop(), primary: ""}
	if err := n.Forward(context.Background(), "hola"); err == nil {
		t.Fatal("forward with no configured recipient must report an error")
	}
}

func TestForwardReportsSendFailure(t *testing.T) {
	boom := errors.New("bad gateway")
	n := &Telegram{bot: &fakeSender{err: boom}, log: zerolog.Nop(), adminIDs: []int64{1}, primary: ""}
	if err := n.Forward(context.Background(), "hola"); !errors.Is(err, boom) {
		t.Fatalf("expected the send failure to surface, got %v", err)
	}
}
