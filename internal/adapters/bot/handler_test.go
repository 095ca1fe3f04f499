package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/metrics"
	"ready2rent-bot/internal/usecase/listings"
	"ready2rent-bot/internal/usecase/submission"
)

type fakeAPI struct {
	sent []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFile(c tgbotapi.FileConfig) (tgbotapi.File, error) {
	return tgbotapi.File{}, nil
}

type fakeStore struct {
	sessions map[int64]domain.Session
	puts     int
}

func (f *fakeStore) Get(ctx context.Context, userID int64) (domain.Session, bool, error) {
	sess, ok := f.sessions[userID]
	return sess, ok, nil
}

func (f *fakeStore) Put(ctx context.Context, sess domain.Session) error {
	if f.sessions == nil {
		f.sessions = make(map[int64]domain.Session)
	}
	f.sessions[sess.UserID] = sess
	f.puts++
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, userID int64) error {
	delete(f.sessions, userID)
	return nil
}

type fakeRepo struct {
	records []domain.ListingRecord
}

func (f *fakeRepo) Append(ctx context.Context, rec domain.ListingRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRepo) ListAll(ctx context.Context) ([]domain.ListingRecord, error) {
	return f.records, nil
}

type fakeNotifier struct{}

func (f *fakeNotifier) SubmissionFinished(ctx context.Context, ev domain.SubmissionEvent) {}
func (f *fakeNotifier) Forward(ctx context.Context, text string) error                    { return nil }
func (f *fakeNotifier) Alert(ctx context.Context, text string)                            {}

func newTestHandler(store domain.SessionStore) (*Handler, *fakeAPI) {
	api := &fakeAPI{}
	log := zerolog.Nop()
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	return &Handler{
		bot:          api,
		log:          log,
		submissionUC: submission.NewService(repo, notifier, log),
		listingsUC:   listings.NewService(repo, log, 5),
		sessions:     store,
		notifier:     notifier,
		admins:       map[int64]struct{}{},
		botUsername:  "ready2rent_bot",
		uploadDir:    "uploads",
		manualsURL:   "https://example.com/calculadora.pdf",
		adminRecent:  10,
	}, api
}

func TestCityCommandRe(t *testing.T) {
	cases := map[string]bool{
		"/madrid":    true,
		"/Valencia":  true,
		"/logroño":   true,
		"/madrid 5":  false,
		"/add@bot":   false,
		"/ciudad_22": false,
		"hola":       false,
	}
	for input, want := range cases {
		if got := cityCommandRe.MatchString(input); got != want {
			t.Fatalf("cityCommandRe(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestCityCommandToken(t *testing.T) {
	m := cityCommandRe.FindStringSubmatch("/madrid")
	if m == nil || m[1] != "madrid" {
		t.Fatalf("expected token madrid, got %v", m)
	}
}

func TestRouteFor(t *testing.T) {
	cases := []struct {
		private   bool
		inSession bool
		text      string
		want      msgRoute
	}{
		{false, true, "700", routeNone},
		{false, true, "Madrid", routeNone},
		{false, false, "/start", routeGroupRedirect},
		{false, true, "/madrid", routeCitySearch},
		{true, true, "700", routeSession},
		{true, true, "/madrid", routeCitySearch},
		{true, true, "/cancel", routeCancel},
		{true, false, "/start ayuda", routeMenu},
		{true, false, "/lista", routeAdminList},
		{true, false, "/ciudad_22", routeUnknownCommand},
		{true, false, "hola", routeNone},
	}
	for _, c := range cases {
		if got := routeFor(c.private, c.inSession, c.text); got != c.want {
			t.Fatalf("routeFor(%v, %v, %q) = %v, want %v", c.private, c.inSession, c.text, got, c.want)
		}
	}
}

func TestGroupMessageNeverFeedsDialogue(t *testing.T) {
	store := &fakeStore{sessions: map[int64]domain.Session{
		7: {ChatID: 7, UserID: 7, Mode: domain.ModeSell, Step: domain.StepPrice, Draft: domain.Draft{City: "Madrid"}},
	}}
	h, api := newTestHandler(store)

	// The same text in a private chat would be the price answer.
	h.handleMessage(context.Background(), &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7, FirstName: "Ana"},
		Chat: &tgbotapi.Chat{ID: -100200, Type: "supergroup"},
		Text: "700",
	})

	sess := store.sessions[7]
	if sess.Step != domain.StepPrice || sess.Draft.Price != "" {
		t.Fatalf("a group message must not advance the dialogue, got %+v", sess)
	}
	if len(api.sent) != 0 {
		t.Fatalf("free group text must be a no-op, got %d sends", len(api.sent))
	}
}

func TestGroupSellCallbackNeverOpensDialogue(t *testing.T) {
	store := &fakeStore{}
	h, _ := newTestHandler(store)

	h.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "1",
		Data:    "menu_sell",
		From:    &tgbotapi.User{ID: 7, FirstName: "Ana"},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: -100200, Type: "supergroup"}},
	})

	if store.puts != 0 {
		t.Fatalf("a group callback must not open a session, got %d puts", store.puts)
	}
}

func TestPrivateSellCallbackOpensDialogue(t *testing.T) {
	store := &fakeStore{}
	h, _ := newTestHandler(store)

	h.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "1",
		Data:    "menu_sell",
		From:    &tgbotapi.User{ID: 7, FirstName: "Ana"},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: 7, Type: "private"}},
	})

	sess, ok := store.sessions[7]
	if !ok || sess.Mode != domain.ModeSell || sess.Step != domain.StepCity {
		t.Fatalf("expected a sell session at the city step, got %+v (found=%v)", sess, ok)
	}
}

func TestCancelMetricCountsOnlySellDialogues(t *testing.T) {
	cases := []struct {
		mode  domain.SessionMode
		delta float64
	}{
		{domain.ModeContact, 0},
		{domain.ModeCitySearch, 0},
		{domain.ModeSell, 1},
	}
	for _, c := range cases {
		sess := domain.Session{ChatID: 7, UserID: 7, Mode: c.mode}
		store := &fakeStore{sessions: map[int64]domain.Session{7: sess}}
		h, _ := newTestHandler(store)

		before := testutil.ToFloat64(metrics.SubmissionsCancelled)
		h.handleCancel(context.Background(), 7, 7, sess, true)
		got := testutil.ToFloat64(metrics.SubmissionsCancelled) - before
		if got != c.delta {
			t.Fatalf("cancel of a %q dialogue moved the counter by %v, want %v", c.mode, got, c.delta)
		}
		if _, ok := store.sessions[7]; ok {
			t.Fatalf("cancel must drop the %q session", c.mode)
		}
	}
}

func TestCapitalize(t *testing.T) {
	if got := capitalize("mADRID"); got != "Madrid" {
		t.Fatalf("expected Madrid, got %q", got)
	}
	if got := capitalize("  ávila "); got != "Ávila" {
		t.Fatalf("expected Ávila, got %q", got)
	}
	if got := capitalize(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	u := &tgbotapi.User{UserName: "ana_r2r", FirstName: "Ana", LastName: "García"}
	if got := displayName(u); got != "ana_r2r" {
		t.Fatalf("expected username preferred, got %q", got)
	}
	u.UserName = ""
	if got := displayName(u); got != "Ana García" {
		t.Fatalf("expected full name fallback, got %q", got)
	}
}
