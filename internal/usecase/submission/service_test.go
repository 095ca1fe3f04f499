package submission

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
)

type fakeRepo struct {
	records []domain.ListingRecord
	err     error
}

func (f *fakeRepo) Append(ctx context.Context, rec domain.ListingRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRepo) ListAll(ctx context.Context) ([]domain.ListingRecord, error) {
	return f.records, nil
}

type fakeNotifier struct {
	events []domain.SubmissionEvent
	alerts []string
}

func (f *fakeNotifier) SubmissionFinished(ctx context.Context, ev domain.SubmissionEvent) {
	f.events = append(f.events, ev)
}
func (f *fakeNotifier) Forward(ctx context.Context, text string) error { return nil }
func (f *fakeNotifier) Alert(ctx context.Context, text string)         { f.alerts = append(f.alerts, text) }

func newTestService(repo *fakeRepo, notifier *fakeNotifier) *Service {
	return NewService(repo, notifier, zerolog.Nop())
}

func runFlow(t *testing.T, svc *Service, inputs []Input) (domain.Session, Result) {
	t.Helper()
	sess, prompt := svc.Begin(42, 42, "ana")
	if prompt == "" {
		t.Fatal("entry must emit the first prompt")
	}
	var res Result
	for _, in := range inputs {
		sess, res = svc.Advance(context.Background(), sess, in)
	}
	return sess, res
}

func happyInputs() []Input {
	return []Input{
		{Text: "Madrid"},
		{Text: "139000"},
		{Text: "70"},
		{Text: "700"},
		{Text: "Reformado"},
		{Text: "no"},
		{Text: "no"}, // photo skipped
		{Text: "no"},
		{Text: "si"},
	}
}

func TestHappyPathSubmission(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)

	_, res := runFlow(t, svc, happyInputs())
	if !res.Done || !res.Saved {
		t.Fatalf("expected a saved terminal result, got %+v", res)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected exactly one appended record, got %d", len(repo.records))
	}
	rec := repo.records[0]
	if rec.City != "Madrid" || rec.Condition != "Reformado" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	y, ok := rec.Yield()
	if !ok || y != 6.04 {
		t.Fatalf("expected yield 6.04, got %v (defined=%v)", y, ok)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected one post-commit event, got %d", len(notifier.events))
	}
	if notifier.events[0].Err != nil {
		t.Fatalf("unexpected event error: %v", notifier.events[0].Err)
	}
}

func TestConfirmationIsCaseInsensitive(t *testing.T) {
	for _, token := range []string{"SI", "Sí", "s", " si "} {
		repo := &fakeRepo{}
		svc := newTestService(repo, &fakeNotifier{})
		inputs := happyInputs()
		inputs[len(inputs)-1] = Input{Text: token}
		_, res := runFlow(t, svc, inputs)
		if !res.Saved {
			t.Fatalf("token %q must confirm", token)
		}
	}
}

func TestNegativeConfirmationCancels(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	inputs := happyInputs()
	inputs[len(inputs)-1] = Input{Text: "mejor no"}
	_, res := runFlow(t, svc, inputs)
	if !res.Done || res.Saved || !res.Cancelled {
		t.Fatalf("expected a cancelled terminal result, got %+v", res)
	}
	if len(repo.records) != 0 {
		t.Fatal("a cancelled draft must not be persisted")
	}
	if len(notifier.events) != 0 {
		t.Fatal("a cancelled draft must not emit an event")
	}
}

func TestPersistenceFailureStillTerminates(t *testing.T) {
	repo := &fakeRepo{err: errors.New("quota exceeded")}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, notifier)
	_, res := runFlow(t, svc, happyInputs())
	if !res.Done {
		t.Fatal("a failed save must still terminate the session")
	}
	if res.Saved {
		t.Fatal("a failed save must not report success")
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "problema") {
		t.Fatalf("expected a failure acknowledgment, got %v", res.Replies)
	}
	if len(notifier.events) != 1 || notifier.events[0].Err == nil {
		t.Fatal("the failure must be forwarded to administrators as an event")
	}
}

func TestMalformedNumbersAreTolerated(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeNotifier{})
	inputs := happyInputs()
	inputs[1] = Input{Text: "ciento treinta mil"}
	_, res := runFlow(t, svc, inputs)
	if !res.Saved {
		t.Fatal("malformed numeric input must not reject the step")
	}
	rec := repo.records[0]
	if rec.Price != nil {
		t.Fatal("a malformed price must be absent in the record")
	}
	if _, ok := rec.Yield(); ok {
		t.Fatal("yield must be undefined with a malformed price")
	}
}

func TestPhotoStepStoresAttachment(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo, &fakeNotifier{})
	inputs := happyInputs()
	inputs[6] = Input{HasPhoto: true, PhotoPath: "uploads/abc.jpg"}
	_, res := runFlow(t, svc, inputs)
	if !res.Saved {
		t.Fatalf("expected save, got %+v", res)
	}
	if repo.records[0].Photo != "uploads/abc.jpg" {
		t.Fatalf("expected photo reference, got %q", repo.records[0].Photo)
	}
}

func TestNonTextInputKeepsStep(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeNotifier{})
	sess, _ := svc.Begin(42, 42, "ana")

	next, res := svc.Advance(context.Background(), sess, Input{})
	if next.Step != domain.StepCity {
		t.Fatalf("an empty turn must not consume the step, got step %v", next.Step)
	}
	if next.Draft.City != "" {
		t.Fatalf("an empty turn must not touch the draft, got city %q", next.Draft.City)
	}
	if res.Done {
		t.Fatal("an empty turn must not terminate the flow")
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "ciudad") {
		t.Fatalf("expected the city question to be asked again, got %v", res.Replies)
	}

	// Same at the confirmation step: an empty turn re-asks, it never cancels.
	sess, _ = runFlow(t, svc, happyInputs()[:8])
	next, res = svc.Advance(context.Background(), sess, Input{})
	if next.Step != domain.StepConfirm || res.Done {
		t.Fatalf("an empty turn at confirmation must keep the session open, got step %v, %+v", next.Step, res)
	}
	if len(res.Replies) != 1 || !strings.Contains(res.Replies[0], "Confirma") {
		t.Fatalf("expected the confirmation question again, got %v", res.Replies)
	}
}

func TestBeginResetsDraft(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeNotifier{})
	sess, _ := svc.Begin(42, 42, "ana")
	sess, _ = svc.Advance(context.Background(), sess, Input{Text: "Madrid"})
	sess, _ = svc.Advance(context.Background(), sess, Input{Text: "139000"})

	fresh, _ := svc.Begin(42, 42, "ana")
	if fresh.Step != domain.StepCity {
		t.Fatal("re-entry must restart at the city step")
	}
	if fresh.Draft != (domain.Draft{}) {
		t.Fatalf("re-entry must discard the previous draft, got %+v", fresh.Draft)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	svc := newTestService(&fakeRepo{}, &fakeNotifier{})
	res := svc.Cancel()
	if !res.Done || res.Saved || !res.Cancelled {
		t.Fatalf("cancel must terminate without saving, got %+v", res)
	}
	if len(res.Replies) != 1 || res.Replies[0] != "Cancelado." {
		t.Fatalf("unexpected cancel reply: %v", res.Replies)
	}
}
