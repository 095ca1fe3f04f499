package submission

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
)

// Prompts, one per step, in flow order.
const (
	promptCity      = "Perfecto. Empezamos. ¿En qué ciudad está el piso? (ej: Madrid)"
	promptPrice     = "Precio (ej. 139000)"
	promptArea      = "Metros (m²)"
	promptRent      = "Alquiler estimado (€/mes)"
	promptCondition = "Estado del piso (Reformado / A reformar)"
	promptURL       = "Enlace al anuncio (si lo tienes) o escribe 'no'"
	promptPhoto     = "Puedes enviar una foto ahora o escribir 'no'"
	promptContact   = "Contacto del propietario / tu contacto (teléfono o email) o 'no'"
	promptConfirm   = "Confirma 'si' para guardar o 'no' para cancelar."

	ackSaved     = "Guardado. Gracias — un admin lo revisará y lo publicará si procede."
	ackSaveError = "Hubo un problema guardando el piso. Avisaré a un admin para que lo revise."
	ackCancelled = "Cancelado."
)

// Input is one turn of user input. PhotoPath is set only at the photo step
// when an attachment was received and stored.
type Input struct {
	Text      string
	PhotoPath string
	HasPhoto  bool
}

// Result is what the dispatcher should send back after a turn.
type Result struct {
	Replies   []string
	Done      bool
	Saved     bool
	Cancelled bool
}

// Service drives the sell conversation. The transition logic itself never
// touches the transport: persistence goes through the repository and the
// post-commit notification is handed to the notifier as an event.
type Service struct {
	repo     domain.ListingRepo
	notifier domain.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates the submission service.
func NewService(repo domain.ListingRepo, notifier domain.Notifier, log zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log, now: time.Now}
}

// Begin returns a fresh session at the first step, discarding any previous
// draft for the user (last entry wins).
func (s *Service) Begin(chatID, userID int64, userName string) (domain.Session, string) {
	sess := domain.Session{
		ChatID:    chatID,
		UserID:    userID,
		UserName:  userName,
		Mode:      domain.ModeSell,
		Step:      domain.StepCity,
		CreatedAt: s.now().UTC(),
	}
	return sess, promptCity
}

// Cancel terminates the flow from any non-terminal step.
func (s *Service) Cancel() Result {
	return Result{Replies: []string{ackCancelled}, Done: true, Cancelled: true}
}

// Advance consumes one input for the session's current step, stores it
// verbatim into the draft and moves to the next step. No validation beyond
// presence happens here: malformed numbers only degrade the derived yield
// once the record is built.
func (s *Service) Advance(ctx context.Context, sess domain.Session, in Input) (domain.Session, Result) {
	text := strings.TrimSpace(in.Text)
	// A turn carrying neither text nor an attachment (sticker, voice,
	// location, a photo outside the photo step) never consumes a step; the
	// current question is asked again.
	if text == "" && !in.HasPhoto {
		return sess, Result{Replies: []string{promptFor(sess.Step)}}
	}
	switch sess.Step {
	case domain.StepCity:
		sess.Draft.City = text
		sess.Step = domain.StepPrice
		return sess, Result{Replies: []string{promptPrice}}
	case domain.StepPrice:
		sess.Draft.Price = text
		sess.Step = domain.StepArea
		return sess, Result{Replies: []string{promptArea}}
	case domain.StepArea:
		sess.Draft.Area = text
		sess.Step = domain.StepRent
		return sess, Result{Replies: []string{promptRent}}
	case domain.StepRent:
		sess.Draft.Rent = text
		sess.Step = domain.StepCondition
		return sess, Result{Replies: []string{promptCondition}}
	case domain.StepCondition:
		sess.Draft.Condition = text
		sess.Step = domain.StepURL
		return sess, Result{Replies: []string{promptURL}}
	case domain.StepURL:
		sess.Draft.URL = text
		sess.Step = domain.StepPhoto
		return sess, Result{Replies: []string{promptPhoto}}
	case domain.StepPhoto:
		if in.HasPhoto {
			sess.Draft.Photo = in.PhotoPath
		}
		sess.Step = domain.StepContact
		return sess, Result{Replies: []string{promptContact}}
	case domain.StepContact:
		sess.Draft.Contact = text
		sess.Step = domain.StepConfirm
		return sess, Result{Replies: []string{summary(sess.Draft) + "\n\n" + promptConfirm}}
	case domain.StepConfirm:
		return s.confirm(ctx, sess, text)
	}
	// Unknown step means a corrupted session; drop it.
	return sess, Result{Replies: []string{ackCancelled}, Done: true, Cancelled: true}
}

func (s *Service) confirm(ctx context.Context, sess domain.Session, text string) (domain.Session, Result) {
	if !IsAffirmative(text) {
		return sess, Result{Replies: []string{ackCancelled}, Done: true, Cancelled: true}
	}
	rec := s.buildRecord(sess)
	err := s.repo.Append(ctx, rec)
	s.notifier.SubmissionFinished(ctx, domain.SubmissionEvent{Record: rec, Err: err})
	if err != nil {
		s.log.Error().Err(err).Int64("user", sess.UserID).Msg("no se pudo guardar el piso")
		return sess, Result{Replies: []string{ackSaveError}, Done: true}
	}
	return sess, Result{Replies: []string{ackSaved}, Done: true, Saved: true}
}

func (s *Service) buildRecord(sess domain.Session) domain.ListingRecord {
	d := sess.Draft
	return domain.ListingRecord{
		SubmittedAt: s.now().UTC().Format(time.RFC3339),
		ChatID:      strconv.FormatInt(sess.ChatID, 10),
		Submitter:   sess.UserName,
		City:        d.City,
		Price:       domain.ParseAmount(d.Price),
		AreaM2:      domain.ParseAmount(d.Area),
		MonthlyRent: domain.ParseAmount(d.Rent),
		Condition:   d.Condition,
		URL:         d.URL,
		Photo:       d.Photo,
		Contact:     d.Contact,
	}
}

func promptFor(step domain.Step) string {
	switch step {
	case domain.StepPrice:
		return promptPrice
	case domain.StepArea:
		return promptArea
	case domain.StepRent:
		return promptRent
	case domain.StepCondition:
		return promptCondition
	case domain.StepURL:
		return promptURL
	case domain.StepPhoto:
		return promptPhoto
	case domain.StepContact:
		return promptContact
	case domain.StepConfirm:
		return promptConfirm
	}
	return promptCity
}

// IsAffirmative reports whether the confirmation token saves the draft.
// Anything else cancels.
func IsAffirmative(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "si", "sí", "s":
		return true
	}
	return false
}

func summary(d domain.Draft) string {
	lines := []string{
		"Resumen:",
		"Ciudad: " + d.City,
		"Precio: " + d.Price,
		"m2: " + d.Area,
		"Alquiler: " + d.Rent,
		"Estado: " + d.Condition,
		"URL: " + d.URL,
		"Contacto: " + d.Contact,
	}
	return strings.Join(lines, "\n")
}
