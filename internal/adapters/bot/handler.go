package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ready2rent-bot/internal/adapters/telegram"
	"ready2rent-bot/internal/domain"
	"ready2rent-bot/internal/infra/metrics"
	"ready2rent-bot/internal/usecase/listings"
	"ready2rent-bot/internal/usecase/submission"
)

var cityCommandRe = regexp.MustCompile(`^/([a-zA-ZñÑáéíóúÁÉÍÓÚ]+)$`)

// botAPI is the slice of the Bot API client the handler uses. Tests provide
// a recording fake.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(c tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Handler routes incoming updates: menu, conversation continuation,
// one-shot queries, admin commands. Multi-step dialogue only ever runs in
// private chats; group triggers get redirected.
type Handler struct {
	bot          botAPI
	token        string
	log          zerolog.Logger
	submissionUC *submission.Service
	listingsUC   *listings.Service
	sessions     domain.SessionStore
	notifier     domain.Notifier
	admins       map[int64]struct{}
	botUsername  string
	uploadDir    string
	manualsURL   string
	adminRecent  int
}

// Options carries the handler's static configuration.
type Options struct {
	AdminIDs    []int64
	BotUsername string
	UploadDir   string
	ManualsURL  string
	AdminRecent int
}

// NewHandler creates the dispatcher.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, submissionUC *submission.Service, listingsUC *listings.Service, sessions domain.SessionStore, notifier domain.Notifier, opts Options) *Handler {
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	if opts.AdminRecent <= 0 {
		opts.AdminRecent = 10
	}
	return &Handler{
		bot:          bot,
		token:        bot.Token,
		log:          log,
		submissionUC: submissionUC,
		listingsUC:   listingsUC,
		sessions:     sessions,
		notifier:     notifier,
		admins:       admins,
		botUsername:  opts.BotUsername,
		uploadDir:    opts.UploadDir,
		manualsURL:   opts.ManualsURL,
		adminRecent:  opts.AdminRecent,
	}
}

// HandleUpdate processes one incoming update. A panic in any single
// interaction is logged and reported to the admins; it never halts the
// service.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("pánico procesando update")
			h.notifier.Alert(ctx, fmt.Sprintf("Error en bot: %v", r))
		}
	}()
	if upd.Message != nil {
		if len(upd.Message.NewChatMembers) > 0 {
			h.welcomeNewMembers(upd.Message)
			return
		}
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// msgRoute is the outcome of classifying one incoming message.
type msgRoute int

const (
	routeNone msgRoute = iota
	routeMenu
	routeCancel
	routeAdminList
	routeSession
	routeCitySearch
	routeGroupRedirect
	routeUnknownCommand
)

// routeFor classifies a message. Dialogue continuation and the menu entry
// points only exist in private chats; shared chats keep the public command
// surface (/start redirect, /<city>) and nothing else, so a group message
// can never reach a state-machine step. Commands never feed a dialogue step
// either; they resolve while the session stays active.
func routeFor(private, inSession bool, text string) msgRoute {
	if !private {
		switch {
		case strings.HasPrefix(text, "/start"):
			return routeGroupRedirect
		case cityCommandRe.MatchString(text):
			return routeCitySearch
		}
		return routeNone
	}
	switch {
	case strings.HasPrefix(text, "/start"):
		return routeMenu
	case strings.HasPrefix(text, "/cancel"):
		return routeCancel
	case strings.HasPrefix(text, "/lista"):
		return routeAdminList
	}
	if inSession && !strings.HasPrefix(text, "/") {
		return routeSession
	}
	if cityCommandRe.MatchString(text) {
		return routeCitySearch
	}
	if strings.HasPrefix(text, "/") {
		return routeUnknownCommand
	}
	// Free text outside any flow is a no-op.
	return routeNone
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	private := msg.Chat.IsPrivate()

	var sess domain.Session
	inSession := false
	if private {
		s, ok, err := h.sessions.Get(ctx, msg.From.ID)
		if err != nil {
			h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("no se pudo leer la sesión")
		}
		sess, inSession = s, ok
	}

	switch routeFor(private, inSession, text) {
	case routeMenu:
		h.sendMainMenu(msg.Chat.ID, msg.From.FirstName)
	case routeCancel:
		h.handleCancel(ctx, msg.Chat.ID, msg.From.ID, sess, inSession)
	case routeAdminList:
		h.handleAdminList(ctx, msg.Chat.ID, msg.From.ID)
	case routeSession:
		h.continueSession(ctx, msg, sess)
	case routeCitySearch:
		m := cityCommandRe.FindStringSubmatch(text)
		h.runCitySearch(ctx, msg.Chat.ID, m[1])
	case routeGroupRedirect:
		h.reply(msg.Chat.ID, h.privateRedirectText(), nil)
	case routeUnknownCommand:
		h.reply(msg.Chat.ID, "Comando desconocido. Usa /start para ver el menú.", nil)
	}
}

// continueSession advances the active dialogue. The session is persisted
// before any outbound send, so a crash mid-send can only duplicate the next
// prompt, never lose collected fields.
func (h *Handler) continueSession(ctx context.Context, msg *tgbotapi.Message, sess domain.Session) {
	text := strings.TrimSpace(msg.Text)

	switch sess.Mode {
	case domain.ModeSell:
		in := submission.Input{Text: text}
		if len(msg.Photo) > 0 && sess.Step == domain.StepPhoto {
			path, err := h.downloadPhoto(ctx, msg.Photo[len(msg.Photo)-1].FileID)
			if err != nil {
				h.log.Error().Err(err).Msg("no se pudo descargar la foto")
				path = ""
			}
			in = submission.Input{HasPhoto: true, PhotoPath: path}
		}
		next, res := h.submissionUC.Advance(ctx, sess, in)
		h.finishTurn(ctx, next, res)
	case domain.ModeContact:
		h.forwardContactMessage(ctx, msg, text)
	case domain.ModeCitySearch:
		if err := h.sessions.Delete(ctx, msg.From.ID); err != nil {
			h.log.Error().Err(err).Msg("no se pudo borrar la sesión")
		}
		h.runCitySearch(ctx, msg.Chat.ID, text)
	}
}

func (h *Handler) finishTurn(ctx context.Context, sess domain.Session, res submission.Result) {
	if res.Done {
		if err := h.sessions.Delete(ctx, sess.UserID); err != nil {
			h.log.Error().Err(err).Int64("user", sess.UserID).Msg("no se pudo borrar la sesión")
		}
		switch {
		case res.Saved:
			metrics.SubmissionsSaved.Inc()
		case res.Cancelled:
			metrics.SubmissionsCancelled.Inc()
		default:
			metrics.SubmissionsFailed.Inc()
		}
	} else {
		if err := h.sessions.Put(ctx, sess); err != nil {
			h.log.Error().Err(err).Int64("user", sess.UserID).Msg("no se pudo guardar la sesión")
			h.reply(sess.ChatID, "Ha ocurrido un error. Usa /start para volver a empezar.", nil)
			return
		}
	}
	for _, text := range res.Replies {
		h.reply(sess.ChatID, text, nil)
	}
}

func (h *Handler) forwardContactMessage(ctx context.Context, msg *tgbotapi.Message, text string) {
	if err := h.sessions.Delete(ctx, msg.From.ID); err != nil {
		h.log.Error().Err(err).Msg("no se pudo borrar la sesión")
	}
	sender := msg.From.UserName
	if sender == "" {
		sender = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	forward := fmt.Sprintf("Mensaje de contacto de @%s (%d):\n\n%s", sender, msg.From.ID, text)
	if err := h.notifier.Forward(ctx, forward); err != nil {
		h.reply(msg.Chat.ID, "No he podido reenviar el mensaje. Avisaré a los admins.", nil)
		h.notifier.Alert(ctx, fmt.Sprintf("Error reenviando mensaje contacto de %d: %s", msg.From.ID, text))
		return
	}
	h.reply(msg.Chat.ID, "Mensaje enviado. Gracias, te responderemos por privado si procede.", nil)
}

func (h *Handler) handleCancel(ctx context.Context, chatID, userID int64, sess domain.Session, active bool) {
	if !active {
		h.reply(chatID, "No hay nada que cancelar.", nil)
		return
	}
	if err := h.sessions.Delete(ctx, userID); err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("no se pudo borrar la sesión")
	}
	// Contact and city-search dialogues are not submissions.
	if sess.Mode == domain.ModeSell {
		metrics.SubmissionsCancelled.Inc()
	}
	res := h.submissionUC.Cancel()
	for _, text := range res.Replies {
		h.reply(chatID, text, nil)
	}
}

func (h *Handler) handleAdminList(ctx context.Context, chatID, userID int64) {
	if _, ok := h.admins[userID]; !ok {
		h.reply(chatID, "No autorizado", nil)
		return
	}
	records, err := h.listingsUC.Recent(ctx, h.adminRecent)
	if err != nil {
		h.log.Error().Err(err).Msg("no se pudo leer la hoja para /lista")
		h.reply(chatID, "Error leyendo la hoja. Revisa permisos y SPREADSHEET_ID.", nil)
		return
	}
	var b strings.Builder
	b.WriteString("Últimos envíos:\n")
	for _, rec := range records {
		b.WriteString(listings.FormatAdminLine(rec) + "\n")
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("no se pudo responder el callback")
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chat := cb.Message.Chat

	// Keyboards pressed in a group never start a dialogue there.
	if !chat.IsPrivate() {
		h.editMessage(chat.ID, cb.Message.MessageID, "Esta opción solo funciona en privado. Comprueba tu chat con el bot.")
		if err := h.send(tgbotapi.NewMessage(cb.From.ID, h.privateRedirectText())); err != nil {
			h.send(tgbotapi.NewMessage(chat.ID, fmt.Sprintf("%s, revisa tu chat privado con @%s.", cb.From.FirstName, h.botUsername)))
		}
		return
	}

	switch cb.Data {
	case "menu_search":
		h.editMessageWithKeyboard(chat.ID, cb.Message.MessageID, "Elige cómo quieres ver las propiedades:", h.searchKeyboard())
	case "menu_sell":
		metrics.SubmissionsStarted.Inc()
		sess, prompt := h.submissionUC.Begin(chat.ID, cb.From.ID, displayName(cb.From))
		if err := h.sessions.Put(ctx, sess); err != nil {
			h.log.Error().Err(err).Msg("no se pudo crear la sesión")
			h.reply(chat.ID, "Ha ocurrido un error. Inténtalo de nuevo más tarde.", nil)
			return
		}
		h.editMessage(chat.ID, cb.Message.MessageID, prompt)
	case "menu_manuals":
		text := "Manuales / Herramientas disponibles:\n\n" +
			"- Calculadora de rentabilidad (PDF): " + h.manualsURL + "\n\n" +
			"Si quieres más dosieres, los añadiremos y te avisamos."
		h.editMessage(chat.ID, cb.Message.MessageID, text)
	case "menu_contact":
		sess := domain.Session{
			ChatID:    chat.ID,
			UserID:    cb.From.ID,
			UserName:  displayName(cb.From),
			Mode:      domain.ModeContact,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.sessions.Put(ctx, sess); err != nil {
			h.log.Error().Err(err).Msg("no se pudo crear la sesión")
			return
		}
		h.editMessage(chat.ID, cb.Message.MessageID, "Escribe el mensaje que quieres enviar al equipo (respuesta directa al admin).")
	case "menu_back":
		h.editMessage(chat.ID, cb.Message.MessageID, "Menú principal. /start para volver.")
	case "search_sort_yield":
		h.editMessage(chat.ID, cb.Message.MessageID, "Buscando por rentabilidad (top 5)...")
		h.runRanking(ctx, chat.ID, domain.RankByYield)
	case "search_sort_price":
		h.editMessage(chat.ID, cb.Message.MessageID, "Buscando por precio (más barato, top 5)...")
		h.runRanking(ctx, chat.ID, domain.RankByPrice)
	case "search_by_city":
		sess := domain.Session{
			ChatID:    chat.ID,
			UserID:    cb.From.ID,
			Mode:      domain.ModeCitySearch,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.sessions.Put(ctx, sess); err != nil {
			h.log.Error().Err(err).Msg("no se pudo crear la sesión")
			return
		}
		h.editMessage(chat.ID, cb.Message.MessageID, "Escribe el nombre de la ciudad que quieres buscar (ej: Madrid).")
	}
}

func (h *Handler) runRanking(ctx context.Context, chatID int64, key domain.RankKey) {
	metrics.IncSearch(string(key))
	records, err := h.listingsUC.Top(ctx, key)
	if err != nil {
		h.log.Error().Err(err).Str("key", string(key)).Msg("no se pudieron leer los listados")
		h.reply(chatID, "No puedo leer las oportunidades ahora. Revisa configuración.", nil)
		return
	}
	if len(records) == 0 {
		h.reply(chatID, "No hay listados disponibles con esos criterios.", nil)
		return
	}
	for _, rec := range records {
		h.reply(chatID, listings.FormatCard(rec), nil)
	}
}

func (h *Handler) runCitySearch(ctx context.Context, chatID int64, city string) {
	metrics.IncSearch("city")
	records, err := h.listingsUC.ByCity(ctx, city)
	if err != nil {
		h.log.Error().Err(err).Str("city", city).Msg("no se pudieron leer los listados")
		h.reply(chatID, "No puedo leer las oportunidades ahora. Revisa configuración.", nil)
		return
	}
	if len(records) == 0 {
		h.reply(chatID, fmt.Sprintf("No he encontrado listados para %s.", capitalize(city)), nil)
		return
	}
	for _, rec := range records {
		h.reply(chatID, listings.FormatCard(rec), nil)
	}
}

func (h *Handler) welcomeNewMembers(msg *tgbotapi.Message) {
	for _, member := range msg.NewChatMembers {
		name := strings.TrimSpace(member.FirstName + " " + member.LastName)
		if name == "" {
			name = "nuevo miembro"
		}
		text := fmt.Sprintf(
			"Bienvenido/a, %s 👋\n\n"+
				"Este es Ready2R — comunidad de inversores de pisos listos para alquilar.\n\n"+
				"Para enviar un piso para análisis, háblame en privado 👉 @%s y escribe /start\n"+
				"Para buscar por ciudad usa /madrid, /valencia, etc.\n\n"+
				"Lee las reglas en el mensaje fijado y preséntate en el hilo de Presentaciones.",
			name, h.botUsername)
		h.reply(msg.Chat.ID, text, nil)

		dm := fmt.Sprintf("Hola %s! Bienvenido a Ready2R.\n\nSi quieres enviar un piso para análisis, háblame aquí 👉 @%s y escribe /start", member.FirstName, h.botUsername)
		// DM may fail if the member never talked to the bot.
		_ = h.send(tgbotapi.NewMessage(member.ID, dm))
	}
}

func (h *Handler) downloadPhoto(ctx context.Context, fileID string) (string, error) {
	start := time.Now()
	file, err := h.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	metrics.ObserveNetworkRequest("telegram_bot", "get_file", start, err)
	if err != nil {
		return "", fmt.Errorf("resolver fichero: %w", err)
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("crear directorio de subidas: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+".jpg")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(h.token), nil)
	if err != nil {
		return "", err
	}
	start = time.Now()
	resp, err := http.DefaultClient.Do(req)
	metrics.ObserveNetworkRequest("telegram_bot", "download_file", start, err)
	if err != nil {
		return "", fmt.Errorf("descargar foto: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("descargar foto: estado %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("guardar foto: %w", err)
	}
	return path, nil
}

func (h *Handler) sendMainMenu(chatID int64, firstName string) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Busco una casa", "menu_search"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Vendo una casa", "menu_sell"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Manuales / Herramientas útiles", "menu_manuals"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Contacto", "menu_contact"),
		),
	)
	h.reply(chatID, fmt.Sprintf("Hola %s! ¿Qué necesitas hoy?", firstName), &keyboard)
}

func (h *Handler) searchKeyboard() *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Top por rentabilidad", "search_sort_yield"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Top por precio (más barato)", "search_sort_price"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Buscar por ciudad", "search_by_city"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Volver", "menu_back"),
		),
	)
	return &keyboard
}

func (h *Handler) privateRedirectText() string {
	return fmt.Sprintf(
		"Para usar el bot y enviar una casa, háblame en privado 👉 @%s y escribe /start\n\n"+
			"En este grupo usa comandos públicos como /madrid o /valencia.",
		h.botUsername)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		if err := h.send(msg); err != nil {
			return
		}
	}
}

func (h *Handler) send(msg tgbotapi.MessageConfig) error {
	start := time.Now()
	_, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		h.log.Error().Err(err).Int64("chat", msg.ChatID).Msg("no se pudo enviar el mensaje")
	}
	return err
}

func (h *Handler) editMessage(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	start := time.Now()
	_, err := h.bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("no se pudo editar el mensaje")
	}
}

func (h *Handler) editMessageWithKeyboard(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
	start := time.Now()
	_, err := h.bot.Send(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_message", start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("no se pudo editar el mensaje")
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(s)
	return strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
}
