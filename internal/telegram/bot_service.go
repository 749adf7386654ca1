// Package telegram connects the bot to the Telegram Bot API. It receives
// updates, routes them through the matchmaking engine and the anonymous
// message service, and renders replies in the user's language.
package telegram

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"nashenas/backend/internal/anonmsg"
	"nashenas/backend/internal/antispam"
	"nashenas/backend/internal/chathub"
	"nashenas/backend/internal/config"
	"nashenas/backend/internal/localization"
	"nashenas/backend/internal/models"
	"nashenas/backend/internal/moderation"
	"nashenas/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	stateAwaitingContact     = "awaiting_contact"
	stateAwaitingContactText = "awaiting_contact_text"
)

// BotService receives Telegram updates and routes them to the engine and the
// supporting services.
type BotService struct {
	BotAPI     *tgbotapi.BotAPI
	Engine     *chathub.Engine
	Storage    storage.Storage
	Localizer  *localization.Localizer
	AnonMsg    *anonmsg.Service
	Moderation *moderation.Service
	Limiter    *antispam.Limiter
	Cfg        *config.Config

	mu sync.Mutex
	// userStates drives the special-contact flow; contactBuffer holds the
	// resolved target between its two steps.
	userStates    map[int64]string
	contactBuffer map[int64]string
}

func NewBotService(cfg *config.Config, engine *chathub.Engine, s storage.Storage,
	anon *anonmsg.Service, mod *moderation.Service, limiter *antispam.Limiter) (*BotService, error) {

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("Authorized on account %s", bot.Self.UserName)

	localizer, err := localization.NewLocalizer("internal/localization/locales")
	if err != nil {
		return nil, fmt.Errorf("failed to create localizer: %w", err)
	}

	return &BotService{
		BotAPI:        bot,
		Engine:        engine,
		Storage:       s,
		Localizer:     localizer,
		AnonMsg:       anon,
		Moderation:    mod,
		Limiter:       limiter,
		Cfg:           cfg,
		userStates:    make(map[int64]string),
		contactBuffer: make(map[int64]string),
	}, nil
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.Message != nil:
			s.handleMessage(update.Message)
		case update.CallbackQuery != nil:
			s.handleCallbackQuery(update.CallbackQuery)
		}
	}
}

// getOrCreatePeer returns the user's Telegram peer, attaching a fresh one to
// the engine when the user has none yet.
func (s *BotService) getOrCreatePeer(user *models.User) *Peer {
	if existing, ok := s.Engine.Peer(user.ID); ok {
		if p, ok := existing.(*Peer); ok {
			return p
		}
	}

	p := &Peer{
		UserID:    user.ID,
		ChatID:    user.TelegramID,
		BotAPI:    s.BotAPI,
		Storage:   s.Storage,
		Localizer: s.Localizer,
		Send:      make(chan models.RelayMessage, 16),
	}
	s.Engine.RegisterPeer(p)
	p.Run()
	return p
}

func (s *BotService) handleMessage(msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}

	var username, firstName string
	if msg.From != nil {
		username = msg.From.UserName
		firstName = msg.From.FirstName
	}
	user, err := s.Storage.SaveUserIfNotExists(msg.Chat.ID, username, firstName)
	if err != nil {
		log.Printf("ERROR: Failed to resolve user for chat %d: %v", msg.Chat.ID, err)
		return
	}
	lang := user.Language

	banned, err := s.Moderation.IsBanned(user)
	if err != nil {
		log.Printf("WARN: ban check failed for %s: %v", user.ID, err)
	}
	if banned {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "blocked_notice", remainingBlockTime(user.BlockEndTime)))
		return
	}

	s.getOrCreatePeer(user)

	if msg.IsCommand() {
		s.handleCommand(msg, user)
		return
	}

	switch s.state(msg.Chat.ID) {
	case stateAwaitingContact:
		s.handleContactInput(msg, user)
		return
	case stateAwaitingContactText:
		s.handleContactText(msg, user)
		return
	}

	if msg.Text != "" && s.handleMenuButton(msg, user) {
		return
	}

	// A reply to a delivered anonymous message goes back to its sender.
	if msg.ReplyToMessage != nil {
		if senderID, ok := s.AnonMsg.TakeReplyTarget(msg.ReplyToMessage.MessageID); ok {
			s.deliverAnonReply(msg, user, senderID)
			return
		}
	}

	if _, inSession := s.Engine.Status(user.ID); inSession {
		s.relayToPartner(msg, user)
		return
	}

	if s.AnonMsg.HasTarget(user.ID) {
		s.submitAnonMessage(msg, user)
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "not_in_chat"))
	reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
	s.sendChattable(reply)
}

func (s *BotService) handleCommand(msg *tgbotapi.Message, user *models.User) {
	lang := user.Language

	switch msg.Command() {
	case "start":
		if payload := msg.CommandArguments(); payload != "" {
			s.handleDeepLink(msg.Chat.ID, user, payload)
			return
		}
		s.clearState(msg.Chat.ID)
		reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "welcome"))
		reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
		s.sendChattable(reply)
		s.notifyPending(user)

	case "chat":
		s.startRandomChat(msg.Chat.ID, user)

	case "next":
		s.doNext(msg.Chat.ID, user)

	case "end", "stop":
		s.doEnd(msg.Chat.ID, user)

	case "cancel":
		if s.state(msg.Chat.ID) != "" {
			s.clearState(msg.Chat.ID)
			reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "cancelled"))
			reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
			s.sendChattable(reply)
			return
		}
		if s.Engine.CancelSearch(user.ID) {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "search_cancelled"))
		} else {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "not_searching"))
		}

	case "link":
		s.sendPersonalLink(msg.Chat.ID, user)

	case "newmsg", "newms":
		s.popAnonMessage(msg.Chat.ID, user)

	case "help":
		reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "help"))
		reply.ParseMode = tgbotapi.ModeMarkdown
		s.sendChattable(reply)

	case "rules":
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "rules"))

	case "language":
		reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "choose_language"))
		reply.ReplyMarkup = languageKeyboard()
		s.sendChattable(reply)

	case "report":
		s.promptReport(msg.Chat.ID, user)

	default:
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "help"))
	}
}

// handleDeepLink processes /start with a personal-link payload: the visitor
// is armed to write one anonymous message to the link owner.
func (s *BotService) handleDeepLink(chatID int64, user *models.User, payload string) {
	lang := user.Language

	owner, err := s.AnonMsg.ResolveTarget(payload)
	if err != nil {
		s.send(chatID, s.Localizer.Get(lang, "link_invalid"))
		return
	}
	if err := s.AnonMsg.OpenTarget(user.ID, owner.ID); err != nil {
		if errors.Is(err, anonmsg.ErrSelfTarget) {
			s.send(chatID, s.Localizer.Get(lang, "own_link"))
			return
		}
		log.Printf("ERROR: failed to open anonymous target for %s: %v", user.ID, err)
		return
	}
	s.send(chatID, s.Localizer.Get(lang, "link_open_prompt"))
}

// handleMenuButton matches the text against the reply-keyboard labels.
// Labels in the user's language and English are both accepted, so a stale
// keyboard keeps working after a language switch.
func (s *BotService) handleMenuButton(msg *tgbotapi.Message, user *models.User) bool {
	isButton := func(key string) bool {
		return msg.Text == s.Localizer.Get(user.Language, key) ||
			msg.Text == s.Localizer.Get("en", key)
	}

	switch {
	case isButton("btn_random_chat"):
		s.startRandomChat(msg.Chat.ID, user)
	case isButton("btn_my_link"):
		s.sendPersonalLink(msg.Chat.ID, user)
	case isButton("btn_special_contact"):
		s.setState(msg.Chat.ID, stateAwaitingContact)
		s.send(msg.Chat.ID, s.Localizer.Get(user.Language, "special_contact_prompt"))
	case isButton("btn_help"):
		reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(user.Language, "help"))
		reply.ParseMode = tgbotapi.ModeMarkdown
		s.sendChattable(reply)
	case isButton("btn_next"):
		s.doNext(msg.Chat.ID, user)
	case isButton("btn_end"):
		s.doEnd(msg.Chat.ID, user)
	case isButton("btn_report"):
		s.promptReport(msg.Chat.ID, user)
	default:
		return false
	}
	return true
}

// startRandomChat begins the random-chat flow. Users without a stored gender
// pick one first; everyone confirms who they want to talk to before the
// search starts.
func (s *BotService) startRandomChat(chatID int64, user *models.User) {
	lang := user.Language
	if _, inSession := s.Engine.Status(user.ID); inSession {
		s.send(chatID, s.Localizer.Get(lang, "already_in_chat"))
		return
	}
	if user.Gender == models.GenderUnset {
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "choose_gender"))
		reply.ReplyMarkup = selfGenderKeyboard(s.Localizer, lang)
		s.sendChattable(reply)
		return
	}
	reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "choose_target_gender"))
	reply.ReplyMarkup = targetGenderKeyboard(s.Localizer, lang)
	s.sendChattable(reply)
}

func (s *BotService) doSearch(chatID int64, user *models.User) {
	lang := user.Language
	res, err := s.Engine.RequestChat(user.ID)
	switch {
	case errors.Is(err, chathub.ErrAlreadyInSession):
		s.send(chatID, s.Localizer.Get(lang, "already_in_chat"))
	case errors.Is(err, chathub.ErrAlreadyWaiting):
		s.send(chatID, s.Localizer.Get(lang, "already_searching"))
	case err != nil:
		log.Printf("ERROR: chat request failed for %s: %v", user.ID, err)
	case !res.Matched:
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "searching"))
		reply.ReplyMarkup = cancelSearchKeyboard(s.Localizer, lang)
		s.sendChattable(reply)
	}
	// On a match both peers get the system notice from the engine.
}

func (s *BotService) doNext(chatID int64, user *models.User) {
	lang := user.Language
	res, err := s.Engine.RequestNext(user.ID)
	switch {
	case errors.Is(err, chathub.ErrAlreadyWaiting):
		s.send(chatID, s.Localizer.Get(lang, "already_searching"))
	case err != nil:
		log.Printf("ERROR: next request failed for %s: %v", user.ID, err)
	case !res.Matched:
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "searching"))
		reply.ReplyMarkup = cancelSearchKeyboard(s.Localizer, lang)
		s.sendChattable(reply)
	}
}

func (s *BotService) doEnd(chatID int64, user *models.User) {
	lang := user.Language
	err := s.Engine.EndChat(user.ID, models.EndReasonUser)
	if errors.Is(err, chathub.ErrNoActiveSession) {
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "not_in_chat"))
		reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
		s.sendChattable(reply)
		return
	}
	if err != nil {
		log.Printf("ERROR: end chat failed for %s: %v", user.ID, err)
	}
}

func (s *BotService) sendPersonalLink(chatID int64, user *models.User) {
	link, err := s.AnonMsg.PersonalLink(user)
	if err != nil {
		log.Printf("ERROR: failed to build personal link for %s: %v", user.ID, err)
		return
	}
	s.send(chatID, s.Localizer.Get(user.Language, "your_link", link))
}

// notifyPending tells the user about unread anonymous messages, if any.
func (s *BotService) notifyPending(user *models.User) {
	n, err := s.AnonMsg.Pending(user.ID)
	if err != nil || n == 0 {
		return
	}
	s.send(user.TelegramID, s.Localizer.Get(user.Language, "pending_messages", n))
}

// popAnonMessage delivers the oldest unread anonymous message and arms the
// reply mapping so the owner can answer it.
func (s *BotService) popAnonMessage(chatID int64, user *models.User) {
	lang := user.Language
	m, err := s.AnonMsg.NextMessage(user.ID)
	if err != nil {
		log.Printf("ERROR: failed to fetch anonymous message for %s: %v", user.ID, err)
		return
	}
	if m == nil {
		s.send(chatID, s.Localizer.Get(lang, "no_new_messages"))
		return
	}

	header := s.Localizer.Get(lang, "anon_header")
	hint := s.Localizer.Get(lang, "anon_reply_hint")

	var delivered tgbotapi.Message
	if m.Type == "text" {
		delivered, err = s.BotAPI.Send(tgbotapi.NewMessage(chatID,
			header+"\n\n"+m.Content+"\n\n"+hint))
	} else {
		delivered, err = s.BotAPI.Send(anonMedia(chatID, m.Type, m.Content,
			strings.TrimSpace(header+"\n"+m.Caption)))
	}
	if err != nil {
		log.Printf("ERROR: failed to deliver anonymous message %d: %v", m.ID, err)
		return
	}
	s.AnonMsg.TrackReply(delivered.MessageID, m.SenderID)
}

// anonMedia builds the Bot API call for a queued media message.
func anonMedia(chatID int64, msgType, fileID, caption string) tgbotapi.Chattable {
	switch msgType {
	case "photo":
		msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
		msg.Caption = caption
		return msg
	case "video":
		msg := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
		msg.Caption = caption
		return msg
	case "animation":
		msg := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(fileID))
		msg.Caption = caption
		return msg
	case "document":
		msg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
		msg.Caption = caption
		return msg
	case "audio":
		msg := tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID))
		msg.Caption = caption
		return msg
	case "voice":
		return tgbotapi.NewVoice(chatID, tgbotapi.FileID(fileID))
	case "sticker":
		return tgbotapi.NewSticker(chatID, tgbotapi.FileID(fileID))
	case "video_note":
		return tgbotapi.NewVideoNote(chatID, 0, tgbotapi.FileID(fileID))
	default:
		return tgbotapi.NewMessage(chatID, fileID)
	}
}

// deliverAnonReply routes the owner's reply back to the anonymous sender and
// arms the reverse mapping so the exchange can continue.
func (s *BotService) deliverAnonReply(msg *tgbotapi.Message, user *models.User, senderID string) {
	lang := user.Language
	if msg.Text == "" {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "unsupported_message_type"))
		return
	}
	if !s.Limiter.Allow(user.ID) {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "spam_warning"))
		return
	}

	target, err := s.Storage.GetUserByID(senderID)
	if err != nil {
		log.Printf("ERROR: reply target %s not found: %v", senderID, err)
		return
	}
	if err := s.AnonMsg.SendDirect(user.ID, target, msg.Text); err != nil {
		if errors.Is(err, anonmsg.ErrBlocked) {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "muted"))
			return
		}
		log.Printf("ERROR: failed to record anonymous reply: %v", err)
		return
	}

	header := s.Localizer.Get(target.Language, "anon_header")
	hint := s.Localizer.Get(target.Language, "anon_reply_hint")
	delivered, err := s.BotAPI.Send(tgbotapi.NewMessage(target.TelegramID,
		header+"\n\n"+msg.Text+"\n\n"+hint))
	if err != nil {
		log.Printf("ERROR: failed to deliver anonymous reply to %s: %v", target.ID, err)
		return
	}
	s.AnonMsg.TrackReply(delivered.MessageID, user.ID)
	s.send(msg.Chat.ID, s.Localizer.Get(lang, "anon_reply_sent"))
}

// submitAnonMessage consumes the visitor's armed personal-link target.
func (s *BotService) submitAnonMessage(msg *tgbotapi.Message, user *models.User) {
	lang := user.Language
	if !s.Limiter.Allow(user.ID) {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "spam_warning"))
		return
	}

	msgType, fileID, caption := extractMediaInfo(msg)
	content := caption
	if msgType != "text" {
		content = fileID
	} else {
		caption = ""
	}
	if content == "" {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "unsupported_message_type"))
		return
	}

	owner, err := s.AnonMsg.Submit(user.ID, msgType, content, caption)
	if err != nil {
		if errors.Is(err, anonmsg.ErrBlocked) {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "muted"))
			return
		}
		log.Printf("ERROR: failed to submit anonymous message from %s: %v", user.ID, err)
		return
	}

	s.send(owner.TelegramID, s.Localizer.Get(owner.Language, "anon_notice"))

	reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "anon_sent"))
	reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
	s.sendChattable(reply)
}

// handleContactInput resolves the special-contact target.
func (s *BotService) handleContactInput(msg *tgbotapi.Message, user *models.User) {
	lang := user.Language
	target, err := s.AnonMsg.ResolveContact(msg.Text, user.ID)
	switch {
	case errors.Is(err, anonmsg.ErrSelfTarget):
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "cannot_message_self"))
		return
	case err != nil:
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "contact_not_found"))
		return
	}

	s.mu.Lock()
	s.contactBuffer[msg.Chat.ID] = target.ID
	s.userStates[msg.Chat.ID] = stateAwaitingContactText
	s.mu.Unlock()

	s.send(msg.Chat.ID, s.Localizer.Get(lang, "special_contact_text_prompt"))
}

// handleContactText delivers the directed anonymous message.
func (s *BotService) handleContactText(msg *tgbotapi.Message, user *models.User) {
	lang := user.Language
	if msg.Text == "" {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "unsupported_message_type"))
		return
	}

	s.mu.Lock()
	targetID := s.contactBuffer[msg.Chat.ID]
	s.mu.Unlock()
	s.clearState(msg.Chat.ID)
	if targetID == "" {
		return
	}

	target, err := s.Storage.GetUserByID(targetID)
	if err != nil {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "contact_not_found"))
		return
	}
	if err := s.AnonMsg.SendDirect(user.ID, target, msg.Text); err != nil {
		if errors.Is(err, anonmsg.ErrBlocked) {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "muted"))
			return
		}
		log.Printf("ERROR: failed to record directed message: %v", err)
		return
	}

	delivered, err := s.BotAPI.Send(tgbotapi.NewMessage(target.TelegramID,
		s.Localizer.Get(target.Language, "direct_received", msg.Text)))
	if err != nil {
		log.Printf("ERROR: failed to deliver directed message to %s: %v", target.ID, err)
		return
	}
	s.AnonMsg.TrackReply(delivered.MessageID, user.ID)

	reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "direct_sent"))
	reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
	s.sendChattable(reply)
}

// relayToPartner forwards a message inside an active session.
func (s *BotService) relayToPartner(msg *tgbotapi.Message, user *models.User) {
	lang := user.Language
	if !s.Limiter.Allow(user.ID) {
		s.send(msg.Chat.ID, s.Localizer.Get(lang, "spam_warning"))
		return
	}

	msgType, fileID, caption := extractMediaInfo(msg)
	relay := models.RelayMessage{Type: msgType}
	if msgType == "text" {
		if msg.Text == "" {
			s.send(msg.Chat.ID, s.Localizer.Get(lang, "unsupported_message_type"))
			return
		}
		relay.Content = msg.Text
	} else {
		relay.Content = fileID
		relay.Metadata = caption
	}

	if err := s.Engine.Relay(user.ID, relay); err != nil {
		if errors.Is(err, chathub.ErrDeliveryFailed) {
			reply := tgbotapi.NewMessage(msg.Chat.ID, s.Localizer.Get(lang, "delivery_failed"))
			reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, lang)
			s.sendChattable(reply)
			return
		}
		log.Printf("ERROR: relay failed for %s: %v", user.ID, err)
		return
	}

	s.logCopy(msg)
}

// logCopy forwards a relayed message to the moderation log channel.
func (s *BotService) logCopy(msg *tgbotapi.Message) {
	if s.Cfg.LogChannelID == 0 {
		return
	}
	forward := tgbotapi.NewForward(s.Cfg.LogChannelID, msg.Chat.ID, msg.MessageID)
	if _, err := s.BotAPI.Send(forward); err != nil {
		log.Printf("WARN: failed to copy message to log channel: %v", err)
	}
}

func (s *BotService) promptReport(chatID int64, user *models.User) {
	lang := user.Language
	if _, _, err := s.Engine.SessionOf(user.ID); err != nil {
		s.send(chatID, s.Localizer.Get(lang, "report_only_in_chat"))
		return
	}
	reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "report_prompt"))
	reply.ReplyMarkup = reportKeyboard(s.Localizer, lang)
	s.sendChattable(reply)
}

func (s *BotService) handleCallbackQuery(cb *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client drops the loading state.
	if _, err := s.BotAPI.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to answer callback query: %v", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	user, err := s.Storage.GetUserByTelegramID(chatID)
	if err != nil {
		log.Printf("ERROR: callback from unknown chat %d: %v", chatID, err)
		return
	}
	lang := user.Language

	switch data := cb.Data; {
	case strings.HasPrefix(data, "set_lang_"):
		code := strings.TrimPrefix(data, "set_lang_")
		if err := s.Storage.UpdateUserLanguage(chatID, code); err != nil {
			log.Printf("failed to update user language: %v", err)
			return
		}
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(code, "language_changed"))
		reply.ReplyMarkup = mainMenuKeyboard(s.Localizer, code)
		s.sendChattable(reply)

	case data == "rand_self_male" || data == "rand_self_female":
		gender := models.GenderMale
		if data == "rand_self_female" {
			gender = models.GenderFemale
		}
		if err := s.Storage.UpdateUserGender(user.ID, gender); err != nil {
			log.Printf("failed to update gender for %s: %v", user.ID, err)
			return
		}
		reply := tgbotapi.NewMessage(chatID, s.Localizer.Get(lang, "choose_target_gender"))
		reply.ReplyMarkup = targetGenderKeyboard(s.Localizer, lang)
		s.sendChattable(reply)

	case strings.HasPrefix(data, "rand_target_"):
		target := models.TargetGender(strings.TrimPrefix(data, "rand_target_"))
		if err := s.Storage.UpdateUserTargetGender(user.ID, target); err != nil {
			log.Printf("failed to update target gender for %s: %v", user.ID, err)
			return
		}
		s.getOrCreatePeer(user)
		s.doSearch(chatID, user)

	case data == "rand_cancel_search":
		if s.Engine.CancelSearch(user.ID) {
			s.send(chatID, s.Localizer.Get(lang, "search_cancelled"))
		} else {
			s.send(chatID, s.Localizer.Get(lang, "not_searching"))
		}

	case strings.HasPrefix(data, "report_"):
		s.fileReport(chatID, user, strings.TrimPrefix(data, "report_"))
	}
}

// fileReport reports the user's current partner. A ban triggered by the
// report ends the session immediately.
func (s *BotService) fileReport(chatID int64, user *models.User, reportType string) {
	lang := user.Language
	sessionID, partnerID, err := s.Engine.SessionOf(user.ID)
	if err != nil {
		s.send(chatID, s.Localizer.Get(lang, "report_only_in_chat"))
		return
	}

	banned, err := s.Moderation.FileReport(user.ID, partnerID, sessionID, reportType, "")
	if err != nil {
		log.Printf("ERROR: failed to file report by %s: %v", user.ID, err)
		return
	}
	if banned {
		if err := s.Engine.EndChat(partnerID, models.EndReasonPeerBlocked); err != nil &&
			!errors.Is(err, chathub.ErrNoActiveSession) {
			log.Printf("ERROR: failed to end session after ban: %v", err)
		}
	}
	s.send(chatID, s.Localizer.Get(lang, "report_submitted"))
}

// extractMediaInfo uniformly extracts media type, file ID and caption.
func extractMediaInfo(msg *tgbotapi.Message) (msgType, fileID, caption string) {
	caption = msg.Caption
	if caption == "" {
		caption = msg.Text
	}
	switch {
	case msg.Photo != nil:
		msgType = "photo"
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		msgType = "video"
		fileID = msg.Video.FileID
	case msg.Animation != nil:
		msgType = "animation"
		fileID = msg.Animation.FileID
	case msg.Document != nil:
		msgType = "document"
		fileID = msg.Document.FileID
	case msg.Audio != nil:
		msgType = "audio"
		fileID = msg.Audio.FileID
	case msg.Sticker != nil:
		msgType = "sticker"
		fileID = msg.Sticker.FileID
	case msg.Voice != nil:
		msgType = "voice"
		fileID = msg.Voice.FileID
	case msg.VideoNote != nil:
		msgType = "video_note"
		fileID = msg.VideoNote.FileID
	default:
		msgType = "text"
	}
	return
}

func (s *BotService) state(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userStates[chatID]
}

func (s *BotService) setState(chatID int64, state string) {
	s.mu.Lock()
	s.userStates[chatID] = state
	s.mu.Unlock()
}

func (s *BotService) clearState(chatID int64) {
	s.mu.Lock()
	delete(s.userStates, chatID)
	delete(s.contactBuffer, chatID)
	s.mu.Unlock()
}

func (s *BotService) send(chatID int64, text string) {
	s.sendChattable(tgbotapi.NewMessage(chatID, text))
}

func (s *BotService) sendChattable(msg tgbotapi.Chattable) {
	if _, err := s.BotAPI.Send(msg); err != nil {
		log.Printf("ERROR: Failed to send Telegram message: %v", err)
	}
}
