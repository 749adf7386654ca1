package telegram

import (
	"log"
	"time"

	"nashenas/backend/internal/localization"
	"nashenas/backend/internal/models"
	"nashenas/backend/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Peer implements chathub.Peer for a Telegram user. Incoming updates are read
// centrally by BotService; the peer only owns the write side, converting relay
// payloads into Bot API sends.
type Peer struct {
	UserID string
	ChatID int64

	BotAPI    *tgbotapi.BotAPI
	Storage   storage.Storage
	Localizer *localization.Localizer
	Send      chan models.RelayMessage
}

func (p *Peer) GetUserID() string { return p.UserID }

func (p *Peer) GetSendChannel() chan<- models.RelayMessage { return p.Send }

// Run starts the write pump. There is no read pump; BotService feeds the
// engine from the shared update loop.
func (p *Peer) Run() {
	go p.writePump()
}

// Close releases the send channel, which stops the write pump.
func (p *Peer) Close() {
	close(p.Send)
}

func (p *Peer) lang() string {
	user, err := p.Storage.GetUserByID(p.UserID)
	if err != nil {
		return "en"
	}
	return user.Language
}

func (p *Peer) writePump() {
	defer log.Printf("Stopped write pump for Telegram peer %s", p.UserID)

	for message := range p.Send {
		tgMsg := p.convert(message)
		if tgMsg == nil {
			continue
		}
		if _, err := p.BotAPI.Send(tgMsg); err != nil {
			log.Printf("ERROR: Failed to send Telegram message to chat %d: %v", p.ChatID, err)
		}
	}
}

// convert maps a relay payload to the matching Bot API call. Relayed media
// travels by file ID; Telegram serves the bytes from its own storage, so the
// recipient never sees where the file came from.
func (p *Peer) convert(message models.RelayMessage) tgbotapi.Chattable {
	switch message.Type {
	case "text":
		return tgbotapi.NewMessage(p.ChatID, message.Content)

	case "photo":
		msg := tgbotapi.NewPhoto(p.ChatID, tgbotapi.FileID(message.Content))
		msg.Caption = message.Metadata
		return msg

	case "video":
		msg := tgbotapi.NewVideo(p.ChatID, tgbotapi.FileID(message.Content))
		msg.Caption = message.Metadata
		return msg

	case "animation":
		msg := tgbotapi.NewAnimation(p.ChatID, tgbotapi.FileID(message.Content))
		msg.Caption = message.Metadata
		return msg

	case "document":
		msg := tgbotapi.NewDocument(p.ChatID, tgbotapi.FileID(message.Content))
		msg.Caption = message.Metadata
		return msg

	case "audio":
		msg := tgbotapi.NewAudio(p.ChatID, tgbotapi.FileID(message.Content))
		msg.Caption = message.Metadata
		return msg

	case "sticker":
		return tgbotapi.NewSticker(p.ChatID, tgbotapi.FileID(message.Content))

	case "voice":
		return tgbotapi.NewVoice(p.ChatID, tgbotapi.FileID(message.Content))

	case "video_note":
		return tgbotapi.NewVideoNote(p.ChatID, 0, tgbotapi.FileID(message.Content))

	case "system_match_found":
		lang := p.lang()
		msg := tgbotapi.NewMessage(p.ChatID, p.Localizer.Get(lang, "match_found"))
		msg.ReplyMarkup = inChatKeyboard(p.Localizer, lang)
		return msg

	case "system_chat_ended":
		lang := p.lang()
		var text string
		switch {
		case message.SenderID == p.UserID && message.Reason != models.EndReasonTimeout:
			text = p.Localizer.Get(lang, "chat_ended_self")
		case message.Reason == models.EndReasonTimeout:
			text = p.Localizer.Get(lang, "chat_ended_timeout")
		default:
			text = p.Localizer.Get(lang, "chat_ended_partner")
		}
		msg := tgbotapi.NewMessage(p.ChatID, text)
		msg.ReplyMarkup = mainMenuKeyboard(p.Localizer, lang)
		return msg

	case "system_search_timeout":
		lang := p.lang()
		msg := tgbotapi.NewMessage(p.ChatID, p.Localizer.Get(lang, "search_timeout"))
		msg.ReplyMarkup = mainMenuKeyboard(p.Localizer, lang)
		return msg

	case "system_info":
		return tgbotapi.NewMessage(p.ChatID, message.Content)

	default:
		if message.SenderID != p.UserID {
			log.Printf("Unhandled relay type %q for Telegram peer %s", message.Type, p.UserID)
			return tgbotapi.NewMessage(p.ChatID, p.Localizer.Get(p.lang(), "unsupported_message_type"))
		}
		return nil
	}
}

// remainingBlockTime renders how long a block still lasts, rounded for
// display.
func remainingBlockTime(blockEnd int64) string {
	return time.Until(time.Unix(blockEnd, 0)).Round(time.Minute).String()
}
