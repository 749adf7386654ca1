package telegram

import (
	"nashenas/backend/internal/localization"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// mainMenuKeyboard is the persistent reply keyboard shown outside of a chat.
func mainMenuKeyboard(l *localization.Localizer, lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_random_chat")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_my_link")),
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_special_contact")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_help")),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// inChatKeyboard is shown while a random-chat session is active.
func inChatKeyboard(l *localization.Localizer, lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_next")),
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_end")),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(l.Get(lang, "btn_report")),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func selfGenderKeyboard(l *localization.Localizer, lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_male"), "rand_self_male"),
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_female"), "rand_self_female"),
		),
	)
}

func targetGenderKeyboard(l *localization.Localizer, lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_male"), "rand_target_male"),
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_female"), "rand_target_female"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_any"), "rand_target_any"),
		),
	)
}

func cancelSearchKeyboard(l *localization.Localizer, lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "btn_cancel_search"), "rand_cancel_search"),
		),
	)
}

func reportKeyboard(l *localization.Localizer, lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "report_critical"), "report_Critical"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "report_medium"), "report_Medium"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Get(lang, "report_low"), "report_Low"),
		),
	)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("English", "set_lang_en"),
			tgbotapi.NewInlineKeyboardButtonData("فارسی", "set_lang_fa"),
		),
	)
}
