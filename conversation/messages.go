package conversation

import "ovozber-backend/model"

// 支持的语言
const (
	LangUzbek   = "uz"
	LangEnglish = "en"
)

type messageKey string

const (
	msgWelcome          messageKey = "welcome"
	msgCheckButton      messageKey = "check_button"
	msgSubscribed       messageKey = "subscribed"
	msgChoosePoll       messageKey = "choose_poll"
	msgNoPolls          messageKey = "no_polls"
	msgAlreadyVoted     messageKey = "already_voted"
	msgPollMissing      messageKey = "poll_missing"
	msgChooseRegion     messageKey = "choose_region"
	msgNoRegions        messageKey = "no_regions"
	msgChooseDistrict   messageKey = "choose_district"
	msgNoDistricts      messageKey = "no_districts"
	msgChooseCandidate  messageKey = "choose_candidate"
	msgNoCandidates     messageKey = "no_candidates"
	msgVoteSuccess      messageKey = "vote_success"
	msgOtherPolls       messageKey = "other_polls"
	msgBack             messageKey = "back"
	msgPollsButton      messageKey = "polls_button"
	msgCancelled        messageKey = "cancelled"
	msgRestart          messageKey = "restart"
	msgUnexpectedChoice messageKey = "unexpected_choice"
)

var messages = map[string]map[messageKey]string{
	LangUzbek: {
		msgWelcome:          "🗳 Assalomu alaykum!\n\nOvoz berish tizimiga xush kelibsiz!\n\nDavom etish uchun quyidagi kanallarga obuna bo'lishingiz kerak:",
		msgCheckButton:      "✅ Obunani tekshirish",
		msgSubscribed:       "✅ Obuna tasdiqlandi!\n\nEndi siz ovoz berishingiz mumkin.",
		msgChoosePoll:       "📋 Ovoz berish uchun so'rovnomani tanlang:",
		msgNoPolls:          "⚠️ Hozircha faol so'rovnomalar mavjud emas.",
		msgAlreadyVoted:     "⚠️ Siz bu so'rovnomada allaqachon ovoz bergansiz.",
		msgPollMissing:      "⚠️ Xatolik: So'rovnoma topilmadi. Qayta urinib ko'ring.",
		msgChooseRegion:     "🗺 Viloyatingizni tanlang:",
		msgNoRegions:        "⚠️ Bu so'rovnoma uchun viloyatlar mavjud emas.",
		msgChooseDistrict:   "🏘 Tumaningizni tanlang:",
		msgNoDistricts:      "⚠️ Bu viloyatda tumanlar mavjud emas.",
		msgChooseCandidate:  "👤 Nomzodni tanlang:",
		msgNoCandidates:     "⚠️ Bu tumanda nomzodlar mavjud emas.",
		msgVoteSuccess:      "✅ Ovozingiz muvaffaqiyatli qabul qilindi!\n\nIshtirok etganingiz uchun rahmat! 🎉",
		msgOtherPolls:       "📋 Boshqa so'rovnomalar",
		msgBack:             "◀️ Orqaga",
		msgPollsButton:      "◀️ So'rovnomalar",
		msgCancelled:        "Jarayon bekor qilindi. /start ni bosing.",
		msgRestart:          "Davom etish uchun /start ni bosing.",
		msgUnexpectedChoice: "⚠️ Bu tanlov hozir mavjud emas.",
	},
	LangEnglish: {
		msgWelcome:          "🗳 Hello!\n\nWelcome to the voting system!\n\nTo continue, subscribe to the channels below:",
		msgCheckButton:      "✅ Check subscription",
		msgSubscribed:       "✅ Subscription confirmed!\n\nYou can vote now.",
		msgChoosePoll:       "📋 Choose a poll to vote in:",
		msgNoPolls:          "⚠️ There are no active polls right now.",
		msgAlreadyVoted:     "⚠️ You have already voted in this poll.",
		msgPollMissing:      "⚠️ Error: poll not found. Please try again.",
		msgChooseRegion:     "🗺 Choose your region:",
		msgNoRegions:        "⚠️ This poll has no regions.",
		msgChooseDistrict:   "🏘 Choose your district:",
		msgNoDistricts:      "⚠️ This region has no districts.",
		msgChooseCandidate:  "👤 Choose a candidate:",
		msgNoCandidates:     "⚠️ This district has no candidates.",
		msgVoteSuccess:      "✅ Your vote has been recorded!\n\nThank you for taking part! 🎉",
		msgOtherPolls:       "📋 Other polls",
		msgBack:             "◀️ Back",
		msgPollsButton:      "◀️ Polls",
		msgCancelled:        "Cancelled. Press /start to begin again.",
		msgRestart:          "Press /start to continue.",
		msgUnexpectedChoice: "⚠️ That option is not available now.",
	},
}

var reasonTexts = map[string]map[model.RejectReason]string{
	LangUzbek: {
		model.ReasonUserNotFound:      "❌ Foydalanuvchi topilmadi. /start ni bosing.",
		model.ReasonPollNotFound:      "❌ So'rovnoma topilmadi.",
		model.ReasonPollClosed:        "❌ Bu so'rovnomada ovoz berish yakunlangan.",
		model.ReasonAlreadyVoted:      "⚠️ Siz bu so'rovnomada allaqachon ovoz bergansiz!",
		model.ReasonCandidateNotFound: "❌ Nomzod topilmadi.",
		model.ReasonCandidateMismatch: "❌ Nomzod bu so'rovnomaga tegishli emas.",
	},
	LangEnglish: {
		model.ReasonUserNotFound:      "❌ User not found. Press /start.",
		model.ReasonPollNotFound:      "❌ Poll not found.",
		model.ReasonPollClosed:        "❌ Voting on this poll is closed.",
		model.ReasonAlreadyVoted:      "⚠️ You have already voted in this poll!",
		model.ReasonCandidateNotFound: "❌ Candidate not found.",
		model.ReasonCandidateMismatch: "❌ This candidate does not belong to the poll.",
	},
}

// SupportedLanguage 是否支持该语言
func SupportedLanguage(lang string) bool {
	_, ok := messages[lang]
	return ok
}

func text(lang string, key messageKey) string {
	if msg, ok := messages[lang][key]; ok {
		return msg
	}
	return messages[LangUzbek][key]
}

func reasonText(lang string, reason model.RejectReason) string {
	if msg, ok := reasonTexts[lang][reason]; ok {
		return msg
	}
	if msg, ok := reasonTexts[LangUzbek][reason]; ok {
		return msg
	}
	return reason.Message()
}
