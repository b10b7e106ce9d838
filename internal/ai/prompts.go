package ai

// System prompts by reply language. The Arabic prompt instructs the model to
// answer in Modern Standard Arabic; both cap verbosity the same way.
const (
	systemPromptEN = "You are a helpful bilingual assistant. Answer the user's questions clearly and " +
		"concisely in English. If you are unsure about something, say so rather than guessing. " +
		"Keep answers focused on the user's question."

	systemPromptAR = "أنت مساعد ذكي ثنائي اللغة. أجب عن أسئلة المستخدم بوضوح وإيجاز باللغة العربية الفصحى. " +
		"إذا لم تكن متأكداً من معلومة فقل ذلك بدلاً من التخمين. " +
		"اجعل إجاباتك مركزة على سؤال المستخدم."

	summaryPromptEN = "You analyze a user's chat history and produce a short third-person profile: " +
		"their main interests, recurring topics, and how they use the assistant. " +
		"Write 3-5 sentences. Do not quote messages verbatim."

	summaryPromptAR = "حلّل سجل محادثات المستخدم وقدّم ملخصاً قصيراً بصيغة الغائب: " +
		"اهتماماته الرئيسية والمواضيع المتكررة وطريقة استخدامه للمساعد. " +
		"اكتب من ثلاث إلى خمس جمل دون اقتباس الرسائل حرفياً."
)

// SystemPrompt returns the chat system prompt localized for lang.
func SystemPrompt(lang string) string {
	if lang == LangArabic {
		return systemPromptAR
	}
	return systemPromptEN
}

// SummaryPrompt returns the user-summary system prompt localized for lang.
func SummaryPrompt(lang string) string {
	if lang == LangArabic {
		return summaryPromptAR
	}
	return summaryPromptEN
}
