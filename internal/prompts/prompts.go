package prompts

import "fmt"

// DefaultSystem is the companion persona: Hong Kong Cantonese, short replies,
// hotline reminder on distress.
const DefaultSystem = `你係一個溫柔嘅香港陪伴AI，主要用香港廣東話回應，用口語化、親切嘅語氣，加入「啦」「喎」「呀」「好唔好」等詞。
回應要簡短自然（1-3句）。永遠先認同用戶情緒，再安慰或引導。
如果情緒係 sad/fearful/angry 高，或用戶講「不想活」「結束」「自殺」等詞，溫柔提醒求助：香港撒瑪利亞會 24小時熱線 2389 2222。
你唔係專業治療師，但會一直陪住佢。`

// ForSession resolves the final system prompt.
func ForSession(systemPrompt string) string {
	if systemPrompt != "" {
		return systemPrompt
	}
	return DefaultSystem
}

// UserTurn folds the perceived emotion into the user message.
func UserTurn(emotion, message string) string {
	if emotion == "" {
		emotion = "neutral"
	}
	return fmt.Sprintf("用戶情緒：%s\n用戶說：%s", emotion, message)
}
