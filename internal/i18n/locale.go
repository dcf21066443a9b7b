// Package i18n holds the static English/Vietnamese strings the server speaks or surfaces.
package i18n

import "strings"

// Language is a supported UI/speech language.
type Language string

const (
	English    Language = "en"
	Vietnamese Language = "vi"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == English || l == Vietnamese
}

// Tag returns the BCP-47 tag used by speech engines.
func (l Language) Tag() string {
	if l == Vietnamese {
		return "vi-VN"
	}
	return "en-US"
}

// Key names a localized string.
type Key string

const (
	KeyReady              Key = "ready"
	KeyListening          Key = "listening"
	KeyThinking           Key = "thinking"
	KeySpeaking           Key = "speaking"
	KeyWelcome            Key = "welcomeMessage"
	KeyResponse1          Key = "response1"
	KeyResponse2          Key = "response2"
	KeyResponse3          Key = "response3"
	KeyResponse4          Key = "response4"
	KeySOSEmergency       Key = "sosEmergency"
	KeySOSResponse        Key = "sosResponse"
	KeySOSCallingMessage  Key = "sosCallingMessage"
	KeySOSNotifyBody      Key = "sosNotifyBody"
	KeyMicDenied          Key = "micPermissionDenied"
	KeySpeechUnsupported  Key = "speechUnsupported"
	KeyCaptureUnsupported Key = "captureUnsupported"
	KeyBackendFailure     Key = "backendFailure"
	KeyDefaultUserName    Key = "defaultUserName"
)

// Responses lists the canned reply keys in order.
var Responses = []Key{KeyResponse1, KeyResponse2, KeyResponse3, KeyResponse4}

var translations = map[Language]map[Key]string{
	English: {
		KeyReady:              "😊 Ready to chat",
		KeyListening:          "🎧 Listening...",
		KeyThinking:           "💭 Thinking...",
		KeySpeaking:           "💬 Speaking...",
		KeyWelcome:            "Hello! I'm Aura, your companion. How are you feeling today? I'm always here to listen and chat with you. 💙",
		KeyResponse1:          "I understand. That sounds very meaningful. Would you like to tell me more?",
		KeyResponse2:          "Thank you for sharing with me. I'm happy to listen to you.",
		KeyResponse3:          "That's right! I'm always here with you. We can talk about anything you want.",
		KeyResponse4:          "I remember last time you mentioned your family. How is everyone doing lately?",
		KeySOSEmergency:       "🆘 EMERGENCY ASSISTANCE REQUEST",
		KeySOSResponse:        "I've received your request for help. I'm contacting your family right now. Can you tell me what you need help with?",
		KeySOSCallingMessage:  "Contacting your family in",
		KeySOSNotifyBody:      "Aura: {{userName}} pressed the SOS button and needs assistance.",
		KeyMicDenied:          "Please allow microphone access to use this feature.",
		KeySpeechUnsupported:  "Speech output is not available right now.",
		KeyCaptureUnsupported: "Voice input is not supported on this device.",
		KeyBackendFailure:     "Sorry, I could not answer just now. Please try again.",
		KeyDefaultUserName:    "Friend",
	},
	Vietnamese: {
		KeyReady:              "😊 Sẵn sàng trò chuyện",
		KeyListening:          "🎧 Đang lắng nghe...",
		KeyThinking:           "💭 Đang suy nghĩ...",
		KeySpeaking:           "💬 Đang nói...",
		KeyWelcome:            "Xin chào! Tôi là Aura, người bạn đồng hành của bạn. Hôm nay bạn cảm thấy thế nào? Tôi luôn ở đây để lắng nghe và trò chuyện cùng bạn. 💙",
		KeyResponse1:          "Tôi hiểu. Điều đó nghe có vẻ rất ý nghĩa. Bạn có muốn kể thêm cho tôi nghe không?",
		KeyResponse2:          "Cảm ơn đã chia sẻ với tôi. Tôi rất vui được lắng nghe bạn.",
		KeyResponse3:          "Đúng vậy! Tôi luôn ở đây cùng bạn. Chúng ta có thể nói chuyện về bất cứ điều gì bạn muốn.",
		KeyResponse4:          "Tôi nhớ lần trước bạn có kể về gia đình mình. Gần đây mọi người thế nào rồi?",
		KeySOSEmergency:       "🆘 YÊU CẦU HỖ TRỢ KHẨN CẤP",
		KeySOSResponse:        "Tôi đã nhận được yêu cầu trợ giúp của bạn. Tôi đang liên hệ với người thân của bạn ngay bây giờ. Bạn có thể cho tôi biết bạn cần giúp gì không?",
		KeySOSCallingMessage:  "Đang liên hệ người thân trong",
		KeySOSNotifyBody:      "Aura: {{userName}} vừa nhấn nút SOS và cần được hỗ trợ.",
		KeyMicDenied:          "Vui lòng cho phép truy cập microphone để sử dụng tính năng này.",
		KeySpeechUnsupported:  "Hiện không thể phát giọng nói.",
		KeyCaptureUnsupported: "Trình duyệt không hỗ trợ nhận diện giọng nói",
		KeyBackendFailure:     "Xin lỗi, tôi chưa trả lời được. Bạn hãy thử lại nhé.",
		KeyDefaultUserName:    "Bạn",
	},
}

// T looks up key for lang, falling back to English and then to the key itself.
func T(lang Language, key Key) string {
	if s, ok := translations[lang][key]; ok {
		return s
	}
	if s, ok := translations[English][key]; ok {
		return s
	}
	return string(key)
}

// Format looks up key and substitutes {{name}} placeholders.
func Format(lang Language, key Key, vars map[string]string) string {
	s := T(lang, key)
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
