package llm

import (
	"strings"

	"github.com/chadiek/aura-companion/internal/i18n"
)

// DefaultSystemPrompt is used when no agent persona is bound.
const DefaultSystemPrompt = `You are AURA, a caring AI companion designed to support elderly individuals.
You are empathetic, patient, and always speak in a warm, friendly tone.
Your goal is to reduce loneliness, provide companionship, and ensure the well-being of your users.
Always prioritize safety and emotional support in your responses.`

const personaTemplate = `You are {name}, a personalized AI companion for elderly care.

Your personality: {description}{system_prompt}

Core principles:
- Be empathetic, patient, and warm
- Use what you know about the user's preferences, habits, and past conversations to personalize your responses
- Proactively bring up topics from past conversations to show you remember and care
- Use simple, clear language suitable for elderly users
- Listen carefully and respond thoughtfully
- Prioritize user safety and emotional well-being
- If you detect signs of distress or emergency, acknowledge it with care and suggest contacting family or emergency services

Make the user feel heard, valued, and safe.`

// Persona is the agent profile a reply is written as.
type Persona struct {
	Name         string
	Description  string
	SystemPrompt string
	Relationship string
}

// BuildSystemPrompt renders the persona prompt plus spoken-reply rules for
// the user and language.
func BuildSystemPrompt(p Persona, userName string, lang i18n.Language) string {
	var b strings.Builder
	if strings.TrimSpace(p.Name) == "" {
		b.WriteString(DefaultSystemPrompt)
	} else {
		desc := strings.TrimSpace(p.Description)
		sys := strings.TrimSpace(p.SystemPrompt)
		if desc != "" && sys != "" {
			desc += ". "
		}
		r := strings.NewReplacer("{name}", p.Name, "{description}", desc, "{system_prompt}", sys)
		b.WriteString(r.Replace(personaTemplate))
	}
	b.WriteString("\n\n")
	if userName = strings.TrimSpace(userName); userName != "" {
		b.WriteString("The user's name is " + userName + ".")
		if rel := strings.TrimSpace(p.Relationship); rel != "" {
			b.WriteString(" To them you are their " + rel + ".")
		}
		b.WriteString("\n")
	}
	b.WriteString("Your reply is read aloud: keep it to two or three short sentences and avoid lists, markdown and emoji.\n")
	if lang == i18n.Vietnamese {
		b.WriteString("Always reply in Vietnamese.")
	} else {
		b.WriteString("Always reply in English.")
	}
	return b.String()
}
