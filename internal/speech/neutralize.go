package speech

import (
	"sort"
	"strings"
	"unicode"

	"github.com/chadiek/aura-companion/internal/i18n"
)

// emojiKeys holds the table keys longest first so that sequences carrying a
// variation selector win over their bare base character.
var emojiKeys = func() []string {
	keys := make([]string, 0, len(emojiNames))
	for k := range emojiNames {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Neutralize rewrites text so a speech engine never reads pictographs: known
// emoji become their spoken name in lang, the rest is dropped, and
// whitespace is collapsed.
func Neutralize(text string, lang i18n.Language) string {
	out := text
	for _, k := range emojiKeys {
		if !strings.Contains(out, k) {
			continue
		}
		name := emojiNames[k].en
		if lang == i18n.Vietnamese {
			name = emojiNames[k].vi
		}
		out = strings.ReplaceAll(out, k, " "+name+" ")
	}
	out = strings.Map(func(r rune) rune {
		if isPictograph(r) {
			return -1
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

func isPictograph(r rune) bool {
	for _, rg := range pictographRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

// splitSentences breaks a reply into sentence-like chunks so playback can be
// interrupted between synthesis requests. Punctuation is kept.
func splitSentences(text string) []string {
	txt := strings.TrimSpace(text)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	flush := func() {
		c := strings.TrimSpace(b.String())
		switch {
		case strings.IndexFunc(c, isWordRune) >= 0:
			chunks = append(chunks, c)
		case c != "" && len(chunks) > 0:
			// trailing punctuation such as the rest of an ellipsis
			chunks[len(chunks)-1] += c
		}
		b.Reset()
	}
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			flush()
		case '\n', '\r':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return chunks
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
