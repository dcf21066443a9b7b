package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestT_LooksUpAndFallsBack(t *testing.T) {
	assert.Equal(t, "Vui lòng cho phép truy cập microphone để sử dụng tính năng này.", T(Vietnamese, KeyMicDenied))
	assert.Equal(t, T(English, KeySOSResponse), T(Language("fr"), KeySOSResponse))
	assert.Equal(t, "noSuchKey", T(English, Key("noSuchKey")))
}

func TestEveryKeyTranslated(t *testing.T) {
	for key := range translations[English] {
		_, ok := translations[Vietnamese][key]
		assert.True(t, ok, "missing vi translation for %s", key)
	}
}

func TestFormat(t *testing.T) {
	got := Format(English, KeySOSNotifyBody, map[string]string{"userName": "Bà Lan"})
	assert.Equal(t, "Aura: Bà Lan pressed the SOS button and needs assistance.", got)
}

func TestLanguage(t *testing.T) {
	assert.True(t, English.Valid())
	assert.False(t, Language("de").Valid())
	assert.Equal(t, "vi-VN", Vietnamese.Tag())
	assert.Equal(t, "en-US", English.Tag())
}
