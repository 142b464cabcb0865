// Package langdetect tags text with a language when detection is reliable.
package langdetect

import (
	"github.com/abadojack/whatlanggo"
)

// minRunes is the shortest input worth detecting; shorter text is too noisy.
const minRunes = 12

type Language struct {
	Code string // ISO 639-1, e.g. "en"
	Name string // English name, e.g. "English"
}

// Detect returns the language of text, or false when it cannot tell.
func Detect(text string) (Language, bool) {
	if len([]rune(text)) < minRunes {
		return Language{}, false
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return Language{}, false
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return Language{}, false
	}
	return Language{Code: code, Name: info.Lang.String()}, true
}

// Code returns the ISO 639-1 code of text, or "" when unknown.
func Code(text string) string {
	lang, ok := Detect(text)
	if !ok {
		return ""
	}
	return lang.Code
}
