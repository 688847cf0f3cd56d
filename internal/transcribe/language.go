package transcribe

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var supportedLanguages = []language.Tag{
	language.English, language.Spanish, language.French, language.German,
	language.Italian, language.Portuguese, language.Japanese, language.Korean,
	language.Chinese, language.Russian, language.Arabic, language.Hindi,
	language.Dutch, language.Polish, language.Swedish, language.Danish,
	language.Norwegian, language.Finnish, language.Turkish, language.Ukrainian,
}

// byName maps lower-case English language names to ISO 639-1 codes.
var byName = func() map[string]string {
	names := display.English.Languages()
	m := make(map[string]string, len(supportedLanguages))
	for _, tag := range supportedLanguages {
		base, _ := tag.Base()
		m[strings.ToLower(names.Name(tag))] = base.String()
	}
	return m
}()

// LanguageCode converts an English language name ("english"), an ISO 639
// code ("en", "eng"), or a BCP 47 tag ("en-US") to an ISO 639-1 code.
// Unrecognized input yields "".
func LanguageCode(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if code, ok := byName[value]; ok {
		return code
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}
