package locale

import "strings"

const (
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

func NormalizeLanguage(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "zh") || trimmed == "cn" {
		return LanguageChinese
	}
	if strings.HasPrefix(trimmed, "en") {
		return LanguageEnglish
	}
	return ""
}

// LanguageFromAcceptLanguage 按 Accept-Language 中第一个可识别的语言返回
func LanguageFromAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag, _, _ := strings.Cut(part, ";")
		if language := NormalizeLanguage(tag); language != "" {
			return language
		}
	}
	return ""
}

// Resolve 依次尝试显式参数与 Accept-Language，默认中文
func Resolve(override, acceptLanguage string) string {
	if language := NormalizeLanguage(override); language != "" {
		return language
	}
	if language := LanguageFromAcceptLanguage(acceptLanguage); language != "" {
		return language
	}
	return LanguageChinese
}
