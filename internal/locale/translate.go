package locale

// Text 是一条中英双语文案
type Text struct {
	Chinese string
	English string
}

// Pick returns the text matching the request language, defaulting to Chinese.
func Pick(language, english, chinese string) string {
	if NormalizeLanguage(language) == LanguageEnglish {
		if english != "" {
			return english
		}
		return chinese
	}
	if chinese != "" {
		return chinese
	}
	return english
}

// In 返回指定语言下的文案
func (t Text) In(language string) string {
	return Pick(language, t.English, t.Chinese)
}
