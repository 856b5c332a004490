package locale

import "testing"

func TestNormalizeLanguage(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "zh", want: LanguageChinese},
		{input: "zh-CN", want: LanguageChinese},
		{input: "ZH_hans", want: LanguageChinese},
		{input: "en", want: LanguageEnglish},
		{input: "en-US", want: LanguageEnglish},
		{input: "fr", want: ""},
		{input: "", want: ""},
	}

	for _, tc := range cases {
		if got := NormalizeLanguage(tc.input); got != tc.want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestLanguageFromAcceptLanguage(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "zh-CN,zh;q=0.9", want: LanguageChinese},
		{input: "en-US,en;q=0.9", want: LanguageEnglish},
		{input: "fr-FR, en;q=0.8, zh;q=0.5", want: LanguageEnglish},
		{input: "fr-FR,fr;q=0.9", want: ""},
		{input: "", want: ""},
	}

	for _, tc := range cases {
		if got := LanguageFromAcceptLanguage(tc.input); got != tc.want {
			t.Fatalf("LanguageFromAcceptLanguage(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("en", "zh-CN"); got != LanguageEnglish {
		t.Fatalf("override should win, got %q", got)
	}
	if got := Resolve("", "en-GB"); got != LanguageEnglish {
		t.Fatalf("expected header language, got %q", got)
	}
	if got := Resolve("de", "fr"); got != LanguageChinese {
		t.Fatalf("expected Chinese fallback, got %q", got)
	}
}

func TestPick(t *testing.T) {
	if got := Pick("en", "english", "chinese"); got != "english" {
		t.Fatalf("Pick(en) = %q, want %q", got, "english")
	}
	if got := Pick("zh", "english", "chinese"); got != "chinese" {
		t.Fatalf("Pick(zh) = %q, want %q", got, "chinese")
	}
	if got := Pick("fr", "english", "chinese"); got != "chinese" {
		t.Fatalf("Pick(fr) = %q, want %q", got, "chinese")
	}
	if got := (Text{Chinese: "记录不存在", English: "record not found"}).In("en-US"); got != "record not found" {
		t.Fatalf("Text.In(en) = %q", got)
	}
}
