package service

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	maxTitleLength = 120
	maxNotesLength = 2000
)

var (
	plainTextPolicy = bluemonday.StrictPolicy()
	richTextPolicy  = bluemonday.UGCPolicy()
	markdown        = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

// cleanText 去掉 HTML 标签并截断长度，用于标题、备注等纯文本字段。
func cleanText(raw string, limit int) string {
	cleaned := html.UnescapeString(plainTextPolicy.Sanitize(strings.TrimSpace(raw)))
	cleaned = strings.TrimSpace(cleaned)
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = string(runes[:limit])
		}
	}
	return cleaned
}

// renderDescription 将待办描述按 Markdown 渲染并做 UGC 级别的过滤。
func renderDescription(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source)
	}
	return richTextPolicy.Sanitize(buf.String())
}
