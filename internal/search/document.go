package search

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"inkwell/api/internal/store"
)

var strip = bluemonday.StrictPolicy()

// ComposeDocument builds the indexed form of a public article. Only the
// preview body is used; paid_body is ignored. A sold article without
// paid_body has no trustworthy preview, so its body is left out.
func ComposeDocument(info store.ArticleInfo, content store.ArticleContent) ArticleDocument {
	doc := ArticleDocument{
		ArticleID:   info.ArticleID,
		UserID:      info.UserID,
		Title:       deref(info.Title),
		Overview:    deref(info.Overview),
		EyeCatchURL: deref(info.EyeCatchURL),
		Price:       info.Price,
		SortKey:     info.SortKey,
	}
	if !info.IsPaid() || content.PaidBody != nil {
		doc.Body = plainText(deref(content.Body))
	}
	if doc.Title == "" {
		doc.Title = deref(content.Title)
	}
	if info.PublishedAt != nil {
		doc.PublishedAt = *info.PublishedAt
	}
	return doc
}

func plainText(body string) string {
	text := html.UnescapeString(strip.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
