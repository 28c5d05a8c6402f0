package classify

import (
	"regexp"
	"strings"

	"ArticleStock/internal/domain"
)

// urlExpr matches the first http(s) URL token, bounded at whitespace,
// angle brackets, and double quotes.
var urlExpr = regexp.MustCompile(`(?i)https?://[^\s<>"]+`)

// Message splits a chat message into an article reference or a memo. It
// never fails: text without a recognizable URL is a memo verbatim. When
// several URL-like tokens appear, only the first becomes the article URL;
// everything else stays in the leading comment untouched.
func Message(content string) domain.ParsedMessage {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domain.ParsedMessage{Kind: domain.KindMemo, Memo: ""}
	}

	url := urlExpr.FindString(trimmed)
	if url == "" {
		return domain.ParsedMessage{Kind: domain.KindMemo, Memo: trimmed}
	}

	comment := strings.TrimSpace(strings.Replace(trimmed, url, "", 1))

	return domain.ParsedMessage{
		Kind:    domain.KindArticle,
		URL:     url,
		Comment: comment,
	}
}

// HasURL reports whether the message would classify as an article.
func HasURL(content string) bool {
	return urlExpr.MatchString(content)
}
