// Package markdown renders articles into front-mattered documents and
// derives their canonical filenames. Everything here is deterministic:
// identical inputs produce byte-identical output, which keeps repository
// retries idempotent.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ArticleStock/internal/domain"
)

const (
	// Extension is the fixed document extension.
	Extension = ".md"

	// MaxFilenameLength caps the generated filename, measured after
	// sanitization so truncation cannot expose a half-removed character.
	MaxFilenameLength = 100

	dateLayout      = "2006-01-02"
	summaryHeading  = "## Summary"
	commentsHeading = "## Comments"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[/\\:*?"<>|]`)
	whitespaceRuns       = regexp.MustCompile(`\s+`)
)

// FrontMatter is the structured header block of a document.
type FrontMatter struct {
	Tags    []string `yaml:"tags"`
	URL     string   `yaml:"url,omitempty"`
	Created string   `yaml:"created"`
}

// Build renders the full document for an article: front matter, title line,
// summary section, and the comments section when any comments exist.
func Build(a domain.Article) string {
	var b strings.Builder

	b.WriteString("---\n")
	b.WriteString("tags:\n")
	for _, tag := range a.Tags {
		fmt.Fprintf(&b, "  - %s\n", tag)
	}
	if a.URL != "" {
		fmt.Fprintf(&b, "url: %s\n", a.URL)
	}
	fmt.Fprintf(&b, "created: %s\n", a.Created.Format(dateLayout))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n", a.Title)

	if a.Description != "" || a.Summary != "" {
		b.WriteString("\n" + summaryHeading + "\n\n")
		if a.Description != "" {
			b.WriteString(a.Description + "\n")
		}
		if a.Summary != "" {
			if a.Description != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "**Note:** %s\n", a.Summary)
		}
	}

	if len(a.Comments) > 0 {
		b.WriteString("\n" + commentsHeading + "\n\n")
		for _, c := range a.Comments {
			b.WriteString(CommentLine(c.Text, c.Date))
		}
	}

	return b.String()
}

// CommentLine renders one comment entry, a single line per comment in
// append order.
func CommentLine(text string, date time.Time) string {
	return fmt.Sprintf("**%s:** %s\n", date.Format(dateLayout), text)
}

// AppendComment returns the document with one comment added under the
// comments section, creating the section when the document predates any
// comments.
func AppendComment(doc, text string, date time.Time) string {
	line := CommentLine(text, date)
	trimmed := strings.TrimRight(doc, "\n")
	if strings.Contains(doc, commentsHeading) {
		return trimmed + "\n" + line
	}
	return trimmed + "\n\n" + commentsHeading + "\n\n" + line
}

// ParseFrontMatter extracts and decodes the header block of a document.
func ParseFrontMatter(doc string) (FrontMatter, error) {
	var fm FrontMatter

	if !strings.HasPrefix(doc, "---\n") {
		return fm, fmt.Errorf("document has no front matter")
	}
	rest := doc[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, fmt.Errorf("front matter is not terminated")
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return fm, fmt.Errorf("decode front matter: %w", err)
	}
	return fm, nil
}

// ParseTitle returns the first level-one heading of the document body.
func ParseTitle(doc string) string {
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// SanitizeTitle strips the characters / \ : * ? " < > | from a title,
// collapses whitespace runs to single spaces, and caps the result at
// MaxFilenameLength runes. Idempotent.
func SanitizeTitle(title string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(title, "")
	sanitized = whitespaceRuns.ReplaceAllString(sanitized, " ")
	sanitized = strings.TrimSpace(sanitized)

	if runes := []rune(sanitized); len(runes) > MaxFilenameLength {
		sanitized = strings.TrimSpace(string(runes[:MaxFilenameLength]))
	}

	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}

// Filename derives the canonical article filename:
// YYYY-MM-DD_<sanitizedTitle>.md, whole name capped at MaxFilenameLength.
func Filename(title string, created time.Time) string {
	prefix := created.Format(dateLayout)
	sanitized := SanitizeTitle(title)

	name := prefix + "_" + sanitized + Extension
	if runes := []rune(name); len(runes) > MaxFilenameLength {
		budget := MaxFilenameLength - len([]rune(prefix)) - 1 - len(Extension)
		sanitized = strings.TrimSpace(string([]rune(sanitized)[:budget]))
		name = prefix + "_" + sanitized + Extension
	}
	return name
}

// MemoFilename derives a timestamped memo filename. The time component
// keeps same-day memos from colliding; the caller supplies the timestamp so
// generation stays deterministic.
func MemoFilename(created time.Time) string {
	return created.Format("2006-01-02_150405") + "_memo" + Extension
}
