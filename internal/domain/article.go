package domain

import "time"

// Sentinel values used when an external dependency degrades.
const (
	// UntitledTitle replaces the title when page metadata cannot be fetched
	// or the page carries no usable title.
	UntitledTitle = "Untitled Article"

	// MemoTag is the single tag attached to memo entries, which skip AI
	// enrichment entirely.
	MemoTag = "Memo"
)

// FallbackTags returns the sentinel pair used when enrichment fails or
// reports an out-of-range tag count. An obviously synthetic pair is
// preferred over silently truncating or padding model output.
func FallbackTags() []string {
	return []string{"Uncategorized", "NeedsReview"}
}

// MessageKind classifies an incoming chat message.
type MessageKind string

const (
	KindArticle MessageKind = "article"
	KindMemo    MessageKind = "memo"
)

// ParsedMessage is the classifier output for one chat message.
type ParsedMessage struct {
	Kind    MessageKind
	URL     string // first http(s) URL, article kind only
	Comment string // text around the URL, article kind only
	Memo    string // full text, memo kind only
}

// Metadata is the fetch result for a page. Fetched reports whether the
// network round-trip and parse succeeded; on failure Title carries the
// untitled sentinel and Reason the cause.
type Metadata struct {
	Title       string
	Description string
	Image       string
	Fetched     bool
	Reason      string
}

// Enrichment carries AI-derived tags and an optional supplemental summary.
// When Succeeded is false, Tags holds the fallback sentinel pair.
type Enrichment struct {
	Tags      []string
	Summary   string
	Succeeded bool
}

// Comment is one appended note on an article, ordered by append time.
type Comment struct {
	Date time.Time
	Text string
}

// Article is the aggregate one pipeline run produces. It is owned by the
// orchestrator for the duration of the run and never shared across runs.
type Article struct {
	Title       string
	URL         string // empty for memo entries
	Description string
	Summary     string // supplemental AI note, may be empty
	Tags        []string
	Created     time.Time
	Comments    []Comment
	Filename    string // derived once at creation, correlation key
}

// ThreadMapping associates a notification-thread identifier with the
// article file it was created for. Read-only after creation.
type ThreadMapping struct {
	ThreadID  string
	Filename  string
	CreatedAt time.Time
}

// PendingPushBackup records a document that failed to synchronize after
// exhausting push retries. Consumed only by manual recovery.
type PendingPushBackup struct {
	ID        string
	Filename  string
	Content   string
	Reason    string
	CreatedAt time.Time
}

// MarkerKind enumerates the reaction markers reported back to the chat.
type MarkerKind string

const (
	MarkerReceived MarkerKind = "received"
	MarkerSuccess  MarkerKind = "success"
	MarkerError    MarkerKind = "error"
)

// Outcome is the terminal state of one pipeline run.
type Outcome string

const (
	OutcomeSynchronized Outcome = "synchronized"
	OutcomeDegraded     Outcome = "degraded"
	OutcomeFailed       Outcome = "failed"
)
