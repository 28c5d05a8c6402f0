package ports

import (
	"context"
	"time"

	"ArticleStock/internal/domain"
)

// MetadataFetcher resolves page metadata for an article URL. It never fails:
// any network, status, or size problem is reported through the returned
// Metadata (Fetched=false, untitled sentinel title).
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) domain.Metadata
}

// Enricher derives tags and a supplemental summary from page metadata.
// Exactly one attempt per call; failures degrade to the sentinel tag pair.
type Enricher interface {
	Enrich(ctx context.Context, title, description string) domain.Enrichment
}

// VaultSync owns the working copy of the content repository. All mutations
// are serialized internally; callers never touch the working tree directly.
type VaultSync interface {
	WriteNew(ctx context.Context, filename, content, commitLabel string) error
	AppendComment(ctx context.Context, filename, text string, date time.Time) error
}

// BackupStore durably records documents whose push retries were exhausted.
type BackupStore interface {
	SaveBackup(ctx context.Context, backup domain.PendingPushBackup) error
}

// StateStore persists thread-to-article mappings alongside push backups.
type StateStore interface {
	BackupStore
	SaveMapping(ctx context.Context, mapping domain.ThreadMapping) error
	LookupMapping(ctx context.Context, threadID string) (domain.ThreadMapping, error)
}

// Notifier reports pipeline progress back to the chat collaborator.
type Notifier interface {
	AddMarker(ctx context.Context, messageID string, kind domain.MarkerKind) error
	Reply(ctx context.Context, messageID, text string) (replyID string, err error)
}

// EventHandler consumes events delivered by the chat event source.
type EventHandler interface {
	HandleNewMessage(ctx context.Context, messageID string, authorIsSelf bool, text string)
	HandleThreadReply(ctx context.Context, threadID, messageID, text string)
}
