package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ArticleStock/internal/classify"
	"ArticleStock/internal/domain"
	"ArticleStock/internal/markdown"
	"ArticleStock/internal/ports"
)

const defaultConcurrency = 3

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Fetcher     ports.MetadataFetcher
	Enricher    ports.Enricher
	Vault       ports.VaultSync
	Store       ports.StateStore
	Notifier    ports.Notifier
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Pipeline sequences classify-fetch-enrich-build-synchronize per message,
// bounds the number of in-flight messages, and reports exactly one terminal
// result per message to the notification collaborator.
type Pipeline struct {
	fetcher  ports.MetadataFetcher
	enricher ports.Enricher
	vault    ports.VaultSync
	store    ports.StateStore
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time

	slots chan struct{}
	wg    sync.WaitGroup
}

var _ ports.EventHandler = (*Pipeline)(nil)

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		fetcher:  deps.Fetcher,
		enricher: deps.Enricher,
		vault:    deps.Vault,
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      now,
		slots:    make(chan struct{}, concurrency),
	}
}

// HandleNewMessage acknowledges the message immediately, then runs the
// pipeline on its own goroutine so the event source is never blocked.
// Messages beyond the concurrency bound queue on the semaphore.
func (p *Pipeline) HandleNewMessage(ctx context.Context, messageID string, authorIsSelf bool, text string) {
	if authorIsSelf || strings.TrimSpace(text) == "" {
		return
	}

	// Acknowledge before queueing so the marker lands within the budget
	// even when all pipeline slots are busy.
	if err := p.notifier.AddMarker(ctx, messageID, domain.MarkerReceived); err != nil {
		p.warn("failed to add received marker", "message_id", messageID, "error", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		p.Process(ctx, messageID, text)
	}()
}

// HandleThreadReply correlates a reply to its source article and appends
// the comment, on its own goroutine under the same concurrency bound.
func (p *Pipeline) HandleThreadReply(ctx context.Context, threadID, messageID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		p.ProcessReply(ctx, threadID, messageID, text)
	}()
}

// Wait blocks until all dispatched messages reach a terminal state. Used
// on shutdown and by tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Process runs one message through the full pipeline and returns its
// terminal outcome. Stage failures degrade per component contract; only an
// exhausted repository write fails the run.
func (p *Pipeline) Process(ctx context.Context, messageID, text string) domain.Outcome {
	parsed := classify.Message(text)
	now := p.now()

	var (
		article     domain.Article
		commitLabel string
		degraded    []string
	)

	switch parsed.Kind {
	case domain.KindArticle:
		meta := p.fetcher.Fetch(ctx, parsed.URL)
		if !meta.Fetched {
			degraded = append(degraded, "metadata fetch failed ("+meta.Reason+")")
		}

		enrichment := p.enricher.Enrich(ctx, meta.Title, meta.Description)
		if !enrichment.Succeeded {
			degraded = append(degraded, "AI enrichment unavailable")
		}

		article = domain.Article{
			Title:       meta.Title,
			URL:         parsed.URL,
			Description: meta.Description,
			Summary:     enrichment.Summary,
			Tags:        enrichment.Tags,
			Created:     now,
			Filename:    markdown.Filename(meta.Title, now),
		}
		if parsed.Comment != "" {
			article.Comments = append(article.Comments, domain.Comment{Date: now, Text: parsed.Comment})
		}
		commitLabel = "Add article: " + article.Title

	case domain.KindMemo:
		article = domain.Article{
			Title:       "Memo",
			Description: parsed.Memo,
			Tags:        []string{domain.MemoTag},
			Created:     now,
			Filename:    markdown.MemoFilename(now),
		}
		commitLabel = "Add memo: " + truncate(parsed.Memo, 30)
	}

	content := markdown.Build(article)

	if err := p.vault.WriteNew(ctx, article.Filename, content, commitLabel); err != nil {
		p.error("repository write failed",
			"message_id", messageID, "stage", "synchronize", "filename", article.Filename, "error", err)
		p.marker(ctx, messageID, domain.MarkerError)
		p.reply(ctx, messageID, "Failed to save: "+truncate(err.Error(), 120))
		return domain.OutcomeFailed
	}

	p.marker(ctx, messageID, domain.MarkerSuccess)

	replyID := p.reply(ctx, messageID, resultText(article, degraded))
	p.saveMapping(ctx, messageID, article.Filename, now)
	if replyID != "" {
		p.saveMapping(ctx, replyID, article.Filename, now)
	}

	if len(degraded) > 0 {
		p.warn("message synchronized with degradations",
			"message_id", messageID, "filename", article.Filename, "degradations", strings.Join(degraded, "; "))
		return domain.OutcomeDegraded
	}

	p.debug("message synchronized", "message_id", messageID, "filename", article.Filename)
	return domain.OutcomeSynchronized
}

// ProcessReply appends a thread reply as a comment on its source article.
func (p *Pipeline) ProcessReply(ctx context.Context, threadID, messageID, text string) domain.Outcome {
	mapping, err := p.store.LookupMapping(ctx, threadID)
	if err != nil {
		p.warn("no source article for thread", "thread_id", threadID, "message_id", messageID, "error", err)
		p.marker(ctx, messageID, domain.MarkerError)
		p.reply(ctx, messageID, "Source article not found for this thread.")
		return domain.OutcomeFailed
	}

	if err := p.vault.AppendComment(ctx, mapping.Filename, strings.TrimSpace(text), p.now()); err != nil {
		p.error("comment append failed",
			"message_id", messageID, "stage", "append", "filename", mapping.Filename, "error", err)
		p.marker(ctx, messageID, domain.MarkerError)
		p.reply(ctx, messageID, "Failed to add comment: "+truncate(err.Error(), 120))
		return domain.OutcomeFailed
	}

	p.marker(ctx, messageID, domain.MarkerSuccess)
	p.reply(ctx, messageID, "Comment added to "+mapping.Filename)
	return domain.OutcomeSynchronized
}

// resultText is the single place user-visible wording is decided.
func resultText(article domain.Article, degraded []string) string {
	var b strings.Builder
	if len(degraded) == 0 {
		b.WriteString("Saved: ")
	} else {
		b.WriteString("Saved (degraded): ")
	}
	b.WriteString(article.Title)
	fmt.Fprintf(&b, "\nTags: %s", strings.Join(article.Tags, ", "))
	fmt.Fprintf(&b, "\nFile: %s", article.Filename)
	for _, note := range degraded {
		b.WriteString("\nNote: " + note)
	}
	return b.String()
}

func (p *Pipeline) saveMapping(ctx context.Context, threadID, filename string, now time.Time) {
	if threadID == "" {
		return
	}
	err := p.store.SaveMapping(ctx, domain.ThreadMapping{ThreadID: threadID, Filename: filename, CreatedAt: now})
	if err != nil {
		p.warn("failed to save thread mapping", "thread_id", threadID, "filename", filename, "error", err)
	}
}

func (p *Pipeline) marker(ctx context.Context, messageID string, kind domain.MarkerKind) {
	if err := p.notifier.AddMarker(ctx, messageID, kind); err != nil {
		p.warn("failed to add marker", "message_id", messageID, "kind", kind, "error", err)
	}
}

func (p *Pipeline) reply(ctx context.Context, messageID, text string) string {
	replyID, err := p.notifier.Reply(ctx, messageID, text)
	if err != nil {
		p.warn("failed to reply", "message_id", messageID, "error", err)
		return ""
	}
	return replyID
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) error(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
