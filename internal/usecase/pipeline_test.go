package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ArticleStock/internal/domain"
)

var fixedNow = time.Date(2025, time.November, 8, 10, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu   sync.Mutex
	meta domain.Metadata
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) domain.Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.meta
}

type fakeEnricher struct {
	mu         sync.Mutex
	enrichment domain.Enrichment
	gotTitle   string
	gotDesc    string
}

func (f *fakeEnricher) Enrich(_ context.Context, title, description string) domain.Enrichment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotTitle = title
	f.gotDesc = description
	return f.enrichment
}

type vaultWrite struct {
	filename string
	content  string
	label    string
}

type vaultAppend struct {
	filename string
	text     string
	date     time.Time
}

type fakeVault struct {
	mu        sync.Mutex
	writes    []vaultWrite
	appends   []vaultAppend
	writeErr  error
	appendErr error

	block       chan struct{}
	inFlight    int
	maxInFlight int
}

func (v *fakeVault) WriteNew(_ context.Context, filename, content, label string) error {
	v.mu.Lock()
	v.inFlight++
	if v.inFlight > v.maxInFlight {
		v.maxInFlight = v.inFlight
	}
	block := v.block
	v.mu.Unlock()

	if block != nil {
		<-block
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inFlight--
	if v.writeErr != nil {
		return v.writeErr
	}
	v.writes = append(v.writes, vaultWrite{filename: filename, content: content, label: label})
	return nil
}

func (v *fakeVault) AppendComment(_ context.Context, filename, text string, date time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.appendErr != nil {
		return v.appendErr
	}
	v.appends = append(v.appends, vaultAppend{filename: filename, text: text, date: date})
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	mappings map[string]domain.ThreadMapping
	backups  []domain.PendingPushBackup
}

func newFakeStore() *fakeStore {
	return &fakeStore{mappings: map[string]domain.ThreadMapping{}}
}

func (s *fakeStore) SaveMapping(_ context.Context, m domain.ThreadMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[m.ThreadID]; !ok {
		s.mappings[m.ThreadID] = m
	}
	return nil
}

func (s *fakeStore) LookupMapping(_ context.Context, threadID string) (domain.ThreadMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[threadID]
	if !ok {
		return domain.ThreadMapping{}, errors.New("thread mapping not found")
	}
	return m, nil
}

func (s *fakeStore) SaveBackup(_ context.Context, b domain.PendingPushBackup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups = append(s.backups, b)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	markers []string
	replies []string
	replyID string
}

func (n *fakeNotifier) AddMarker(_ context.Context, messageID string, kind domain.MarkerKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.markers = append(n.markers, fmt.Sprintf("%s|%v", messageID, kind))
	return nil
}

func (n *fakeNotifier) Reply(_ context.Context, messageID, text string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, fmt.Sprintf("%s|%s", messageID, text))
	return n.replyID, nil
}

type fixture struct {
	fetcher  *fakeFetcher
	enricher *fakeEnricher
	vault    *fakeVault
	store    *fakeStore
	notifier *fakeNotifier
	pipeline *Pipeline
}

func newFixture(concurrency int) *fixture {
	f := &fixture{
		fetcher: &fakeFetcher{meta: domain.Metadata{
			Title:       "A",
			Description: "An article about things.",
			Fetched:     true,
		}},
		enricher: &fakeEnricher{enrichment: domain.Enrichment{
			Tags:      []string{"Go", "Testing", "Pipelines", "Design"},
			Summary:   "A short summary.",
			Succeeded: true,
		}},
		vault:    &fakeVault{},
		store:    newFakeStore(),
		notifier: &fakeNotifier{replyID: "900"},
	}
	f.pipeline = NewPipeline(PipelineDeps{
		Fetcher:     f.fetcher,
		Enricher:    f.enricher,
		Vault:       f.vault,
		Store:       f.store,
		Notifier:    f.notifier,
		Concurrency: concurrency,
		Now:         func() time.Time { return fixedNow },
	})
	return f
}

func TestProcessArticleSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	outcome := f.pipeline.Process(context.Background(), "7", "https://example.com/a")

	if outcome != domain.OutcomeSynchronized {
		t.Fatalf("expected synchronized, got %v", outcome)
	}
	if len(f.vault.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(f.vault.writes))
	}

	write := f.vault.writes[0]
	if write.filename != "2025-11-08_A.md" {
		t.Fatalf("unexpected filename: %q", write.filename)
	}
	if write.label != "Add article: A" {
		t.Fatalf("unexpected commit label: %q", write.label)
	}
	if !strings.Contains(write.content, "# A") || !strings.Contains(write.content, "url: https://example.com/a") {
		t.Fatalf("unexpected document:\n%s", write.content)
	}

	if len(f.notifier.replies) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(f.notifier.replies))
	}
	reply := f.notifier.replies[0]
	for _, want := range []string{"Saved: A", "Go, Testing, Pipelines, Design", "2025-11-08_A.md"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply missing %q:\n%s", want, reply)
		}
	}

	// Both the original message and the bot reply resolve to the article.
	for _, threadID := range []string{"7", "900"} {
		m, err := f.store.LookupMapping(context.Background(), threadID)
		if err != nil {
			t.Fatalf("mapping for %s missing: %v", threadID, err)
		}
		if m.Filename != "2025-11-08_A.md" {
			t.Fatalf("mapping for %s points at %q", threadID, m.Filename)
		}
	}
}

func TestProcessURLWithCommentKeepsComment(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.pipeline.Process(context.Background(), "7", "https://example.com/a neat article, will read later")

	if got := f.fetcher.urls; len(got) != 1 || got[0] != "https://example.com/a" {
		t.Fatalf("unexpected fetched urls: %v", got)
	}
	content := f.vault.writes[0].content
	if !strings.Contains(content, "## Comments") || !strings.Contains(content, "neat article, will read later") {
		t.Fatalf("comment lost:\n%s", content)
	}
}

func TestProcessMemo(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	outcome := f.pipeline.Process(context.Background(), "7", "remember to compare both allocators")

	if outcome != domain.OutcomeSynchronized {
		t.Fatalf("expected synchronized, got %v", outcome)
	}
	if len(f.fetcher.urls) != 0 {
		t.Fatal("memo must not hit the fetcher")
	}

	write := f.vault.writes[0]
	if write.filename != "2025-11-08_100000_memo.md" {
		t.Fatalf("unexpected memo filename: %q", write.filename)
	}
	if !strings.HasPrefix(write.label, "Add memo: ") {
		t.Fatalf("unexpected commit label: %q", write.label)
	}
	if strings.Contains(write.content, "url:") {
		t.Fatalf("memo document must not carry a url line:\n%s", write.content)
	}
	if !strings.Contains(write.content, domain.MemoTag) {
		t.Fatalf("memo tag missing:\n%s", write.content)
	}
	if !strings.Contains(write.content, "remember to compare both allocators") {
		t.Fatalf("memo text missing:\n%s", write.content)
	}
}

func TestProcessDegradedOnFetchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.fetcher.meta = domain.Metadata{Title: domain.UntitledTitle, Fetched: false, Reason: "request timed out"}

	outcome := f.pipeline.Process(context.Background(), "7", "https://slow.example.com/a")

	if outcome != domain.OutcomeDegraded {
		t.Fatalf("expected degraded, got %v", outcome)
	}
	if f.enricher.gotTitle != domain.UntitledTitle {
		t.Fatalf("enricher should still run on fallback title, got %q", f.enricher.gotTitle)
	}
	if len(f.vault.writes) != 1 {
		t.Fatal("degraded run must still persist the document")
	}
	reply := f.notifier.replies[0]
	if !strings.Contains(reply, "degraded") || !strings.Contains(reply, "request timed out") {
		t.Fatalf("reply must name the degradation:\n%s", reply)
	}
}

func TestProcessFailedOnWriteError(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	f.vault.writeErr = errors.New("push retries exhausted")

	outcome := f.pipeline.Process(context.Background(), "7", "https://example.com/a")

	if outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed, got %v", outcome)
	}
	if len(f.store.mappings) != 0 {
		t.Fatalf("failed run must not record mappings: %v", f.store.mappings)
	}
	if len(f.notifier.replies) != 1 || !strings.Contains(f.notifier.replies[0], "Failed to save") {
		t.Fatalf("unexpected replies: %v", f.notifier.replies)
	}
	found := false
	for _, m := range f.notifier.markers {
		if m == fmt.Sprintf("7|%v", domain.MarkerError) {
			found = true
		}
	}
	if !found {
		t.Fatalf("error marker missing: %v", f.notifier.markers)
	}
}

func TestReplyToUnknownThread(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	outcome := f.pipeline.ProcessReply(context.Background(), "404", "8", "good point")

	if outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed, got %v", outcome)
	}
	if len(f.vault.appends) != 0 {
		t.Fatal("unknown thread must not touch the repository")
	}
	if len(f.notifier.replies) != 1 || !strings.Contains(f.notifier.replies[0], "not found") {
		t.Fatalf("unexpected replies: %v", f.notifier.replies)
	}
}

func TestReplyAppendsComment(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	_ = f.store.SaveMapping(context.Background(), domain.ThreadMapping{
		ThreadID: "99", Filename: "2025-11-08_A.md", CreatedAt: fixedNow,
	})

	outcome := f.pipeline.ProcessReply(context.Background(), "99", "8", "  good point  ")

	if outcome != domain.OutcomeSynchronized {
		t.Fatalf("expected synchronized, got %v", outcome)
	}
	if len(f.vault.appends) != 1 {
		t.Fatalf("expected 1 append, got %d", len(f.vault.appends))
	}
	got := f.vault.appends[0]
	if got.filename != "2025-11-08_A.md" || got.text != "good point" {
		t.Fatalf("unexpected append: %+v", got)
	}
	if !strings.Contains(f.notifier.replies[0], "2025-11-08_A.md") {
		t.Fatalf("confirmation must name the file: %v", f.notifier.replies)
	}
}

func TestHandleNewMessageSkipsOwnAndEmptyMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(0)
	ctx := context.Background()

	f.pipeline.HandleNewMessage(ctx, "7", true, "https://example.com/a")
	f.pipeline.HandleNewMessage(ctx, "8", false, "   ")
	f.pipeline.Wait()

	if len(f.notifier.markers) != 0 || len(f.vault.writes) != 0 {
		t.Fatalf("nothing should happen: markers=%v writes=%v", f.notifier.markers, f.vault.writes)
	}
}

func TestHandleNewMessageAcksBeforeProcessing(t *testing.T) {
	t.Parallel()

	f := newFixture(1)
	f.vault.block = make(chan struct{})

	f.pipeline.HandleNewMessage(context.Background(), "7", false, "https://example.com/a")

	f.notifier.mu.Lock()
	acked := len(f.notifier.markers) == 1 && f.notifier.markers[0] == fmt.Sprintf("7|%v", domain.MarkerReceived)
	f.notifier.mu.Unlock()
	if !acked {
		t.Fatalf("received marker must land before the pipeline finishes: %v", f.notifier.markers)
	}

	close(f.vault.block)
	f.pipeline.Wait()
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	f := newFixture(2)
	f.vault.block = make(chan struct{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.pipeline.HandleNewMessage(ctx, fmt.Sprintf("%d", i), false, fmt.Sprintf("https://example.com/%d", i))
	}

	// Wait until both slots are occupied, then make sure no third write starts.
	deadline := time.After(2 * time.Second)
	for {
		f.vault.mu.Lock()
		n := f.vault.inFlight
		f.vault.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 writes in flight, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)

	f.vault.mu.Lock()
	max := f.vault.maxInFlight
	f.vault.mu.Unlock()
	if max != 2 {
		t.Fatalf("concurrency bound violated: %d writes in flight", max)
	}

	close(f.vault.block)
	f.pipeline.Wait()

	f.vault.mu.Lock()
	defer f.vault.mu.Unlock()
	if len(f.vault.writes) != 4 {
		t.Fatalf("expected all 4 messages processed, got %d", len(f.vault.writes))
	}
	if f.vault.maxInFlight != 2 {
		t.Fatalf("concurrency bound violated after release: %d", f.vault.maxInFlight)
	}
}
