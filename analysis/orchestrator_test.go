package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"example/docanalysis-api/extract"
	"example/docanalysis-api/ledger"
	"example/docanalysis-api/upload"
)

type fakeText struct {
	text string
	err  error
}

func (f fakeText) ExtractText(ctx context.Context, data []byte) (string, error) {
	return f.text, f.err
}

type extractFunc func(ctx context.Context, text string) (extract.Record, error)

func (f extractFunc) Extract(ctx context.Context, text string) (extract.Record, error) {
	return f(ctx, text)
}

func okExtractor() extractFunc {
	return func(ctx context.Context, text string) (extract.Record, error) {
		return extract.Record{DocumentType: "invoice", Summary: "Invoice for " + text}, nil
	}
}

type recordingReleaser struct {
	mu   sync.Mutex
	refs []string
}

func (r *recordingReleaser) Release(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
	return nil
}

func (r *recordingReleaser) released(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.refs {
		if got == ref {
			return true
		}
	}
	return false
}

type harness struct {
	store    *ledger.Store
	releaser *recordingReleaser
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return &harness{store: store, releaser: &recordingReleaser{}}
}

func (h *harness) account(t *testing.T, id string, credits int) {
	t.Helper()
	if _, err := h.store.EnsureAccount(context.Background(), id, id+"@example.test", credits); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
}

func (h *harness) orchestrator(text TextExtractor, ex extract.Extractor, timeout time.Duration) *Orchestrator {
	return New(Config{
		Ledger:         h.store,
		Text:           text,
		Extractor:      ex,
		Releaser:       h.releaser,
		ExtractTimeout: timeout,
	})
}

func (h *harness) assertUnchanged(t *testing.T, id string, balance int) {
	t.Helper()
	ctx := context.Background()
	got, err := h.store.GetBalance(ctx, id)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != balance {
		t.Fatalf("balance = %d, want %d", got, balance)
	}
	docs, _ := h.store.ListDocuments(ctx, id)
	txs, _ := h.store.ListTransactions(ctx, id)
	if len(docs) != 0 || len(txs) != 0 {
		t.Fatalf("expected no documents or entries, got %d documents and %d entries", len(docs), len(txs))
	}
}

func testFile(ref string) upload.File {
	return upload.File{Ref: ref, OriginalName: "invoice.pdf", Size: 9, Data: []byte("%PDF-1.4\n")}
}

func TestAnalyzeSuccessChargesOneCredit(t *testing.T) {
	h := newHarness(t)
	h.account(t, "alice", 5)
	o := h.orchestrator(fakeText{text: "ACME"}, okExtractor(), time.Second)

	out, err := o.Analyze(context.Background(), "alice", testFile("a.pdf"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.State != StatePersisted || out.CreditsRemaining != 4 || out.DocumentID == "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Record.Summary != "Invoice for ACME" {
		t.Fatalf("unexpected record: %+v", out.Record)
	}

	ctx := context.Background()
	docs, err := h.store.ListDocuments(ctx, "alice")
	if err != nil || len(docs) != 1 {
		t.Fatalf("ListDocuments = %d, %v", len(docs), err)
	}
	if docs[0].ID != out.DocumentID || docs[0].OriginalName != "invoice.pdf" || docs[0].CreditsCharged != 1 {
		t.Fatalf("unexpected document: %+v", docs[0])
	}
	var stored extract.Record
	if err := json.Unmarshal(docs[0].Result, &stored); err != nil || stored.DocumentType != "invoice" {
		t.Fatalf("stored result = %s (%v)", docs[0].Result, err)
	}

	txs, _ := h.store.ListTransactions(ctx, "alice")
	if len(txs) != 1 || txs[0].Kind != ledger.KindDebit || txs[0].Amount != -1 {
		t.Fatalf("unexpected entries: %+v", txs)
	}
	if !h.releaser.released("a.pdf") {
		t.Fatalf("artifact not released on success")
	}
}

func TestAnalyzeRejectsWithoutCredits(t *testing.T) {
	h := newHarness(t)
	h.account(t, "bob", 0)

	called := false
	o := h.orchestrator(fakeText{text: "x"}, extractFunc(func(ctx context.Context, text string) (extract.Record, error) {
		called = true
		return extract.Record{}, nil
	}), time.Second)

	out, err := o.Analyze(context.Background(), "bob", testFile("b.pdf"))
	if !errors.Is(err, ledger.ErrInsufficientCredits) || out.State != StateRejected {
		t.Fatalf("Analyze = (%+v, %v), want rejection", out, err)
	}
	if called {
		t.Fatalf("extractor must not run without credits")
	}
	h.assertUnchanged(t, "bob", 0)
	if !h.releaser.released("b.pdf") {
		t.Fatalf("artifact not released on rejection")
	}
}

func TestAnalyzeExtractionFailureIsFree(t *testing.T) {
	cases := []struct {
		name string
		text TextExtractor
		ex   extract.Extractor
	}{
		{
			name: "unreadable pdf",
			text: fakeText{err: extract.ErrNoText},
			ex:   okExtractor(),
		},
		{
			name: "upstream error",
			text: fakeText{text: "x"},
			ex: extractFunc(func(ctx context.Context, text string) (extract.Record, error) {
				return extract.Record{}, extract.ErrUpstream
			}),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.account(t, "carol", 3)
			o := h.orchestrator(tc.text, tc.ex, time.Second)

			out, err := o.Analyze(context.Background(), "carol", testFile("c.pdf"))
			if !errors.Is(err, ErrExtraction) || out.State != StateFailed {
				t.Fatalf("Analyze = (%+v, %v), want extraction failure", out, err)
			}
			h.assertUnchanged(t, "carol", 3)
			if !h.releaser.released("c.pdf") {
				t.Fatalf("artifact not released on failure")
			}
		})
	}
}

func TestAnalyzeExtractionTimeout(t *testing.T) {
	h := newHarness(t)
	h.account(t, "dave", 2)
	slow := extractFunc(func(ctx context.Context, text string) (extract.Record, error) {
		<-ctx.Done()
		return extract.Record{}, ctx.Err()
	})
	o := h.orchestrator(fakeText{text: "x"}, slow, 20*time.Millisecond)

	_, err := o.Analyze(context.Background(), "dave", testFile("d.pdf"))
	if !errors.Is(err, ErrExtraction) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected extraction timeout, got %v", err)
	}
	h.assertUnchanged(t, "dave", 2)
}

func TestAnalyzeFallbackRecordIsCharged(t *testing.T) {
	h := newHarness(t)
	h.account(t, "erin", 1)
	fallback := extractFunc(func(ctx context.Context, text string) (extract.Record, error) {
		return extract.FallbackRecord(), nil
	})
	o := h.orchestrator(fakeText{text: "x"}, fallback, time.Second)

	out, err := o.Analyze(context.Background(), "erin", testFile("e.pdf"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !out.Record.Fallback || out.CreditsRemaining != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	docs, _ := h.store.ListDocuments(context.Background(), "erin")
	if len(docs) != 1 || !docs[0].Fallback {
		t.Fatalf("fallback document not recorded: %+v", docs)
	}
}

func TestAnalyzeLosesRaceAfterBalanceCheck(t *testing.T) {
	h := newHarness(t)
	h.account(t, "frank", 1)

	// another request spends the last credit while this one is extracting
	racing := extractFunc(func(ctx context.Context, text string) (extract.Record, error) {
		_, err := h.store.TryDebit(ctx, "frank", 1, ledger.DocumentPayload{
			FileRef: "other.pdf", Result: json.RawMessage(`{"summary":"other"}`),
		})
		if err != nil {
			t.Errorf("competing debit: %v", err)
		}
		return extract.Record{DocumentType: "x", Summary: "y"}, nil
	})
	o := h.orchestrator(fakeText{text: "x"}, racing, time.Second)

	out, err := o.Analyze(context.Background(), "frank", testFile("f.pdf"))
	if !errors.Is(err, ledger.ErrInsufficientCredits) || out.State != StateRejected {
		t.Fatalf("Analyze = (%+v, %v), want rejection", out, err)
	}
	bal, _ := h.store.GetBalance(context.Background(), "frank")
	docs, _ := h.store.ListDocuments(context.Background(), "frank")
	if bal != 0 || len(docs) != 1 {
		t.Fatalf("balance = %d, documents = %d; want 0 and 1", bal, len(docs))
	}
	if !h.releaser.released("f.pdf") {
		t.Fatalf("artifact not released after lost race")
	}
}

func TestAnalyzeConcurrentLastCredit(t *testing.T) {
	h := newHarness(t)
	h.account(t, "gina", 1)
	o := h.orchestrator(fakeText{text: "x"}, okExtractor(), time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = o.Analyze(context.Background(), "gina", testFile("g.pdf"))
		}(i)
	}
	wg.Wait()

	ok, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientCredits):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || refused != 1 {
		t.Fatalf("ok = %d, refused = %d; want 1 and 1", ok, refused)
	}
	bal, _ := h.store.GetBalance(context.Background(), "gina")
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
}

type brokenLedger struct{ balance int }

func (b brokenLedger) GetBalance(ctx context.Context, accountID string) (int, error) {
	return b.balance, nil
}

func (b brokenLedger) TryDebit(ctx context.Context, accountID string, amount int, doc ledger.DocumentPayload) (ledger.DebitResult, error) {
	return ledger.DebitResult{}, ledger.ErrTransactionFailed
}

func TestAnalyzeStorageFailureReleasesArtifact(t *testing.T) {
	rel := &recordingReleaser{}
	o := New(Config{
		Ledger:    brokenLedger{balance: 3},
		Text:      fakeText{text: "x"},
		Extractor: okExtractor(),
		Releaser:  rel,
	})

	out, err := o.Analyze(context.Background(), "hank", testFile("h.pdf"))
	if !errors.Is(err, ErrStorage) || !errors.Is(err, ledger.ErrTransactionFailed) || out.State != StateFailed {
		t.Fatalf("Analyze = (%+v, %v), want storage failure", out, err)
	}
	if !rel.released("h.pdf") {
		t.Fatalf("artifact not released on storage failure")
	}
}

func TestAnalyzeUnknownAccount(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(fakeText{text: "x"}, okExtractor(), time.Second)

	if _, err := o.Analyze(context.Background(), "nobody", testFile("n.pdf")); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
