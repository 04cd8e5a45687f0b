// Package analysis runs one document analysis request: advisory balance
// check, text and structured extraction, then the atomic debit that records
// the document. Credit is consumed only when the debit commits.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example/docanalysis-api/extract"
	"example/docanalysis-api/ledger"
	"example/docanalysis-api/upload"

	"go.uber.org/zap"
)

const DefaultExtractTimeout = 60 * time.Second

var (
	// ErrExtraction covers text extraction and structured extraction
	// failures, including timeouts. Nothing is charged.
	ErrExtraction = errors.New("analysis: extraction failed")
	// ErrStorage means the ledger could not record the result.
	ErrStorage = errors.New("analysis: storage failed")
)

type State string

const (
	StateReceived       State = "received"
	StateBalanceChecked State = "balance_checked"
	StateExtracted      State = "extracted"
	StatePersisted      State = "persisted"
	StateRejected       State = "rejected"
	StateFailed         State = "failed"
)

type Ledger interface {
	GetBalance(ctx context.Context, accountID string) (int, error)
	TryDebit(ctx context.Context, accountID string, amount int, doc ledger.DocumentPayload) (ledger.DebitResult, error)
}

type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

type Releaser interface {
	Release(ref string) error
}

// Outcome is the terminal state of one request. Record, DocumentID and
// CreditsRemaining are set only when State is StatePersisted.
type Outcome struct {
	State            State
	Record           extract.Record
	DocumentID       string
	CreditsRemaining int
}

type Orchestrator struct {
	ledger         Ledger
	text           TextExtractor
	extractor      extract.Extractor
	releaser       Releaser
	extractTimeout time.Duration
	log            *zap.SugaredLogger
}

type Config struct {
	Ledger         Ledger
	Text           TextExtractor
	Extractor      extract.Extractor
	Releaser       Releaser
	ExtractTimeout time.Duration
	Logger         *zap.SugaredLogger
}

func New(cfg Config) *Orchestrator {
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		ledger:         cfg.Ledger,
		text:           cfg.Text,
		extractor:      cfg.Extractor,
		releaser:       cfg.Releaser,
		extractTimeout: cfg.ExtractTimeout,
		log:            cfg.Logger,
	}
}

// Analyze charges ledger.DocumentCharge credits for a successful analysis of
// file. The uploaded artifact is released on every return path.
func (o *Orchestrator) Analyze(ctx context.Context, accountID string, file upload.File) (Outcome, error) {
	defer o.release(file.Ref)

	log := o.log.With("account_id", accountID, "file_ref", file.Ref)
	log.Debugw("analysis.state", "state", StateReceived, "size", file.Size)

	balance, err := o.ledger.GetBalance(ctx, accountID)
	if err != nil {
		log.Errorw("analysis.balance.error", "error", err)
		return Outcome{State: StateFailed}, storageErr(err)
	}
	if balance < ledger.DocumentCharge {
		log.Infow("analysis.rejected", "balance", balance)
		return Outcome{State: StateRejected}, ledger.ErrInsufficientCredits
	}
	log.Debugw("analysis.state", "state", StateBalanceChecked, "balance", balance)

	record, err := o.extract(ctx, file.Data)
	if err != nil {
		log.Warnw("analysis.extract.failed", "error", err)
		return Outcome{State: StateFailed}, err
	}
	log.Debugw("analysis.state", "state", StateExtracted, "fallback", record.Fallback)

	result, err := json.Marshal(record)
	if err != nil {
		return Outcome{State: StateFailed}, fmt.Errorf("%w: encode record: %w", ErrStorage, err)
	}

	debit, err := o.ledger.TryDebit(ctx, accountID, ledger.DocumentCharge, ledger.DocumentPayload{
		FileRef:      file.Ref,
		OriginalName: file.OriginalName,
		Result:       result,
		Fallback:     record.Fallback,
	})
	if errors.Is(err, ledger.ErrInsufficientCredits) {
		// balance was spent by a concurrent request after the check above
		log.Infow("analysis.rejected", "reason", "debit_refused")
		return Outcome{State: StateRejected}, err
	}
	if err != nil {
		log.Errorw("analysis.debit.error", "error", err)
		return Outcome{State: StateFailed}, storageErr(err)
	}

	log.Infow("analysis.persisted",
		"document_id", debit.DocumentID,
		"credits_remaining", debit.NewBalance,
		"fallback", record.Fallback,
	)
	return Outcome{
		State:            StatePersisted,
		Record:           record,
		DocumentID:       debit.DocumentID,
		CreditsRemaining: debit.NewBalance,
	}, nil
}

// extract turns the PDF into text and the text into a record under one
// deadline.
func (o *Orchestrator) extract(ctx context.Context, data []byte) (extract.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, o.extractTimeout)
	defer cancel()

	text, err := o.text.ExtractText(ctx, data)
	if err != nil {
		return extract.Record{}, fmt.Errorf("%w: read document: %w", ErrExtraction, err)
	}

	record, err := o.extractor.Extract(ctx, text)
	if err != nil {
		return extract.Record{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return record, nil
}

func (o *Orchestrator) release(ref string) {
	if o.releaser == nil || ref == "" {
		return
	}
	if err := o.releaser.Release(ref); err != nil {
		o.log.Warnw("analysis.release.error", "file_ref", ref, "error", err)
	}
}

// storageErr keeps NotFound visible to callers and folds everything else
// into ErrStorage.
func storageErr(err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
