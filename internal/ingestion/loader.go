package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/mapping"
	"cardmarket-lab/internal/storage"
	"cardmarket-lab/internal/upsert"
	"cardmarket-lab/internal/workpool"
)

// Row outcome labels.
const (
	RowOK  = "ok"
	RowDup = "dup"
	RowErr = "err"
)

// Counts summarizes a batch.
type Counts struct {
	OK  int64
	Dup int64
	Err int64
}

// Total returns the number of rows processed.
func (c Counts) Total() int64 { return c.OK + c.Dup + c.Err }

func (c Counts) String() string {
	return fmt.Sprintf("ok=%d dup=%d err=%d", c.OK, c.Dup, c.Err)
}

// Report formats the batch summary line printed by the ingest tool.
func Report(kind string, c Counts) string {
	return fmt.Sprintf("[ingest] %s %s", kind, c)
}

// CompSource returns the source tag for sold comps of a listing source,
// e.g. "Ebay" -> "EbaySold". A tag that already ends in "Sold" is kept.
func CompSource(source string) string {
	if source == "" || strings.HasSuffix(source, "Sold") {
		return source
	}
	return source + "Sold"
}

// Recorder receives per-row outcomes and pool occupancy.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveRow(kind, outcome string)
	SetInFlight(n int64)
}

// Loader runs listing and comp rows through map, audit, card resolution
// and write.
type Loader struct {
	mapper      *mapping.Mapper
	engine      *upsert.Engine
	concurrency int
	logger      *log.Logger
	recorder    Recorder
}

// LoaderOptions contains configuration for creating a Loader.
type LoaderOptions struct {
	Mapper      *mapping.Mapper
	Engine      *upsert.Engine
	Concurrency int // Default: 1 (sequential)
	Logger      *log.Logger
	Recorder    Recorder
}

// NewLoader creates a new loader.
func NewLoader(opts LoaderOptions) *Loader {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Loader{
		mapper:      opts.Mapper,
		engine:      opts.Engine,
		concurrency: concurrency,
		logger:      logger,
		recorder:    opts.Recorder,
	}
}

type row struct {
	index  int
	record mapping.Record
}

// LoadListings ingests listing rows. Inserted or updated listings count ok,
// unchanged ones dup, anything else err.
func (l *Loader) LoadListings(ctx context.Context, records []mapping.Record, source string) Counts {
	return l.run(ctx, "listings", records, func(ctx context.Context, rec mapping.Record) (bool, error) {
		return l.loadListing(ctx, rec, source)
	})
}

// LoadComps ingests sold-comparable rows. Inserted sales count ok,
// duplicates dup, anything else err.
func (l *Loader) LoadComps(ctx context.Context, records []mapping.Record, source string) Counts {
	return l.run(ctx, "comps", records, func(ctx context.Context, rec mapping.Record) (bool, error) {
		return l.loadComp(ctx, rec, source)
	})
}

func (l *Loader) run(ctx context.Context, kind string, records []mapping.Record, fn func(context.Context, mapping.Record) (bool, error)) Counts {
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{index: i, record: rec}
	}

	var opts []workpool.Option
	if l.recorder != nil {
		opts = append(opts, workpool.WithInFlightObserver(l.recorder.SetInFlight))
	}

	stats := workpool.Run(ctx, rows, l.concurrency, func(ctx context.Context, r row) (bool, error) {
		ok, err := fn(ctx, r.record)
		switch {
		case err != nil:
			l.logger.Printf("%s row %d: %v", kind, r.index, err)
			l.observe(kind, RowErr)
		case ok:
			l.observe(kind, RowOK)
		default:
			l.observe(kind, RowDup)
		}
		return ok, err
	}, opts...)

	return Counts{OK: stats.OK, Dup: stats.Miss, Err: stats.Err}
}

func (l *Loader) observe(kind, outcome string) {
	if l.recorder != nil {
		l.recorder.ObserveRow(kind, outcome)
	}
}

func (l *Loader) loadListing(ctx context.Context, rec mapping.Record, source string) (bool, error) {
	m, mapErr := l.mapper.MapListing(ctx, rec, source)
	if m != nil {
		if err := l.archive(ctx, m.RawImport); err != nil {
			return false, err
		}
	}
	if mapErr != nil {
		return false, mapErr
	}

	c := m.Canonical
	card, _, err := l.engine.UpsertCardByKey(ctx, c.CardKey, c.DisplayName)
	if err != nil {
		return false, err
	}

	_, outcome, err := l.engine.UpsertListing(ctx, card.CardID, c)
	if err != nil {
		return false, err
	}
	switch outcome {
	case storage.OutcomeInserted, storage.OutcomeUpdated:
		return true, nil
	case storage.OutcomeUnchanged:
		return false, nil
	}
	return false, fmt.Errorf("listing %s/%s: unexpected outcome %s", c.Source, c.SourceID, outcome)
}

func (l *Loader) loadComp(ctx context.Context, rec mapping.Record, source string) (bool, error) {
	m, mapErr := l.mapper.MapComp(ctx, rec, source)
	if m != nil {
		if err := l.archive(ctx, m.RawImport); err != nil {
			return false, err
		}
	}
	if mapErr != nil {
		return false, mapErr
	}

	c := m.Canonical
	card, _, err := l.engine.UpsertCardByKey(ctx, c.CardKey, c.DisplayName)
	if err != nil {
		return false, err
	}

	_, outcome, err := l.engine.InsertCompSale(ctx, card.CardID, c)
	if err != nil {
		return false, err
	}
	switch outcome {
	case storage.OutcomeInserted:
		return true, nil
	case storage.OutcomeDuplicate:
		return false, nil
	}
	return false, fmt.Errorf("comp %s: unexpected outcome %s", c.Source, outcome)
}

// archive stores the raw audit copy. A repeated payload comes back as
// OutcomeDuplicate and is not an error.
func (l *Loader) archive(ctx context.Context, r *domain.RawImport) error {
	if r == nil {
		return nil
	}
	if _, err := l.engine.RecordRawImport(ctx, r); err != nil {
		return fmt.Errorf("archive raw payload: %w", err)
	}
	return nil
}
