// Package pipeline drives an ingestion run end to end: fetch releases,
// classify and extract notice records, reconcile updates, and write the
// workbook and notice cache.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/procurely/tendersync/internal/notice"
	"github.com/procurely/tendersync/internal/ocds"
	"github.com/procurely/tendersync/internal/storage"
)

const noticeURLBase = "https://www.find-tender.service.gov.uk/Notice/"

// Sheet names in the output workbook.
const (
	SheetPlanning    = "Planning"
	SheetTenders     = "Tenders"
	SheetAwards      = "Contract Awards"
	SheetTermination = "Terminations"
	SheetLots        = "Lots"
	SheetAwardLines  = "Award Details"
	SheetUnawarded   = "Unawarded"
	SheetMetadata    = "Metadata"
)

var familySheets = map[notice.Family]string{
	notice.FamilyPlanning:    SheetPlanning,
	notice.FamilyTender:      SheetTenders,
	notice.FamilyAward:       SheetAwards,
	notice.FamilyTermination: SheetTermination,
}

// ReleaseSource pulls OCDS releases from the procurement feed.
type ReleaseSource interface {
	FetchUpdated(ctx context.Context, from, to time.Time) (releases []ocds.Release, hadError bool)
	FetchPackage(ctx context.Context, ocid string) (*ocds.ReleasePackage, error)
}

// StateStore persists the fetch watermark, run history, and notice cache.
type StateStore interface {
	LastFetchDate() (time.Time, error)
	SetLastFetchDate(t time.Time) error
	SetLastFetchStatus(status string) error
	InsertRun(r storage.Run) error
	FinishRun(id, status string, releases, notices int, errMsg string) error
	UpsertNotice(n storage.Notice) error
	NoticesByFamily(family string) ([]storage.Notice, error)
}

// NoticeSink receives the tabular output of a run.
type NoticeSink interface {
	UpsertRows(sheet string, header []string, rows [][]any) error
	WriteTable(sheet string, header []string, rows [][]any) error
	Save() error
	Close() error
}

// Options configure a Runner.
type Options struct {
	// DefaultFrom seeds the fetch window when no run has ever completed.
	DefaultFrom time.Time
	// ToOverride pins the window's upper bound; zero means "now".
	ToOverride time.Time
	// ValueEpsilon is the tolerance for the lot-sum consistency check.
	ValueEpsilon float64
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	From     time.Time
	To       time.Time
	Releases int
	Notices  int
	Skipped  int
	Status   string
}

// Runner executes ingestion runs.
type Runner struct {
	source   ReleaseSource
	store    StateStore
	openSink func() (NoticeSink, error)
	now      func() time.Time
	opts     Options
	logger   *slog.Logger
}

func NewRunner(source ReleaseSource, store StateStore, openSink func() (NoticeSink, error), opts Options) *Runner {
	return &Runner{
		source:   source,
		store:    store,
		openSink: openSink,
		now:      time.Now,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Run performs one full ingestion pass. An errored fetch aborts the whole
// run before anything reaches the sink, and the watermark only advances when
// every page was fetched cleanly, so the same window is retried next run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	from, err := r.store.LastFetchDate()
	if errors.Is(err, storage.ErrNotFound) {
		from = r.opts.DefaultFrom
	} else if err != nil {
		return Summary{}, fmt.Errorf("reading fetch watermark: %w", err)
	}
	to := r.opts.ToOverride
	if to.IsZero() {
		to = r.now().UTC()
	}

	sum := Summary{RunID: uuid.NewString(), From: from, To: to}
	if err := r.store.InsertRun(storage.Run{
		ID:        sum.RunID,
		StartedAt: r.now().UTC(),
		From:      from,
		To:        to,
	}); err != nil {
		return Summary{}, fmt.Errorf("recording run: %w", err)
	}

	r.logger.Info("run started", "run_id", sum.RunID, "from", from, "to", to)

	releases, hadError := r.source.FetchUpdated(ctx, from, to)
	sum.Releases = len(releases)

	// An incomplete fetch means the window's data cannot be trusted: nothing
	// is committed to the sink and the watermark stays put, so the next run
	// re-fetches the same window.
	if hadError {
		sum.Status = storage.RunFailed
		r.finish(sum.RunID, storage.RunFailed, sum.Releases, 0, "fetch aborted before completion; nothing written, watermark not advanced")
		return sum, nil
	}

	batch := newBatch(r.opts.ValueEpsilon, r.logger)
	sum.Skipped = batch.process(releases)

	written, err := r.write(batch)
	if err != nil {
		r.finish(sum.RunID, storage.RunFailed, sum.Releases, 0, err.Error())
		return sum, err
	}
	sum.Notices = written

	if err := r.store.SetLastFetchDate(to); err != nil {
		r.finish(sum.RunID, storage.RunFailed, sum.Releases, sum.Notices, err.Error())
		return sum, fmt.Errorf("advancing fetch watermark: %w", err)
	}
	if err := r.store.SetLastFetchStatus(storage.RunSucceeded); err != nil {
		r.logger.Error("recording fetch status", "run_id", sum.RunID, "error", err)
	}

	sum.Status = storage.RunSucceeded
	r.finish(sum.RunID, storage.RunSucceeded, sum.Releases, sum.Notices, "")
	r.logger.Info("run finished", "run_id", sum.RunID, "releases", sum.Releases, "notices", sum.Notices, "skipped", sum.Skipped)
	return sum, nil
}

// Refresh re-ingests a single procurement by OCID. The fetch watermark is
// untouched.
func (r *Runner) Refresh(ctx context.Context, ocid string) (int, error) {
	pkg, err := r.source.FetchPackage(ctx, ocid)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", ocid, err)
	}

	batch := newBatch(r.opts.ValueEpsilon, r.logger)
	batch.process(pkg.Releases)
	return r.write(batch)
}

func (r *Runner) finish(id, status string, releases, notices int, errMsg string) {
	if err := r.store.FinishRun(id, status, releases, notices, errMsg); err != nil {
		r.logger.Error("recording run outcome", "run_id", id, "error", err)
	}
}

// write flushes a processed batch to the workbook and the notice cache,
// returning the number of notice records written.
func (r *Runner) write(b *batch) (int, error) {
	sink, err := r.openSink()
	if err != nil {
		return 0, fmt.Errorf("opening sink: %w", err)
	}
	defer sink.Close()

	written := 0
	for _, fam := range []notice.Family{notice.FamilyPlanning, notice.FamilyTender, notice.FamilyAward, notice.FamilyTermination} {
		records := b.families[fam].Records()
		if len(records) == 0 {
			continue
		}
		header := unionHeader(records)
		rows := make([][]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.Row(header))
		}
		if err := sink.UpsertRows(familySheets[fam], header, rows); err != nil {
			return written, fmt.Errorf("writing %s sheet: %w", familySheets[fam], err)
		}
		written += len(records)

		for _, rec := range records {
			if err := r.store.UpsertNotice(cacheEntry(fam, rec)); err != nil {
				return written, fmt.Errorf("caching notice: %w", err)
			}
		}
	}

	if err := writeKeyed(sink, SheetLots, b.lotKeys, b.lots); err != nil {
		return written, err
	}
	if err := writeKeyed(sink, SheetAwardLines, b.awardKeys, b.awards); err != nil {
		return written, err
	}

	meta := [][]any{
		{"Generated At", r.now().UTC().Format(time.RFC3339)},
		{"Notices Written", written},
		{"Lot Rows", len(b.lotKeys)},
		{"Award Rows", len(b.awardKeys)},
	}
	if err := sink.WriteTable(SheetMetadata, []string{"Field", "Value"}, meta); err != nil {
		return written, fmt.Errorf("writing metadata sheet: %w", err)
	}

	if err := sink.Save(); err != nil {
		return written, err
	}
	return written, nil
}

// writeKeyed upserts sub-records under a synthetic first-column key, since
// lots and award lines are not unique per OCID.
func writeKeyed(sink NoticeSink, sheet string, keys []string, recs map[string]*notice.Record) error {
	if len(keys) == 0 {
		return nil
	}
	ordered := make([]*notice.Record, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, recs[k])
	}
	header := append([]string{"Key"}, unionHeader(ordered)...)
	rows := make([][]any, 0, len(keys))
	for i, k := range keys {
		row := append([]any{k}, ordered[i].Row(header[1:])...)
		rows = append(rows, row)
	}
	if err := sink.UpsertRows(sheet, header, rows); err != nil {
		return fmt.Errorf("writing %s sheet: %w", sheet, err)
	}
	return nil
}

// unionHeader merges record key sets preserving first-seen column order.
func unionHeader(records []*notice.Record) []string {
	var header []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	return header
}

func cacheEntry(fam notice.Family, rec *notice.Record) storage.Notice {
	n := storage.Notice{Family: string(fam)}
	n.OCID = recString(rec, "OCID")
	n.NoticeID = recString(rec, "Notice ID")
	n.NoticeType = recString(rec, "Notice Type")
	n.PublishedAt = recString(rec, "Published Date")
	n.Title = recString(rec, "Tender Title")
	if n.Title == "" {
		n.Title = recString(rec, "Title")
	}
	if d := recString(rec, "Tender Deadline"); d != notice.NA {
		n.Deadline = d
	}

	fields := make(map[string]any, len(rec.Keys()))
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		fields[k] = v
	}
	data, err := json.Marshal(fields)
	if err == nil {
		n.RecordJSON = string(data)
	}
	return n
}

func recString(rec *notice.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

// batch accumulates the reconciled output of one run.
type batch struct {
	families  map[notice.Family]*notice.Reconciler
	lots      map[string]*notice.Record
	lotKeys   []string
	awards    map[string]*notice.Record
	awardKeys []string
	epsilon   float64
	logger    *slog.Logger
}

func newBatch(epsilon float64, logger *slog.Logger) *batch {
	return &batch{
		families: map[notice.Family]*notice.Reconciler{
			notice.FamilyPlanning:    notice.NewReconciler(),
			notice.FamilyTender:      notice.NewReconciler(),
			notice.FamilyAward:       notice.NewReconciler(),
			notice.FamilyTermination: notice.NewReconciler(),
		},
		lots:    make(map[string]*notice.Record),
		awards:  make(map[string]*notice.Record),
		epsilon: epsilon,
		logger:  logger,
	}
}

// process classifies and extracts each release in publication order,
// reconciling repeated OCIDs. Unclassifiable releases are skipped silently;
// extraction failures are logged and skipped. Returns the skip count.
func (b *batch) process(releases []ocds.Release) int {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Date < releases[j].Date
	})

	skipped := 0
	for i := range releases {
		rel := &releases[i]

		typ := notice.Classify(rel)
		if typ == notice.Unclassified {
			skipped++
			continue
		}

		in := notice.Input{
			Type:     typ,
			URL:      noticeURLBase + rel.ID,
			Date:     rel.Date,
			IsUpdate: rel.IsUpdate(),
		}
		res, err := notice.Extract(rel, in)
		if err != nil {
			b.logger.Error("extraction failed", "ocid", rel.OCID, "type", typ, "error", err)
			skipped++
			continue
		}

		for _, w := range notice.LotSumWarnings(rel, b.epsilon) {
			b.logger.Warn("lot value check", "warning", w)
		}

		if res.Notice != nil {
			b.families[res.Family].Apply(rel.OCID, res.Notice, in.IsUpdate)
		}
		for _, lot := range res.Lots {
			key := fmt.Sprintf("%s#lot-%s", rel.OCID, recString(lot, "Lot Number"))
			if _, seen := b.lots[key]; !seen {
				b.lotKeys = append(b.lotKeys, key)
			}
			b.lots[key] = lot
		}
		for _, aw := range res.Awards {
			key := fmt.Sprintf("%s#award-%s", rel.OCID, recString(aw, "Award ID"))
			if _, seen := b.awards[key]; !seen {
				b.awardKeys = append(b.awardKeys, key)
			}
			b.awards[key] = aw
		}
	}
	return skipped
}
