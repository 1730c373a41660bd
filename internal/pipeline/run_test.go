package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/procurely/tendersync/internal/ocds"
	"github.com/procurely/tendersync/internal/storage"
)

// fakeSource returns canned releases.
type fakeSource struct {
	releases []ocds.Release
	hadError bool
	pkg      *ocds.ReleasePackage
	pkgErr   error
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeSource) FetchUpdated(_ context.Context, from, to time.Time) ([]ocds.Release, bool) {
	f.lastFrom, f.lastTo = from, to
	return f.releases, f.hadError
}

func (f *fakeSource) FetchPackage(_ context.Context, ocid string) (*ocds.ReleasePackage, error) {
	return f.pkg, f.pkgErr
}

// fakeStore is an in-memory StateStore.
type fakeStore struct {
	watermark  time.Time
	hasMark    bool
	lastStatus string
	runs       map[string]storage.Run
	notices    map[string]storage.Notice // keyed ocid|family
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:    make(map[string]storage.Run),
		notices: make(map[string]storage.Notice),
	}
}

func (f *fakeStore) LastFetchDate() (time.Time, error) {
	if !f.hasMark {
		return time.Time{}, storage.ErrNotFound
	}
	return f.watermark, nil
}

func (f *fakeStore) SetLastFetchDate(t time.Time) error {
	f.watermark, f.hasMark = t, true
	return nil
}

func (f *fakeStore) SetLastFetchStatus(status string) error {
	f.lastStatus = status
	return nil
}

func (f *fakeStore) InsertRun(r storage.Run) error {
	f.runs[r.ID] = r
	return nil
}

func (f *fakeStore) FinishRun(id, status string, releases, notices int, errMsg string) error {
	r, ok := f.runs[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.Status, r.Releases, r.Notices, r.Error = status, releases, notices, errMsg
	f.runs[id] = r
	return nil
}

func (f *fakeStore) UpsertNotice(n storage.Notice) error {
	f.notices[n.OCID+"|"+n.Family] = n
	return nil
}

func (f *fakeStore) NoticesByFamily(family string) ([]storage.Notice, error) {
	var out []storage.Notice
	for _, n := range f.notices {
		if n.Family == family {
			out = append(out, n)
		}
	}
	return out, nil
}

// fakeSink records sheet writes in memory with workbook upsert semantics.
type fakeSink struct {
	headers map[string][]string
	rows    map[string]map[string][]any // sheet -> key -> row
	order   map[string][]string
	saved   bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		headers: make(map[string][]string),
		rows:    make(map[string]map[string][]any),
		order:   make(map[string][]string),
	}
}

func (f *fakeSink) UpsertRows(sheet string, header []string, rows [][]any) error {
	f.headers[sheet] = header
	if f.rows[sheet] == nil {
		f.rows[sheet] = make(map[string][]any)
	}
	for _, row := range rows {
		key := fmt.Sprintf("%v", row[0])
		if _, ok := f.rows[sheet][key]; !ok {
			f.order[sheet] = append(f.order[sheet], key)
		}
		f.rows[sheet][key] = row
	}
	return nil
}

func (f *fakeSink) WriteTable(sheet string, header []string, rows [][]any) error {
	f.headers[sheet] = header
	f.rows[sheet] = make(map[string][]any)
	f.order[sheet] = nil
	for i, row := range rows {
		key := fmt.Sprintf("%d", i)
		f.rows[sheet][key] = row
		f.order[sheet] = append(f.order[sheet], key)
	}
	return nil
}

func (f *fakeSink) Save() error {
	f.saved = true
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) cell(t *testing.T, sheet, key, column string) any {
	t.Helper()
	header, ok := f.headers[sheet]
	if !ok {
		t.Fatalf("sheet %s never written", sheet)
	}
	row, ok := f.rows[sheet][key]
	if !ok {
		t.Fatalf("sheet %s has no row %s", sheet, key)
	}
	for i, h := range header {
		if h == column {
			return row[i]
		}
	}
	t.Fatalf("sheet %s has no column %s", sheet, column)
	return nil
}

// --- fixtures ---

func tenderRelease(ocid, id, date, title string, tags ...string) ocds.Release {
	if len(tags) == 0 {
		tags = []string{"tender"}
	}
	deadline := "2025-03-01T12:00:00Z"
	return ocds.Release{
		OCID: ocid,
		ID:   id,
		Date: date,
		Tags: tags,
		Tender: &ocds.Tender{
			Title:        title,
			Status:       "active",
			TenderPeriod: &ocds.Period{EndDate: deadline},
			Documents:    []ocds.Document{{NoticeType: "UK4"}},
		},
	}
}

func awardRelease(ocid, id, date string) ocds.Release {
	amount := 50000.0
	return ocds.Release{
		OCID: ocid,
		ID:   id,
		Date: date,
		Tags: []string{"award"},
		Awards: []ocds.Award{{
			ID:        "AWD-1",
			Status:    "active",
			Value:     &ocds.Value{Amount: &amount, Currency: "GBP"},
			Suppliers: []ocds.OrgReference{{Name: "Acme Ltd"}},
			Documents: []ocds.Document{{NoticeType: "UK6"}},
		}},
	}
}

func newTestRunner(src *fakeSource, store *fakeStore, sink *fakeSink) *Runner {
	defaultFrom, _ := time.Parse(time.RFC3339, "2025-01-01T00:00:00Z")
	r := NewRunner(src, store, func() (NoticeSink, error) { return sink, nil }, Options{
		DefaultFrom:  defaultFrom,
		ValueEpsilon: 0.01,
	})
	fixed, _ := time.Parse(time.RFC3339, "2025-06-01T00:00:00Z")
	r.now = func() time.Time { return fixed }
	return r
}

// --- tests ---

func TestRunAdvancesWatermarkOnCleanFetch(t *testing.T) {
	src := &fakeSource{releases: []ocds.Release{
		tenderRelease("ocds-1", "1-1", "2025-02-01T00:00:00Z", "Road works"),
	}}
	store := newFakeStore()
	sink := newFakeSink()

	sum, err := newTestRunner(src, store, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != storage.RunSucceeded {
		t.Errorf("status = %q, want succeeded", sum.Status)
	}
	if !store.hasMark || !store.watermark.Equal(sum.To) {
		t.Errorf("watermark = %v (set=%v), want %v", store.watermark, store.hasMark, sum.To)
	}
	if store.lastStatus != storage.RunSucceeded {
		t.Errorf("last fetch status = %q, want succeeded", store.lastStatus)
	}
	if !src.lastFrom.Equal(sum.From) {
		t.Errorf("fetch window from = %v, want %v", src.lastFrom, sum.From)
	}
	if !sink.saved {
		t.Error("workbook never saved")
	}
	if got := sink.cell(t, SheetTenders, "ocds-1", "Tender Title"); got != "Road works" {
		t.Errorf("Tender Title = %v", got)
	}
	run := store.runs[sum.RunID]
	if run.Status != storage.RunSucceeded || run.Releases != 1 || run.Notices != 1 {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestRunAbortsWithoutWritingOnFetchError(t *testing.T) {
	src := &fakeSource{
		releases: []ocds.Release{tenderRelease("ocds-1", "1-1", "2025-02-01T00:00:00Z", "Partial")},
		hadError: true,
	}
	store := newFakeStore()
	prior, _ := time.Parse(time.RFC3339, "2025-01-15T00:00:00Z")
	store.SetLastFetchDate(prior)
	sink := newFakeSink()

	sum, err := newTestRunner(src, store, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != storage.RunFailed {
		t.Errorf("status = %q, want failed", sum.Status)
	}
	if !store.watermark.Equal(prior) {
		t.Errorf("watermark moved to %v, want %v", store.watermark, prior)
	}
	if store.lastStatus != "" {
		t.Errorf("last fetch status = %q, want unset after errored fetch", store.lastStatus)
	}
	// Nothing from the incomplete window may reach the sink or the cache.
	if sink.saved || len(sink.rows) != 0 {
		t.Errorf("sink written after errored fetch: saved=%v rows=%v", sink.saved, sink.rows)
	}
	if len(store.notices) != 0 {
		t.Errorf("notice cache written after errored fetch: %v", store.notices)
	}
	if sum.Notices != 0 {
		t.Errorf("notices = %d, want 0", sum.Notices)
	}
	run := store.runs[sum.RunID]
	if run.Status != storage.RunFailed || run.Notices != 0 {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestRunReconcilesUpdates(t *testing.T) {
	src := &fakeSource{releases: []ocds.Release{
		// Out of order on purpose: processing must sort by date.
		tenderRelease("ocds-1", "1-2", "2025-02-10T00:00:00Z", "Final title", "tender", "tenderUpdate"),
		tenderRelease("ocds-1", "1-1", "2025-02-01T00:00:00Z", "Draft title"),
	}}
	store := newFakeStore()
	sink := newFakeSink()

	if _, err := newTestRunner(src, store, sink).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := sink.cell(t, SheetTenders, "ocds-1", "Tender Title"); got != "Final title" {
		t.Errorf("Tender Title = %v, want update applied", got)
	}
	fc := sink.cell(t, SheetTenders, "ocds-1", "Fields Changed")
	if s, _ := fc.(string); !strings.Contains(s, "Tender Title") {
		t.Errorf("Fields Changed = %v, want Tender Title tracked", fc)
	}
	if len(sink.rows[SheetTenders]) != 1 {
		t.Errorf("got %d tender rows, want 1 working record", len(sink.rows[SheetTenders]))
	}
}

func TestRunSkipsUnclassifiedReleases(t *testing.T) {
	src := &fakeSource{releases: []ocds.Release{
		{OCID: "ocds-x", ID: "x-1", Date: "2025-02-01T00:00:00Z"},
		tenderRelease("ocds-1", "1-1", "2025-02-02T00:00:00Z", "Kept"),
	}}
	store := newFakeStore()
	sink := newFakeSink()

	sum, err := newTestRunner(src, store, sink).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", sum.Skipped)
	}
	if sum.Notices != 1 {
		t.Errorf("notices = %d, want 1", sum.Notices)
	}
}

func TestRunWritesLotRowsWithCompositeKeys(t *testing.T) {
	rel := tenderRelease("ocds-1", "1-1", "2025-02-01T00:00:00Z", "Two lots")
	rel.Tender.Lots = []ocds.Lot{
		{ID: "LOT-0001", Title: "North"},
		{ID: "LOT-0002", Title: "South"},
	}
	src := &fakeSource{releases: []ocds.Release{rel}}
	store := newFakeStore()
	sink := newFakeSink()

	if _, err := newTestRunner(src, store, sink).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.rows[SheetLots]) != 2 {
		t.Fatalf("got %d lot rows, want 2", len(sink.rows[SheetLots]))
	}
	if got := sink.cell(t, SheetLots, "ocds-1#lot-1", "Lot Title"); got != "North" {
		t.Errorf("lot 1 title = %v", got)
	}
	if got := sink.cell(t, SheetLots, "ocds-1#lot-2", "Lot Title"); got != "South" {
		t.Errorf("lot 2 title = %v", got)
	}
}

func TestRunCachesNoticesPerFamily(t *testing.T) {
	src := &fakeSource{releases: []ocds.Release{
		tenderRelease("ocds-1", "1-1", "2025-02-01T00:00:00Z", "Tender stage"),
		awardRelease("ocds-1", "1-2", "2025-03-05T00:00:00Z"),
	}}
	store := newFakeStore()
	sink := newFakeSink()

	if _, err := newTestRunner(src, store, sink).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tn, ok := store.notices["ocds-1|tender"]
	if !ok {
		t.Fatal("tender family not cached")
	}
	if tn.NoticeType != "UK4" || tn.Title != "Tender stage" {
		t.Errorf("cached tender = %+v", tn)
	}
	if tn.Deadline == "" {
		t.Error("tender deadline not cached")
	}
	if _, ok := store.notices["ocds-1|award"]; !ok {
		t.Error("award family not cached")
	}
	if got := sink.cell(t, SheetAwards, "ocds-1", "Awarded Supplier"); got != "Acme Ltd" {
		t.Errorf("Awarded Supplier = %v", got)
	}
}

func TestUnawardedReport(t *testing.T) {
	store := newFakeStore()
	store.UpsertNotice(storage.Notice{
		OCID: "ocds-stale", NoticeID: "s-1", Family: "tender",
		Title: "No award yet", Deadline: "2025-03-01T12:00:00Z",
	})
	store.UpsertNotice(storage.Notice{
		OCID: "ocds-done", NoticeID: "d-1", Family: "tender",
		Title: "Awarded", Deadline: "2025-03-01T12:00:00Z",
	})
	store.UpsertNotice(storage.Notice{OCID: "ocds-done", NoticeID: "d-2", Family: "award"})
	store.UpsertNotice(storage.Notice{
		OCID: "ocds-open", NoticeID: "o-1", Family: "tender",
		Title: "Still open", Deadline: "2027-01-01T00:00:00Z",
	})
	sink := newFakeSink()

	n, err := newTestRunner(&fakeSource{}, store, sink).UnawardedReport()
	if err != nil {
		t.Fatalf("UnawardedReport: %v", err)
	}
	if n != 1 {
		t.Fatalf("report rows = %d, want 1", n)
	}
	if got := sink.cell(t, SheetUnawarded, "0", "OCID"); got != "ocds-stale" {
		t.Errorf("report row OCID = %v", got)
	}
}

func TestRefreshDoesNotTouchWatermark(t *testing.T) {
	src := &fakeSource{pkg: &ocds.ReleasePackage{Releases: []ocds.Release{
		tenderRelease("ocds-9", "9-1", "2025-02-01T00:00:00Z", "Refetched"),
	}}}
	store := newFakeStore()
	sink := newFakeSink()

	n, err := newTestRunner(src, store, sink).Refresh(context.Background(), "ocds-9")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed notices = %d, want 1", n)
	}
	if store.hasMark {
		t.Error("refresh must not set the fetch watermark")
	}
	if got := sink.cell(t, SheetTenders, "ocds-9", "Tender Title"); got != "Refetched" {
		t.Errorf("Tender Title = %v", got)
	}
}

func TestRefreshPropagatesFetchError(t *testing.T) {
	src := &fakeSource{pkgErr: errors.New("not found")}
	store := newFakeStore()

	if _, err := newTestRunner(src, store, newFakeSink()).Refresh(context.Background(), "ocds-x"); err == nil {
		t.Error("expected error from failed package fetch")
	}
}

func TestControllerSerializesRuns(t *testing.T) {
	c := NewController()
	if !c.TryStart() {
		t.Fatal("first TryStart refused")
	}
	if c.TryStart() {
		t.Error("second TryStart succeeded while running")
	}
	if !c.Running() {
		t.Error("Running = false during run")
	}
	c.Finish()
	if c.Running() {
		t.Error("Running = true after Finish")
	}
	if !c.TryStart() {
		t.Error("TryStart refused after Finish")
	}
}
