package pipeline

import (
	"fmt"
	"time"

	"github.com/procurely/tendersync/internal/notice"
)

// UnawardedReport writes the "Unawarded" sheet: tenders whose submission
// deadline has passed without any award-family notice appearing for the same
// OCID. Returns the number of report rows.
func (r *Runner) UnawardedReport() (int, error) {
	tenders, err := r.store.NoticesByFamily(string(notice.FamilyTender))
	if err != nil {
		return 0, fmt.Errorf("reading tender cache: %w", err)
	}
	awards, err := r.store.NoticesByFamily(string(notice.FamilyAward))
	if err != nil {
		return 0, fmt.Errorf("reading award cache: %w", err)
	}

	awarded := make(map[string]bool, len(awards))
	for _, a := range awards {
		awarded[a.OCID] = true
	}

	now := r.now().UTC()
	header := []string{"OCID", "Notice ID", "Tender Title", "Tender Deadline", "Published Date"}
	var rows [][]any
	for _, t := range tenders {
		if awarded[t.OCID] || t.Deadline == "" {
			continue
		}
		deadline, err := parseNoticeDate(t.Deadline)
		if err != nil {
			r.logger.Warn("unparsable tender deadline", "ocid", t.OCID, "deadline", t.Deadline)
			continue
		}
		if !deadline.Before(now) {
			continue
		}
		rows = append(rows, []any{t.OCID, t.NoticeID, t.Title, t.Deadline, t.PublishedAt})
	}

	sink, err := r.openSink()
	if err != nil {
		return 0, fmt.Errorf("opening sink: %w", err)
	}
	defer sink.Close()

	if err := sink.WriteTable(SheetUnawarded, header, rows); err != nil {
		return 0, fmt.Errorf("writing %s sheet: %w", SheetUnawarded, err)
	}
	if err := sink.Save(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func parseNoticeDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
