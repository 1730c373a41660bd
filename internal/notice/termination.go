package notice

import "github.com/procurely/tendersync/internal/ocds"

// extractTermination maps UK12 termination notices. The record is minimal:
// the procurement is over, and the only new information is why.
func extractTermination(rel *ocds.Release, in Input) *Record {
	r := NewRecord()
	r.Set("OCID", orNA(rel.OCID))
	r.Set("Notice ID", orNA(rel.ID))
	r.Set("Published Date", orNA(in.Date))
	r.Set("Notice URL", orNA(in.URL))
	r.Set("Is Update", in.IsUpdate)

	var reference, title string
	if rel.Tender != nil {
		reference = rel.Tender.ID
		title = rel.Tender.Title
	}
	r.Set("Reference", orNA(reference))
	r.Set("Title", orNA(title))

	var reason string
	if len(rel.Awards) > 0 {
		reason = rel.Awards[0].StatusDetails
	}
	r.Set("Cancellation Reason", orNA(reason))
	r.Set("Fields Changed", "")
	return r
}
