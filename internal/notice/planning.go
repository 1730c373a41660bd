package notice

import (
	"math"

	"github.com/procurely/tendersync/internal/ocds"
)

// extractPlanning maps UK1–UK3 planning notices. A release without a
// planning section produces no notice row (lot rows may still be emitted by
// the caller); the planning stage is what distinguishes these notices from
// later lifecycle snapshots sharing the same tender section.
func extractPlanning(rel *ocds.Release, in Input) *Record {
	if rel.Planning == nil {
		return nil
	}

	t := rel.Tender
	lot := firstLot(t)

	r := NewRecord()
	setCommon(r, rel, in)

	if t != nil {
		r.Set("Tender Title", orNA(t.Title))
		r.Set("Tender Description", orNA(t.Description))
		r.Set("Tender Status", orNA(t.Status))
		r.Set("Total Value ex VAT", amountOrNA(t.Value))
		r.Set("Total Value inc VAT", amountGrossOrNA(t.Value))
		r.Set("Currency", currencyOrNA(t.Value))
		r.Set("Threshold", thresholdLabel(tenderThreshold(t)))
	} else {
		r.Set("Tender Title", NA)
		r.Set("Tender Description", NA)
		r.Set("Tender Status", NA)
		r.Set("Total Value ex VAT", NA)
		r.Set("Total Value inc VAT", NA)
		r.Set("Currency", NA)
		r.Set("Threshold", NA)
	}

	// Planning notices carry the delivery window on the first lot.
	var lotPeriod *ocds.Period
	if lot != nil {
		lotPeriod = lot.ContractPeriod
	}
	r.Set("Contract Start Date", periodStart(lotPeriod))
	r.Set("Contract End Date", periodEnd(lotPeriod))

	var tech *ocds.Techniques
	var category, method string
	if t != nil {
		tech = t.Techniques
		category = t.MainProcurementCategory
		method = t.ProcurementMethodDetails
	}
	r.Set("Commercial Tool", frameworkLabel(tech))
	r.Set("Framework Call-off Method", frameworkMethodLabel(tech))
	r.Set("Procurement Category", orNA(category))
	r.Set("CPV Code", noticeCPV(t))
	r.Set("Award Criteria", noticeCriteria(t))
	r.Set("SME Suitable", lotSME(lot))
	r.Set("VCSE Suitable", lotVCSE(lot))
	r.Set("Procurement Method", orNA(method))
	r.Set("Buyer Name", buyerName(rel))
	r.Set("Buyer ID", orNA(rel.BuyerID()))
	r.Set("Fields Changed", "")
	return r
}

// tenderThreshold prefers the tender-level flag, falling back to the first
// lot's.
func tenderThreshold(t *ocds.Tender) *bool {
	if t == nil {
		return nil
	}
	if t.AboveThreshold != nil {
		return t.AboveThreshold
	}
	if lot := firstLot(t); lot != nil {
		return lot.AboveThreshold
	}
	return nil
}

// LotSumWarnings compares the sum of lot values against the tender total,
// tolerating rounding differences up to epsilon. Mismatches are advisory:
// the feed is known to round lot values independently of the total.
func LotSumWarnings(rel *ocds.Release, epsilon float64) []string {
	t := rel.Tender
	if t == nil || t.Value == nil || t.Value.Amount == nil || len(t.Lots) < 2 {
		return nil
	}
	var sum float64
	for _, lot := range t.Lots {
		if lot.Value == nil || lot.Value.Amount == nil {
			return nil // can't validate a partial sum
		}
		sum += *lot.Value.Amount
	}
	if math.Abs(sum-*t.Value.Amount) > epsilon {
		return []string{rel.OCID + ": sum of lot values does not match total tender value"}
	}
	return nil
}
