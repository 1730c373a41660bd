package notice

import "github.com/procurely/tendersync/internal/ocds"

// extractAward maps UK5–UK7 award and contract notices. UK7 notices are
// published after contract signature, where the contract object carries the
// authoritative figures; UK5/UK6 read the first award instead.
func extractAward(rel *ocds.Release, in Input) *Record {
	r := NewRecord()
	setCommon(r, rel, in)

	var title string
	if rel.Tender != nil {
		title = rel.Tender.Title
	}
	r.Set("Tender Title", orNA(title))

	var suppliers []ocds.OrgReference
	if len(rel.Awards) > 0 {
		suppliers = rel.Awards[0].Suppliers
	}
	r.Set("Awarded Supplier", supplierNames(suppliers))

	value, period, above := awardFigures(rel, in.Type)
	r.Set("Awarded Amount ex VAT", amountOrNA(value))
	r.Set("Awarded Amount inc VAT", amountGrossOrNA(value))
	r.Set("Currency", currencyOrNA(value))
	r.Set("Threshold", thresholdLabel(above))
	r.Set("Contract Start Date", periodStart(period))
	r.Set("Contract End Date", periodEnd(period))

	var dateSigned string
	if len(rel.Contracts) > 0 {
		dateSigned = rel.Contracts[0].DateSigned
	}
	r.Set("Date Signed", orNA(dateSigned))
	r.Set("Days to Award", daysToAward(rel.Date, dateSigned))

	var status string
	if len(rel.Awards) > 0 {
		status = rel.Awards[0].Status
	}
	r.Set("Award Status", orNA(status))
	r.Set("Buyer Name", buyerName(rel))
	r.Set("Buyer ID", orNA(rel.BuyerID()))
	r.Set("Fields Changed", "")
	return r
}

// awardFigures picks the value/period source object: contracts[0] for UK7,
// awards[0] otherwise. The threshold flag is OR-ed across the chosen list
// (a procurement is above-threshold if any of its contracts/awards is).
func awardFigures(rel *ocds.Release, t Type) (*ocds.Value, *ocds.Period, *bool) {
	if t == UK7 && len(rel.Contracts) > 0 {
		c := &rel.Contracts[0]
		var above *bool
		for i := range rel.Contracts {
			above = orFlags(above, rel.Contracts[i].AboveThreshold)
		}
		return c.Value, c.Period, above
	}
	if len(rel.Awards) > 0 {
		a := &rel.Awards[0]
		var above *bool
		for i := range rel.Awards {
			above = orFlags(above, rel.Awards[i].AboveThreshold)
		}
		return a.Value, a.ContractPeriod, above
	}
	return nil, nil, nil
}

func orFlags(acc, b *bool) *bool {
	if b == nil {
		return acc
	}
	if acc == nil {
		v := *b
		return &v
	}
	v := *acc || *b
	return &v
}

// extractAwardRecords explodes the awards array into one record per award
// for UK6/UK7 notices.
func extractAwardRecords(rel *ocds.Release, in Input) []*Record {
	if in.Type != UK6 && in.Type != UK7 {
		return nil
	}

	var records []*Record
	for i := range rel.Awards {
		a := &rel.Awards[i]

		value := a.Value
		period := a.ContractPeriod
		if in.Type == UK7 {
			if c := contractForAward(rel, a.ID); c != nil {
				if c.Value != nil {
					value = c.Value
				}
				if c.Period != nil {
					period = c.Period
				}
			}
		}

		category := a.MainProcurementCategory
		if category == "" && rel.Tender != nil {
			category = rel.Tender.MainProcurementCategory
		}

		r := NewRecord()
		r.Set("OCID", orNA(rel.OCID))
		r.Set("Notice Type", string(in.Type))
		r.Set("Is Update", in.IsUpdate)
		r.Set("Award ID", orNA(a.ID))
		r.Set("Award Title", orNA(a.Title))
		r.Set("Awarded Amount ex VAT", amountOrNA(value))
		r.Set("Awarded Amount inc VAT", amountGrossOrNA(value))
		r.Set("Currency", currencyOrNA(value))
		r.Set("Suppliers", supplierNames(a.Suppliers))
		r.Set("Contract Start Date", periodStart(period))
		r.Set("Contract End Date", periodEnd(period))
		r.Set("Main Category", orNA(category))
		r.Set("CPV Code", awardCPV(a))
		records = append(records, r)
	}
	return records
}

// contractForAward matches a contract to an award by awardID, falling back
// to the first contract when the release carries a single award.
func contractForAward(rel *ocds.Release, awardID string) *ocds.Contract {
	for i := range rel.Contracts {
		if rel.Contracts[i].AwardID == awardID && awardID != "" {
			return &rel.Contracts[i]
		}
	}
	if len(rel.Awards) == 1 && len(rel.Contracts) > 0 {
		return &rel.Contracts[0]
	}
	return nil
}

// awardCPV returns the first additional classification under the award's
// own items.
func awardCPV(a *ocds.Award) string {
	for _, it := range a.Items {
		if len(it.AdditionalClassifications) > 0 {
			return orNA(it.AdditionalClassifications[0].ID)
		}
	}
	return NA
}
