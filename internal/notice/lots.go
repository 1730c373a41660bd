package notice

import "github.com/procurely/tendersync/internal/ocds"

// extractLots expands a multi-lot tender into one record per lot. Single-lot
// releases produce nothing here; their lot detail is folded into the notice
// record, avoiding a redundant one-row lot table for the common case.
func extractLots(rel *ocds.Release, in Input) []*Record {
	t := rel.Tender
	if t == nil || len(t.Lots) < 2 {
		return nil
	}

	records := make([]*Record, 0, len(t.Lots))
	for i := range t.Lots {
		lot := &t.Lots[i]

		r := NewRecord()
		r.Set("OCID", orNA(rel.OCID))
		r.Set("Notice Type", string(in.Type))
		r.Set("Is Update", in.IsUpdate)
		r.Set("Lot Number", i+1)
		r.Set("Lot Title", orNA(lot.Title))
		r.Set("Lot Description", orNA(lot.Description))
		r.Set("Value ex VAT", amountOrNA(lot.Value))
		r.Set("Value inc VAT", amountGrossOrNA(lot.Value))
		r.Set("Currency", currencyOrNA(lot.Value))
		r.Set("Contract Start Date", periodStart(lot.ContractPeriod))
		r.Set("Contract End Date", periodEnd(lot.ContractPeriod))
		r.Set("SME Suitable", lotSME(lot))
		r.Set("VCSE Suitable", lotVCSE(lot))
		r.Set("Award Criteria", lotCriteria(lot))
		r.Set("CPV Code", lotCPV(t.Items, lot.ID))
		records = append(records, r)
	}
	return records
}
