package notice

import "github.com/procurely/tendersync/internal/ocds"

// extractTender maps UK4/UK13 tender notices. Unlike planning notices, the
// delivery window comes from tender.contractPeriod, and the record carries
// the submission-side fields (deadline, enquiry period, renewal/options).
func extractTender(rel *ocds.Release, in Input) *Record {
	t := rel.Tender
	lot := firstLot(t)

	r := NewRecord()
	setCommon(r, rel, in)

	var value *ocds.Value
	var title, description, status string
	var contractPeriod, tenderPeriod, enquiryPeriod *ocds.Period
	var tech *ocds.Techniques
	var category, method, submission string
	var renewal, options string
	if t != nil {
		title, description, status = t.Title, t.Description, t.Status
		value = t.Value
		contractPeriod = t.ContractPeriod
		tenderPeriod = t.TenderPeriod
		enquiryPeriod = t.EnquiryPeriod
		tech = t.Techniques
		category = t.MainProcurementCategory
		method = t.ProcurementMethodDetails
		submission = t.SubmissionMethodDetails
		if t.Renewal != nil {
			renewal = t.Renewal.Description
		}
		if t.Options != nil {
			options = t.Options.Description
		}
	}

	r.Set("Tender Title", orNA(title))
	r.Set("Tender Description", orNA(description))
	r.Set("Tender Status", orNA(status))
	r.Set("Total Value ex VAT", amountOrNA(value))
	r.Set("Total Value inc VAT", amountGrossOrNA(value))
	r.Set("Currency", currencyOrNA(value))
	r.Set("Threshold", thresholdLabel(tenderThreshold(t)))
	r.Set("Contract Start Date", periodStart(contractPeriod))
	r.Set("Contract End Date", periodEnd(contractPeriod))
	r.Set("Tender Deadline", periodEnd(tenderPeriod))
	r.Set("Enquiry Deadline", periodEnd(enquiryPeriod))
	r.Set("Submission Method", orNA(submission))
	r.Set("Commercial Tool", frameworkLabel(tech))
	r.Set("Framework Call-off Method", frameworkMethodLabel(tech))
	r.Set("Procurement Category", orNA(category))
	r.Set("CPV Code", noticeCPV(t))
	r.Set("Award Criteria", noticeCriteria(t))
	r.Set("Renewal Description", orNA(renewal))
	r.Set("Options Description", orNA(options))
	r.Set("Particular Suitability", suitabilityLabel(lot))
	r.Set("Procurement Method", orNA(method))
	r.Set("Buyer Name", buyerName(rel))
	r.Set("Buyer ID", orNA(rel.BuyerID()))
	r.Set("Fields Changed", "")
	return r
}
