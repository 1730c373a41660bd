package notice

import (
	"testing"

	"github.com/procurely/tendersync/internal/ocds"
)

func f64(v float64) *float64 { return &v }
func boolPtr(v bool) *bool   { return &v }

func getString(t *testing.T, r *Record, key string) string {
	t.Helper()
	v, ok := r.Get(key)
	if !ok {
		t.Fatalf("record has no key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		t.Fatalf("key %q holds %T, want string", key, v)
	}
	return s
}

func getFloat(t *testing.T, r *Record, key string) float64 {
	t.Helper()
	v, ok := r.Get(key)
	if !ok {
		t.Fatalf("record has no key %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		t.Fatalf("key %q holds %T (%v), want float64", key, v, v)
	}
	return f
}

func uk4Release(lots int) *ocds.Release {
	rel := &ocds.Release{
		OCID: "ocds-h6vhtk-100",
		ID:   "100-000001",
		Date: "2025-03-01T09:00:00Z",
		Tender: &ocds.Tender{
			Title:       "Grounds maintenance",
			Description: "Grass cutting and hedges",
			Status:      "active",
			Value:       &ocds.Value{Amount: f64(120000), AmountGross: f64(144000), Currency: "GBP"},
			Documents:   docs("UK4"),
			Items: []ocds.Item{
				{ID: "1", RelatedLot: "LOT-0001", AdditionalClassifications: []ocds.Classification{{Scheme: "CPV", ID: "45000000"}}},
			},
		},
		Buyer: &ocds.OrgReference{ID: "GB-PPON-AAAA-1111-BBBB", Name: "Testshire Council"},
	}
	for i := 0; i < lots; i++ {
		rel.Tender.Lots = append(rel.Tender.Lots, ocds.Lot{
			ID:    "LOT-000" + string(rune('1'+i)),
			Title: "Lot",
			Value: &ocds.Value{Amount: f64(60000), Currency: "GBP"},
		})
	}
	return rel
}

func TestExtract_UK4SingleLotCPV(t *testing.T) {
	rel := uk4Release(1)
	res, err := Extract(rel, Input{Type: UK4, Date: rel.Date, URL: "https://example.test/n/1"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := getString(t, res.Notice, "CPV Code"); got != "45000000" {
		t.Errorf("CPV Code = %q, want 45000000", got)
	}
	if len(res.Lots) != 0 {
		t.Errorf("single-lot release produced %d lot records, want 0", len(res.Lots))
	}
}

func TestExtract_UK4MultiLotRedirectsToLotSheet(t *testing.T) {
	rel := uk4Release(2)
	rel.Tender.Items = append(rel.Tender.Items, ocds.Item{
		ID: "2", RelatedLot: "LOT-0002",
		AdditionalClassifications: []ocds.Classification{{Scheme: "CPV", ID: "77310000"}},
	})

	res, err := Extract(rel, Input{Type: UK4, Date: rel.Date})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := getString(t, res.Notice, "CPV Code"); got != SentinelLotsCPV {
		t.Errorf("CPV Code = %q, want %q", got, SentinelLotsCPV)
	}
	if got := getString(t, res.Notice, "Award Criteria"); got != SentinelLotsCriteria {
		t.Errorf("Award Criteria = %q, want %q", got, SentinelLotsCriteria)
	}
	if len(res.Lots) != 2 {
		t.Fatalf("got %d lot records, want 2", len(res.Lots))
	}
	for i, lot := range res.Lots {
		n, _ := lot.Get("Lot Number")
		if n != i+1 {
			t.Errorf("lot %d: Lot Number = %v, want %d", i, n, i+1)
		}
	}
	if got := getString(t, res.Lots[0], "CPV Code"); got != "45000000" {
		t.Errorf("lot 1 CPV Code = %q, want 45000000", got)
	}
	if got := getString(t, res.Lots[1], "CPV Code"); got != "77310000" {
		t.Errorf("lot 2 CPV Code = %q, want 77310000", got)
	}
}

func TestExtract_MissingPathsYieldSentinels(t *testing.T) {
	rel := &ocds.Release{OCID: "ocds-h6vhtk-empty", ID: "e-1", Tender: &ocds.Tender{Documents: docs("UK4")}}
	res, err := Extract(rel, Input{Type: UK4})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for _, key := range []string{
		"Tender Title", "Total Value ex VAT", "Currency", "Threshold",
		"Contract Start Date", "Tender Deadline", "CPV Code", "Award Criteria",
		"Renewal Description", "Particular Suitability", "Buyer Name",
	} {
		if got := getString(t, res.Notice, key); got != NA {
			t.Errorf("%s = %q, want %q", key, got, NA)
		}
	}
	for _, key := range []string{"Is Update"} {
		v, _ := res.Notice.Get(key)
		if v != false {
			t.Errorf("%s = %v, want false", key, v)
		}
	}
}

func TestExtract_Planning(t *testing.T) {
	rel := uk4Release(1)
	rel.Tender.Documents = docs("UK3")
	rel.Tender.AboveThreshold = boolPtr(true)
	rel.Tender.Techniques = &ocds.Techniques{
		HasFrameworkAgreement: true,
		Type:                  "closed",
		FrameworkAgreement:    &ocds.FrameworkAgreement{Method: "withReopeningCompetition"},
	}
	rel.Tender.Lots[0].ContractPeriod = &ocds.Period{StartDate: "2025-06-01", EndDate: "2027-05-31"}
	rel.Planning = &ocds.Planning{Rationale: "annual works"}

	res, err := Extract(rel, Input{Type: UK3, Date: rel.Date})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Notice == nil {
		t.Fatal("planning release with planning section produced no notice record")
	}
	if got := getString(t, res.Notice, "Threshold"); got != "Above the relevant threshold" {
		t.Errorf("Threshold = %q", got)
	}
	if got := getString(t, res.Notice, "Commercial Tool"); got != "Establishes a closed framework" {
		t.Errorf("Commercial Tool = %q", got)
	}
	if got := getString(t, res.Notice, "Framework Call-off Method"); got != "With reopening competition" {
		t.Errorf("Framework Call-off Method = %q", got)
	}
	if got := getString(t, res.Notice, "Contract Start Date"); got != "2025-06-01" {
		t.Errorf("Contract Start Date = %q (planning uses first lot period)", got)
	}
}

func TestExtract_PlanningWithoutPlanningSectionSkipsNotice(t *testing.T) {
	rel := uk4Release(2)
	rel.Tender.Documents = docs("UK3")

	res, err := Extract(rel, Input{Type: UK3})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Notice != nil {
		t.Error("notice record produced without planning section")
	}
	if len(res.Lots) != 2 {
		t.Errorf("got %d lot records, want 2 (lots survive a skipped notice row)", len(res.Lots))
	}
}

func TestExtract_UK7ContractValueTakesPrecedence(t *testing.T) {
	rel := &ocds.Release{
		OCID: "ocds-h6vhtk-700",
		ID:   "700-000001",
		Date: "2025-04-10T00:00:00Z",
		Tender: &ocds.Tender{Title: "IT support"},
		Awards: []ocds.Award{{
			ID:        "AWD-1",
			Value:     &ocds.Value{Amount: f64(45000), Currency: "GBP"},
			Suppliers: []ocds.OrgReference{{Name: "Acme Ltd"}},
		}},
		Contracts: []ocds.Contract{{
			ID:         "CON-1",
			AwardID:    "AWD-1",
			Value:      &ocds.Value{Amount: f64(50000), Currency: "GBP"},
			DateSigned: "2025-04-01T00:00:00Z",
			Documents:  docs("UK7"),
		}},
	}

	res, err := Extract(rel, Input{Type: UK7, Date: rel.Date})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := getFloat(t, res.Notice, "Awarded Amount ex VAT"); got != 50000 {
		t.Errorf("Awarded Amount ex VAT = %v, want 50000 (contract value wins for UK7)", got)
	}
	if got := getString(t, res.Notice, "Days to Award"); got != "9" {
		t.Errorf("Days to Award = %q, want \"9\"", got)
	}

	if len(res.Awards) != 1 {
		t.Fatalf("got %d award records, want 1", len(res.Awards))
	}
	if got := getFloat(t, res.Awards[0], "Awarded Amount ex VAT"); got != 50000 {
		t.Errorf("award record amount = %v, want 50000", got)
	}
	if got := getString(t, res.Awards[0], "Suppliers"); got != "Acme Ltd" {
		t.Errorf("Suppliers = %q", got)
	}
}

func TestExtract_UK6UsesAwardValue(t *testing.T) {
	rel := &ocds.Release{
		OCID: "ocds-h6vhtk-600",
		ID:   "600-000001",
		Date: "2025-04-10T00:00:00Z",
		Awards: []ocds.Award{
			{ID: "A1", Title: "First", Value: &ocds.Value{Amount: f64(45000), Currency: "GBP"},
				AboveThreshold: boolPtr(false), Documents: docs("UK6")},
			{ID: "A2", Title: "Second", Value: &ocds.Value{Amount: f64(9000), Currency: "GBP"},
				AboveThreshold: boolPtr(true)},
		},
	}

	res, err := Extract(rel, Input{Type: UK6, Date: rel.Date})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := getFloat(t, res.Notice, "Awarded Amount ex VAT"); got != 45000 {
		t.Errorf("Awarded Amount ex VAT = %v, want 45000", got)
	}
	// OR across the awards list: any above-threshold award flips the label.
	if got := getString(t, res.Notice, "Threshold"); got != "Above the relevant threshold" {
		t.Errorf("Threshold = %q", got)
	}
	if got := getString(t, res.Notice, "Days to Award"); got != "" {
		t.Errorf("Days to Award = %q, want empty string when dateSigned missing", got)
	}
	if len(res.Awards) != 2 {
		t.Errorf("got %d award records, want 2", len(res.Awards))
	}
}

func TestExtract_Termination(t *testing.T) {
	rel := &ocds.Release{
		OCID:   "ocds-h6vhtk-120",
		ID:     "120-000001",
		Date:   "2025-05-01T00:00:00Z",
		Tender: &ocds.Tender{ID: "REF-42", Title: "Cancelled works", Documents: docs("UK12")},
		Awards: []ocds.Award{{Status: "cancelled", StatusDetails: "Insufficient budget"}},
	}
	res, err := Extract(rel, Input{Type: UK12, Date: rel.Date})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := getString(t, res.Notice, "Cancellation Reason"); got != "Insufficient budget" {
		t.Errorf("Cancellation Reason = %q", got)
	}
	if got := getString(t, res.Notice, "Reference"); got != "REF-42" {
		t.Errorf("Reference = %q", got)
	}
	if len(res.Lots) != 0 {
		t.Errorf("termination produced %d lot records, want 0", len(res.Lots))
	}
}

func TestExtract_LotCriteriaRules(t *testing.T) {
	freeText := &ocds.Lot{AwardCriteria: &ocds.AwardCriteria{Description: "60% quality, 40% price"}}
	structured := &ocds.Lot{AwardCriteria: &ocds.AwardCriteria{Criteria: []ocds.Criterion{{Name: "Quality", Type: "quality"}}}}
	none := &ocds.Lot{}

	if got := lotCriteria(freeText); got != "60% quality, 40% price" {
		t.Errorf("free text criteria = %q", got)
	}
	if got := lotCriteria(structured); got != SentinelReferNotice {
		t.Errorf("structured criteria = %q, want %q", got, SentinelReferNotice)
	}
	if got := lotCriteria(none); got != NA {
		t.Errorf("absent criteria = %q, want %q", got, NA)
	}
}

func TestIsUpdateTag(t *testing.T) {
	tests := []struct {
		tags []string
		want bool
	}{
		{[]string{"tender"}, false},
		{[]string{"tenderUpdate"}, true},
		{[]string{"award", "UPDATE"}, true},
		{nil, false},
	}
	for _, tt := range tests {
		rel := &ocds.Release{Tags: tt.tags}
		if got := rel.IsUpdate(); got != tt.want {
			t.Errorf("IsUpdate(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}

func TestLotSumWarnings(t *testing.T) {
	rel := uk4Release(2) // lots 60000 + 60000 == total 120000
	if w := LotSumWarnings(rel, 0.01); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}

	rel.Tender.Value.Amount = f64(120000.005)
	if w := LotSumWarnings(rel, 0.01); len(w) != 0 {
		t.Errorf("within-epsilon mismatch warned: %v", w)
	}

	rel.Tender.Value.Amount = f64(130000)
	if w := LotSumWarnings(rel, 0.01); len(w) != 1 {
		t.Errorf("got %d warnings, want 1", len(w))
	}
}

func TestDaysToAward(t *testing.T) {
	if got := daysToAward("2025-04-10T12:00:00Z", "2025-04-01T00:00:00Z"); got != "9" {
		t.Errorf("daysToAward = %q, want 9", got)
	}
	if got := daysToAward("2025-04-10T00:00:00Z", "not-a-date"); got != "" {
		t.Errorf("daysToAward = %q, want empty string", got)
	}
	if got := daysToAward("", ""); got != "" {
		t.Errorf("daysToAward = %q, want empty string", got)
	}
}
