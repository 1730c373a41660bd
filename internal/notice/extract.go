package notice

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/procurely/tendersync/internal/ocds"
)

// Sentinel strings that redirect readers of a notice row to a detail sheet
// or back to the published notice.
const (
	SentinelLotsCPV      = "See lots sheet for CPV codes"
	SentinelLotsCriteria = "Detailed in lots sheet"
	SentinelReferNotice  = "Refer to notice for detailed weightings"
)

// Input carries the per-release values the pipeline computes once before
// extraction.
type Input struct {
	Type     Type
	URL      string
	Date     string
	IsUpdate bool
}

// Result is the set of flat records one release produces: at most one
// notice record plus zero-or-more lot and award sub-records.
type Result struct {
	Type   Type
	Family Family
	Notice *Record
	Lots   []*Record
	Awards []*Record
}

// Extract maps a classified release to its family's flat records. Field
// access never fails on missing data (every chain bottoms out at NA, or
// false for suitability flags), so an error here means a genuinely
// unrecognized release shape.
func Extract(rel *ocds.Release, in Input) (Result, error) {
	res := Result{Type: in.Type, Family: in.Type.Family()}

	switch res.Family {
	case FamilyPlanning:
		res.Notice = extractPlanning(rel, in)
	case FamilyTender:
		res.Notice = extractTender(rel, in)
	case FamilyAward:
		res.Notice = extractAward(rel, in)
		res.Awards = extractAwardRecords(rel, in)
	case FamilyTermination:
		res.Notice = extractTermination(rel, in)
	default:
		return Result{}, fmt.Errorf("release %s: no extractor for notice type %q", rel.OCID, in.Type)
	}

	if res.Family != FamilyTermination {
		res.Lots = extractLots(rel, in)
	}
	return res, nil
}

// --- shared field helpers ---

func orNA(s string) string {
	if s == "" {
		return NA
	}
	return s
}

func amountOrNA(v *ocds.Value) any {
	if v == nil || v.Amount == nil {
		return NA
	}
	return *v.Amount
}

func amountGrossOrNA(v *ocds.Value) any {
	if v == nil || v.AmountGross == nil {
		return NA
	}
	return *v.AmountGross
}

func currencyOrNA(v *ocds.Value) string {
	if v == nil {
		return NA
	}
	return orNA(v.Currency)
}

func periodStart(p *ocds.Period) string {
	if p == nil {
		return NA
	}
	return orNA(p.StartDate)
}

func periodEnd(p *ocds.Period) string {
	if p == nil {
		return NA
	}
	return orNA(p.EndDate)
}

// thresholdLabel renders an aboveThreshold flag as the human label used on
// the published notice page.
func thresholdLabel(above *bool) string {
	if above == nil {
		return NA
	}
	if *above {
		return "Above the relevant threshold"
	}
	return "Below the relevant threshold"
}

// frameworkLabel maps techniques onto the notice page's commercial-tool
// wording.
func frameworkLabel(t *ocds.Techniques) string {
	if t == nil {
		return NA
	}
	switch {
	case t.Type == "open" || (t.FrameworkAgreement != nil && t.FrameworkAgreement.IsOpenFrameworkScheme):
		return "Establishes an open framework"
	case t.Type == "closed":
		return "Establishes a closed framework"
	case t.HasFrameworkAgreement:
		return "Establishes a framework"
	}
	return NA
}

func frameworkMethodLabel(t *ocds.Techniques) string {
	if t == nil || t.FrameworkAgreement == nil {
		return NA
	}
	switch t.FrameworkAgreement.Method {
	case "withReopeningCompetition":
		return "With reopening competition"
	case "withoutReopeningCompetition":
		return "Without reopening competition"
	case "withAndWithoutReopeningCompetition":
		return "With and without reopening competition"
	}
	return NA
}

// noticeCPV resolves the notice-level CPV column: the single code when the
// tender has at most one lot, otherwise a redirect to the lots sheet.
func noticeCPV(t *ocds.Tender) string {
	if t == nil {
		return NA
	}
	if len(t.Lots) > 1 {
		return SentinelLotsCPV
	}
	if len(t.Items) > 0 && len(t.Items[0].AdditionalClassifications) > 0 {
		return orNA(t.Items[0].AdditionalClassifications[0].ID)
	}
	return NA
}

// lotCPV finds the CPV code of the tender item referencing lotID.
func lotCPV(items []ocds.Item, lotID string) string {
	for _, it := range items {
		if it.RelatedLot != lotID {
			continue
		}
		if len(it.AdditionalClassifications) > 0 {
			return orNA(it.AdditionalClassifications[0].ID)
		}
	}
	return NA
}

// lotCriteria renders a lot's award criteria: the free-text description when
// the source provides one, a refer-to-notice sentinel when it is a
// structured list instead.
func lotCriteria(lot *ocds.Lot) string {
	if lot == nil || lot.AwardCriteria == nil {
		return NA
	}
	if lot.AwardCriteria.Description != "" {
		return lot.AwardCriteria.Description
	}
	if len(lot.AwardCriteria.Criteria) > 0 {
		return SentinelReferNotice
	}
	return NA
}

// noticeCriteria resolves the notice-level award-criteria column.
func noticeCriteria(t *ocds.Tender) string {
	if t == nil {
		return NA
	}
	if len(t.Lots) > 1 {
		return SentinelLotsCriteria
	}
	if len(t.Lots) == 1 {
		return lotCriteria(&t.Lots[0])
	}
	if t.AwardCriteria != nil && t.AwardCriteria.Description != "" {
		return t.AwardCriteria.Description
	}
	return NA
}

func firstLot(t *ocds.Tender) *ocds.Lot {
	if t == nil || len(t.Lots) == 0 {
		return nil
	}
	return &t.Lots[0]
}

func lotSME(lot *ocds.Lot) bool {
	return lot != nil && lot.Suitability != nil && lot.Suitability.SME
}

func lotVCSE(lot *ocds.Lot) bool {
	return lot != nil && lot.Suitability != nil && lot.Suitability.VCSE
}

// suitabilityLabel joins the SME/VCSE flags of a lot into the "Particular
// Suitability" display string.
func suitabilityLabel(lot *ocds.Lot) string {
	var tags []string
	if lotSME(lot) {
		tags = append(tags, "SME")
	}
	if lotVCSE(lot) {
		tags = append(tags, "VCSE")
	}
	if len(tags) == 0 {
		return NA
	}
	return strings.Join(tags, ", ")
}

func supplierNames(refs []ocds.OrgReference) string {
	names := make([]string, 0, len(refs))
	for _, s := range refs {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return NA
	}
	return strings.Join(names, ", ")
}

func buyerName(rel *ocds.Release) string {
	if rel.Buyer == nil {
		return NA
	}
	return orNA(rel.Buyer.Name)
}

// daysToAward computes floor((published − dateSigned) in whole days). Both
// dates must parse; otherwise it is an empty string, not NA. This mirrors
// the published data's own convention for the column.
func daysToAward(published, dateSigned string) string {
	pub, err1 := parseDate(published)
	signed, err2 := parseDate(dateSigned)
	if err1 != nil || err2 != nil {
		return ""
	}
	days := int(math.Floor(pub.Sub(signed).Hours() / 24))
	return fmt.Sprintf("%d", days)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// setCommon writes the identity columns every notice record starts with.
func setCommon(r *Record, rel *ocds.Release, in Input) {
	r.Set("OCID", orNA(rel.OCID))
	r.Set("Notice ID", orNA(rel.ID))
	r.Set("Notice Type", string(in.Type))
	r.Set("Published Date", orNA(in.Date))
	r.Set("Notice URL", orNA(in.URL))
	r.Set("Is Update", in.IsUpdate)
}
