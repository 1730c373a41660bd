// Package ocds models the subset of the Open Contracting Data Standard
// (plus UK Find a Tender extensions) that the extraction pipeline reads.
package ocds

import "strings"

// Release is one OCDS snapshot of a procurement process. Optional nested
// sections are pointers so absent JSON keys stay distinguishable from
// zero values.
type Release struct {
	OCID           string         `json:"ocid"`
	ID             string         `json:"id"`
	Date           string         `json:"date"`
	Tags           []string       `json:"tag"`
	InitiationType string         `json:"initiationType,omitempty"`
	Planning       *Planning      `json:"planning,omitempty"`
	Tender         *Tender        `json:"tender,omitempty"`
	Awards         []Award        `json:"awards,omitempty"`
	Contracts      []Contract     `json:"contracts,omitempty"`
	Parties        []Organization `json:"parties,omitempty"`
	Buyer          *OrgReference  `json:"buyer,omitempty"`
}

// IsUpdate reports whether any release tag contains "update",
// case-insensitively ("tenderUpdate", "awardUpdate", ...).
func (r *Release) IsUpdate() bool {
	for _, t := range r.Tags {
		if strings.Contains(strings.ToLower(t), "update") {
			return true
		}
	}
	return false
}

// BuyerID returns the buyer's organization id, or "" if no buyer reference
// is present.
func (r *Release) BuyerID() string {
	if r.Buyer == nil {
		return ""
	}
	return r.Buyer.ID
}

type Planning struct {
	Budget    *Budget    `json:"budget,omitempty"`
	Rationale string     `json:"rationale,omitempty"`
	Documents []Document `json:"documents,omitempty"`
}

type Budget struct {
	Amount      *Value `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
}

type Tender struct {
	ID                       string        `json:"id,omitempty"`
	Title                    string        `json:"title,omitempty"`
	Description              string        `json:"description,omitempty"`
	Status                   string        `json:"status,omitempty"`
	Value                    *Value        `json:"value,omitempty"`
	AboveThreshold           *bool         `json:"aboveThreshold,omitempty"`
	ProcurementMethod        string        `json:"procurementMethod,omitempty"`
	ProcurementMethodDetails string        `json:"procurementMethodDetails,omitempty"`
	MainProcurementCategory  string        `json:"mainProcurementCategory,omitempty"`
	SubmissionMethodDetails  string        `json:"submissionMethodDetails,omitempty"`
	ContractPeriod           *Period       `json:"contractPeriod,omitempty"`
	TenderPeriod             *Period       `json:"tenderPeriod,omitempty"`
	EnquiryPeriod            *Period       `json:"enquiryPeriod,omitempty"`
	Items                    []Item        `json:"items,omitempty"`
	Lots                     []Lot         `json:"lots,omitempty"`
	Documents                []Document    `json:"documents,omitempty"`
	Techniques               *Techniques   `json:"techniques,omitempty"`
	Renewal                  *Description  `json:"renewal,omitempty"`
	Options                  *Description  `json:"options,omitempty"`
	AwardCriteria            *AwardCriteria `json:"awardCriteria,omitempty"`
}

// Description holds sections whose only read field is a free-text
// description (tender.renewal, tender.options).
type Description struct {
	Description string `json:"description,omitempty"`
}

type Lot struct {
	ID             string         `json:"id,omitempty"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	Status         string         `json:"status,omitempty"`
	Value          *Value         `json:"value,omitempty"`
	AboveThreshold *bool          `json:"aboveThreshold,omitempty"`
	ContractPeriod *Period        `json:"contractPeriod,omitempty"`
	Suitability    *Suitability   `json:"suitability,omitempty"`
	AwardCriteria  *AwardCriteria `json:"awardCriteria,omitempty"`
}

// Suitability carries the UK participation flags.
type Suitability struct {
	SME  bool `json:"sme,omitempty"`
	VCSE bool `json:"vcse,omitempty"`
}

type AwardCriteria struct {
	Description string      `json:"description,omitempty"`
	Criteria    []Criterion `json:"criteria,omitempty"`
}

type Criterion struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Type        string            `json:"type,omitempty"`
	Numbers     []CriterionNumber `json:"numbers,omitempty"`
}

type CriterionNumber struct {
	Number  *float64 `json:"number,omitempty"`
	Weight  string   `json:"weight,omitempty"`
	Measure string   `json:"measure,omitempty"`
}

// Techniques describes framework-agreement usage on a tender.
type Techniques struct {
	HasFrameworkAgreement bool                `json:"hasFrameworkAgreement,omitempty"`
	Type                  string              `json:"type,omitempty"`
	FrameworkAgreement    *FrameworkAgreement `json:"frameworkAgreement,omitempty"`
}

type FrameworkAgreement struct {
	Method                string `json:"method,omitempty"`
	IsOpenFrameworkScheme bool   `json:"isOpenFrameworkScheme,omitempty"`
	PeriodRationale       string `json:"periodRationale,omitempty"`
}

type Award struct {
	ID                      string         `json:"id,omitempty"`
	Title                   string         `json:"title,omitempty"`
	Description             string         `json:"description,omitempty"`
	Status                  string         `json:"status,omitempty"`
	StatusDetails           string         `json:"statusDetails,omitempty"`
	Date                    string         `json:"date,omitempty"`
	Value                   *Value         `json:"value,omitempty"`
	AboveThreshold          *bool          `json:"aboveThreshold,omitempty"`
	MainProcurementCategory string         `json:"mainProcurementCategory,omitempty"`
	Suppliers               []OrgReference `json:"suppliers,omitempty"`
	ContractPeriod          *Period        `json:"contractPeriod,omitempty"`
	Items                   []Item         `json:"items,omitempty"`
	Documents               []Document     `json:"documents,omitempty"`
}

type Contract struct {
	ID             string     `json:"id,omitempty"`
	AwardID        string     `json:"awardID,omitempty"`
	Title          string     `json:"title,omitempty"`
	Status         string     `json:"status,omitempty"`
	Value          *Value     `json:"value,omitempty"`
	AboveThreshold *bool      `json:"aboveThreshold,omitempty"`
	Period         *Period    `json:"period,omitempty"`
	DateSigned     string     `json:"dateSigned,omitempty"`
	Documents      []Document `json:"documents,omitempty"`
}

type Value struct {
	Amount      *float64 `json:"amount,omitempty"`
	AmountGross *float64 `json:"amountGross,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

type Period struct {
	StartDate      string `json:"startDate,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	DurationInDays *int   `json:"durationInDays,omitempty"`
}

type Item struct {
	ID                        string           `json:"id,omitempty"`
	Description               string           `json:"description,omitempty"`
	RelatedLot                string           `json:"relatedLot,omitempty"`
	Classification            *Classification  `json:"classification,omitempty"`
	AdditionalClassifications []Classification `json:"additionalClassifications,omitempty"`
}

type Classification struct {
	Scheme      string `json:"scheme,omitempty"`
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Document is a notice document. NoticeType carries the UK classification
// code (UK1..UK13) layered on OCDS by Find a Tender.
type Document struct {
	ID            string `json:"id,omitempty"`
	DocumentType  string `json:"documentType,omitempty"`
	NoticeType    string `json:"noticeType,omitempty"`
	URL           string `json:"url,omitempty"`
	DatePublished string `json:"datePublished,omitempty"`
}

type Organization struct {
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Identifier   *Identifier   `json:"identifier,omitempty"`
	Address      *Address      `json:"address,omitempty"`
	ContactPoint *ContactPoint `json:"contactPoint,omitempty"`
	Roles        []string      `json:"roles,omitempty"`
}

type Identifier struct {
	Scheme    string `json:"scheme,omitempty"`
	ID        string `json:"id,omitempty"`
	LegalName string `json:"legalName,omitempty"`
}

type Address struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	CountryName   string `json:"countryName,omitempty"`
}

type ContactPoint struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Telephone string `json:"telephone,omitempty"`
	URL       string `json:"url,omitempty"`
}

type OrgReference struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}
