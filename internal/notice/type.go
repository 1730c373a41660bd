package notice

import "github.com/procurely/tendersync/internal/ocds"

// Type is the UK notice classification code carried on Find a Tender
// notice documents.
type Type string

const (
	Unclassified Type = ""

	UK1 Type = "UK1" // pipeline notice
	UK2 Type = "UK2" // preliminary market engagement
	UK3 Type = "UK3" // planned procurement
	UK4 Type = "UK4" // tender (open procedure)

	UK5 Type = "UK5" // transparency (direct award)
	UK6 Type = "UK6" // contract award
	UK7 Type = "UK7" // contract details (post-signature)

	UK12 Type = "UK12" // procurement termination
	UK13 Type = "UK13" // tender (other variant)
)

// Family groups notice types by the extractor that handles them.
type Family string

const (
	FamilyUnknown     Family = ""
	FamilyPlanning    Family = "planning"
	FamilyTender      Family = "tender"
	FamilyAward       Family = "award"
	FamilyTermination Family = "termination"
)

var families = map[Type]Family{
	UK1:  FamilyPlanning,
	UK2:  FamilyPlanning,
	UK3:  FamilyPlanning,
	UK4:  FamilyTender,
	UK13: FamilyTender,
	UK5:  FamilyAward,
	UK6:  FamilyAward,
	UK7:  FamilyAward,
	UK12: FamilyTermination,
}

// Family returns the extractor family for t, or FamilyUnknown for
// unrecognized codes.
func (t Type) Family() Family {
	return families[t]
}

func parseType(code string) (Type, bool) {
	t := Type(code)
	_, ok := families[t]
	return t, ok
}

// Classify determines the notice type of a release from its documents.
//
// Candidate document lists are searched in strict priority order,
// contracts[0], awards[0], tender, planning, and the first non-empty list
// wins (lists are never merged). The last document in that list is
// authoritative: the feed appends amendment documents, so the newest entry
// carries the current classification. When the first award is cancelled the
// feed files the cancellation notice under the tender section, so
// classification re-reads tender.documents in that case.
//
// A release with no documents in any section, or whose code is not a
// recognized UK type, is Unclassified and must be skipped by callers.
func Classify(rel *ocds.Release) Type {
	docs := candidateDocuments(rel)

	if len(rel.Awards) > 0 && rel.Awards[0].Status == "cancelled" {
		if rel.Tender != nil {
			docs = rel.Tender.Documents
		} else {
			docs = nil
		}
	}

	if len(docs) == 0 {
		return Unclassified
	}
	if t, ok := parseType(docs[len(docs)-1].NoticeType); ok {
		return t
	}
	return Unclassified
}

func candidateDocuments(rel *ocds.Release) []ocds.Document {
	if len(rel.Contracts) > 0 && len(rel.Contracts[0].Documents) > 0 {
		return rel.Contracts[0].Documents
	}
	if len(rel.Awards) > 0 && len(rel.Awards[0].Documents) > 0 {
		return rel.Awards[0].Documents
	}
	if rel.Tender != nil && len(rel.Tender.Documents) > 0 {
		return rel.Tender.Documents
	}
	if rel.Planning != nil && len(rel.Planning.Documents) > 0 {
		return rel.Planning.Documents
	}
	return nil
}
