package notice

import "strings"

// fieldsChangedKey names the tracking column the reconciler owns; it is
// excluded from value comparison.
const fieldsChangedKey = "Fields Changed"

// Reconciler merges successive releases sharing an OCID into one working
// record per procurement. Releases must be applied in publication-date
// order.
type Reconciler struct {
	records map[string]*Record
	order   []string
}

func NewReconciler() *Reconciler {
	return &Reconciler{records: make(map[string]*Record)}
}

// Apply folds a candidate record into the working record for ocid.
//
// The first record for an OCID is taken as-is. A later record tagged as an
// update overwrites every field present in both records whose candidate
// value is non-sentinel and differs, and rewrites "Fields Changed" with the
// keys it touched. Reapplying an identical update changes nothing, so the
// change set survives reprocessing intact. A later non-update record is a
// fresh snapshot and replaces the working record wholesale.
func (rc *Reconciler) Apply(ocid string, cand *Record, isUpdate bool) {
	if cand == nil {
		return
	}

	existing, ok := rc.records[ocid]
	if !ok {
		rc.records[ocid] = cand.Clone()
		rc.order = append(rc.order, ocid)
		return
	}

	if !isUpdate {
		rc.records[ocid] = cand.Clone()
		return
	}

	var changed []string
	for _, key := range cand.Keys() {
		if key == fieldsChangedKey {
			continue
		}
		cv, _ := cand.Get(key)
		ev, present := existing.Get(key)
		if !present || isSentinel(cv) || cv == ev {
			continue
		}
		existing.Set(key, cv)
		changed = append(changed, key)
	}
	if len(changed) > 0 {
		existing.Set(fieldsChangedKey, strings.Join(changed, ", "))
	}
}

// Records returns the working records in first-seen OCID order.
func (rc *Reconciler) Records() []*Record {
	out := make([]*Record, 0, len(rc.order))
	for _, ocid := range rc.order {
		out = append(out, rc.records[ocid])
	}
	return out
}

// Record returns the working record for one OCID, or nil.
func (rc *Reconciler) Record(ocid string) *Record {
	return rc.records[ocid]
}
