package notice

// NA is the explicit sentinel written for any source path that is missing
// or empty, so column sets stay stable across records of one notice type.
const NA = "N/A"

// Record is a flat field→value mapping with stable insertion order; the
// order defines the sink's column layout.
type Record struct {
	keys []string
	vals map[string]any
}

func NewRecord() *Record {
	return &Record{vals: make(map[string]any)}
}

// Set stores a value under key, appending the key to the column order on
// first use.
func (r *Record) Set(key string, v any) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

func (r *Record) Get(key string) (any, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Keys returns the column order. The returned slice is shared; callers must
// not mutate it.
func (r *Record) Keys() []string {
	return r.keys
}

// Row returns values aligned to header; columns the record does not carry
// come back as NA.
func (r *Record) Row(header []string) []any {
	row := make([]any, len(header))
	for i, k := range header {
		if v, ok := r.vals[k]; ok {
			row[i] = v
		} else {
			row[i] = NA
		}
	}
	return row
}

// Clone returns a deep copy (values are scalars, so shallow map copy is deep
// enough).
func (r *Record) Clone() *Record {
	c := &Record{
		keys: append([]string(nil), r.keys...),
		vals: make(map[string]any, len(r.vals)),
	}
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// isSentinel reports whether v is one of the fallback defaults: the NA
// string, an empty string, or a false suitability flag.
func isSentinel(v any) bool {
	switch x := v.(type) {
	case string:
		return x == NA || x == ""
	case bool:
		return !x
	case nil:
		return true
	}
	return false
}
