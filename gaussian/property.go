package gaussian

// PropertySet holds the raw per-point columns parsed out of a source file,
// keyed by field name and kept in declared order. It is the input to format
// detection and attribute decoding; values are stored as float64 regardless
// of the on-disk type.
type PropertySet struct {
	names []string
	cols  map[string][]float64
}

// NewPropertySet returns an empty property set.
func NewPropertySet() *PropertySet {
	return &PropertySet{cols: map[string][]float64{}}
}

// Add stores a column under the given field name, replacing any previous
// column of that name.
func (ps *PropertySet) Add(name string, col []float64) {
	if _, ok := ps.cols[name]; !ok {
		ps.names = append(ps.names, name)
	}
	ps.cols[name] = col
}

// Has reports whether a field of the given name is present.
func (ps *PropertySet) Has(name string) bool {
	_, ok := ps.cols[name]
	return ok
}

// Column returns the raw column stored under name, or nil if absent.
func (ps *PropertySet) Column(name string) []float64 {
	return ps.cols[name]
}

// Names returns the field names in declared order.
func (ps *PropertySet) Names() []string {
	out := make([]string, len(ps.names))
	copy(out, ps.names)
	return out
}

// Size returns the point count, taken from the first declared column.
func (ps *PropertySet) Size() int {
	if len(ps.names) == 0 {
		return 0
	}
	return len(ps.cols[ps.names[0]])
}
