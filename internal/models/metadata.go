package models

// MetaValue is one metadata entry. Text is always set for entries read from a
// header; Matrix is set for entries the loader already parsed into rows.
type MetaValue struct {
	Text   string
	Matrix [][]float64
}

// Metadata is an insertion-ordered key/value dictionary attached to a volume
type Metadata struct {
	keys   []string
	values map[string]MetaValue
}

// NewMetadata creates an empty dictionary
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]MetaValue)}
}

// Set stores a value. Re-setting an existing key keeps its original position.
func (m *Metadata) Set(key string, value MetaValue) {
	if m.values == nil {
		m.values = make(map[string]MetaValue)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// SetText stores a plain string value
func (m *Metadata) SetText(key, text string) {
	m.Set(key, MetaValue{Text: text})
}

// Get returns the value stored under key
func (m *Metadata) Get(key string) (MetaValue, bool) {
	if m == nil {
		return MetaValue{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present
func (m *Metadata) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a deep copy
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		v := m.values[k]
		cv := MetaValue{Text: v.Text}
		if v.Matrix != nil {
			cv.Matrix = make([][]float64, len(v.Matrix))
			for i, row := range v.Matrix {
				cv.Matrix[i] = append([]float64(nil), row...)
			}
		}
		c.Set(k, cv)
	}
	return c
}
