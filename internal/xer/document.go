package xer

// Record is one data line of a table. It carries the field list that was
// declared when the line was read, so values are always resolved by name.
type Record struct {
	Line   int      // 1-based line number in the source file
	Fields []string // field declaration in effect for this record
	Values []string // raw values in file order
}

// Get returns the raw value for a field.
// Returns false if the field is not declared or the record is too short to hold it.
func (r Record) Get(field string) (string, bool) {
	for i, f := range r.Fields {
		if f != field {
			continue
		}
		if i >= len(r.Values) {
			return "", false
		}
		return r.Values[i], true
	}
	return "", false
}

// Map returns the record as field name -> raw value.
// Fields with no value are left out; values with no field are ignored.
// The first declaration of a repeated field name wins.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for i, f := range r.Fields {
		if i >= len(r.Values) {
			break
		}
		if _, dup := m[f]; dup {
			continue
		}
		m[f] = r.Values[i]
	}
	return m
}

// Table is one logical table found in an export file.
type Table struct {
	Name    string
	Fields  []string // last field declaration seen for this table
	Records []Record
}

// Document is the parse result of one export file.
// Tables keep the order in which their names first appeared.
type Document struct {
	Tables []*Table
	index  map[string]*Table
}

func newDocument() *Document {
	return &Document{index: make(map[string]*Table)}
}

// Table returns the table with the given name (case-sensitive).
func (d *Document) Table(name string) (*Table, bool) {
	t, ok := d.index[name]
	return t, ok
}

// Names returns table names in first-appearance order.
func (d *Document) Names() []string {
	names := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		names[i] = t.Name
	}
	return names
}

// RecordCount returns the number of records across all tables.
func (d *Document) RecordCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Records)
	}
	return n
}

// startTable opens (or reopens) a table. Reopening resets its fields and
// records but keeps its original position.
func (d *Document) startTable(name string) *Table {
	if t, ok := d.index[name]; ok {
		t.Fields = nil
		t.Records = nil
		return t
	}
	t := &Table{Name: name}
	d.index[name] = t
	d.Tables = append(d.Tables, t)
	return t
}
