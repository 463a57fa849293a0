package core

import (
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/xerimport/internal/xer"
)

func TestSanitizeFields(t *testing.T) {
	long := strings.Repeat("x", maxIdentifierLen+1)
	edge := strings.Repeat("y", maxIdentifierLen)

	tests := []struct {
		name         string
		in           []string
		wantKept     []string
		wantRejected []string
	}{
		{"plain", []string{"a", "b"}, []string{"a", "b"}, nil},
		{"duplicates keep first position", []string{"a", "b", "a"}, []string{"a", "b"}, nil},
		{"case variants are distinct", []string{"Name", "name"}, []string{"Name", "name"}, nil},
		{"reserved back-reference", []string{"a", BackRefColumn}, []string{"a"}, []string{BackRefColumn}},
		{"empty name", []string{"", "a"}, []string{"a"}, []string{""}},
		{"NUL byte", []string{"a\x00b", "c"}, []string{"c"}, []string{"a\x00b"}},
		{"identifier limit", []string{edge, long}, []string{edge}, []string{long}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, rejected := sanitizeFields(tt.in)
			if !reflect.DeepEqual(kept, tt.wantKept) {
				t.Errorf("kept = %v, want %v", kept, tt.wantKept)
			}
			if !reflect.DeepEqual(rejected, tt.wantRejected) {
				t.Errorf("rejected = %v, want %v", rejected, tt.wantRejected)
			}
		})
	}
}

func TestMissingColumns(t *testing.T) {
	tests := []struct {
		name     string
		declared []string
		existing []string
		want     []string
	}{
		{"nothing new", []string{"a", "b"}, []string{"a", "b", BackRefColumn}, nil},
		{"declared order kept", []string{"z", "a", "m"}, []string{"a"}, []string{"z", "m"}},
		{"subset declared", []string{"a"}, []string{"a", "b"}, nil},
		{"case-sensitive", []string{"Name"}, []string{"name"}, []string{"Name"}},
		{"repeats collapse", []string{"n", "n"}, nil, []string{"n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := missingColumns(tt.declared, tt.existing); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("missingColumns = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeclaredFields(t *testing.T) {
	p := xer.NewParser(xer.DefaultMarkers(), nil)

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "single declaration",
			content: "%T\tTASK\n%F\ta\tb\n%R\t1\t2\n%R\t3\t4\n",
			want:    []string{"a", "b"},
		},
		{
			name:    "redeclared after records keeps earlier fields",
			content: "%T\tTASK\n%F\ta\told\n%R\t1\tx\n%F\ta\tnew\n%R\t2\ty\n",
			want:    []string{"a", "new", "old"},
		},
		{
			name:    "redeclared before any record",
			content: "%T\tTASK\n%F\ta\told\n%F\tb\n%R\t1\n",
			want:    []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := p.ParseString(tt.content)
			tbl, ok := doc.Table("TASK")
			if !ok {
				t.Fatal("TASK not parsed")
			}
			if got := declaredFields(tbl); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("declaredFields = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeclaredFields_RedeclaredValuesAreStorable(t *testing.T) {
	p := xer.NewParser(xer.DefaultMarkers(), nil)
	tbl, _ := p.ParseString("%T\tTASK\n%F\tid\told\n%R\t1\tx\n%F\tid\tnew\n%R\t2\ty\n").Table("TASK")

	fields, _ := sanitizeFields(declaredFields(tbl))
	set := planRows(fields, tbl.Records)

	if len(set.dropped) != 0 {
		t.Errorf("dropped = %v, want none", set.dropped)
	}
	if len(set.plans) != 2 || !reflect.DeepEqual(set.plans[0].values, []any{"1", "x"}) {
		t.Errorf("plans = %+v", set.plans)
	}
}
