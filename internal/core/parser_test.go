package core

import (
	"errors"
	"testing"
)

// ----------------------------------------------------------------------------
// Format Detection Tests
// ----------------------------------------------------------------------------

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     Format
		wantErr  bool
	}{
		{name: "declared csv wins", data: []byte("a,b\n1,2\n"), declared: "csv", want: FormatCSV},
		{name: "declared json wins", data: []byte(`[{"a":1}]`), declared: "json", want: FormatJSON},
		{name: "zip magic sniffs xlsx", data: []byte{0x50, 0x4b, 0x03, 0x04, 0x00}, want: FormatXLSX},
		{name: "leading bracket sniffs json", data: []byte("  [\n{\"a\": 1}\n]"), want: FormatJSON},
		{name: "delimited header sniffs csv", data: []byte("name;amount\nfoo;1\n"), want: FormatCSV},
		{name: "bom before json", data: append([]byte{0xef, 0xbb, 0xbf}, []byte(`[{"a":1}]`)...), want: FormatJSON},
		{name: "unknown declared fails", data: []byte("a,b\n"), declared: "xml", wantErr: true},
		{name: "binary garbage fails", data: []byte{0x00, 0x01, 0x02}, wantErr: true},
		{name: "prose without separators fails", data: []byte("just a sentence\n"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := detectFormat(tt.data, Format(tt.declared))
			if tt.wantErr {
				var formatErr *UnsupportedFormatError
				if !errors.As(err, &formatErr) {
					t.Fatalf("want UnsupportedFormatError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("detectFormat = %s, want %s", got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CSV Parsing Tests
// ----------------------------------------------------------------------------

func TestParseTableCSV(t *testing.T) {
	t.Run("comma separated", func(t *testing.T) {
		raw, format, err := ParseTable([]byte("unit_code,annual_rent\nA-101,1200\nA-102,1500\n"), "", "rents.csv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if format != FormatCSV {
			t.Errorf("format = %s, want csv", format)
		}
		if len(raw.Columns) != 2 || raw.Columns[0] != "unit_code" {
			t.Errorf("columns = %v", raw.Columns)
		}
		if len(raw.Rows) != 2 || raw.Rows[1][1] != "1500" {
			t.Errorf("rows = %v", raw.Rows)
		}
	})

	t.Run("semicolon separated", func(t *testing.T) {
		raw, _, err := ParseTable([]byte("unit;montant\nA-101;1 200,50\n"), "", "export.csv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(raw.Columns) != 2 || raw.Columns[1] != "montant" {
			t.Errorf("columns = %v", raw.Columns)
		}
		if raw.Rows[0][1] != "1 200,50" {
			t.Errorf("cell = %q", raw.Rows[0][1])
		}
	})

	t.Run("ragged rows are aligned", func(t *testing.T) {
		raw, _, err := ParseTable([]byte("a,b,c\n1,2\n1,2,3,4\n"), "csv", "ragged.csv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, row := range raw.Rows {
			if len(row) != 3 {
				t.Errorf("row %d width = %d, want 3", i, len(row))
			}
		}
		if raw.Rows[0][2] != "" {
			t.Errorf("short row not padded: %v", raw.Rows[0])
		}
	})

	t.Run("blank rows are dropped", func(t *testing.T) {
		raw, _, err := ParseTable([]byte("a,b\n1,2\n,\n3,4\n"), "csv", "blank.csv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(raw.Rows) != 2 {
			t.Errorf("rows = %d, want 2", len(raw.Rows))
		}
	})

	t.Run("header only is empty", func(t *testing.T) {
		_, _, err := ParseTable([]byte("a,b\n"), "csv", "empty.csv")
		var emptyErr *EmptyFileError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("want EmptyFileError, got %v", err)
		}
		if emptyErr.FileName != "empty.csv" {
			t.Errorf("file name = %q", emptyErr.FileName)
		}
	})
}

// ----------------------------------------------------------------------------
// JSON Parsing Tests
// ----------------------------------------------------------------------------

func TestParseTableJSON(t *testing.T) {
	t.Run("column order follows first object", func(t *testing.T) {
		data := []byte(`[
			{"zeta": "1", "alpha": "2", "mid": "3"},
			{"zeta": "4", "alpha": "5", "mid": "6"}
		]`)
		raw, format, err := ParseTable(data, "", "data.json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if format != FormatJSON {
			t.Errorf("format = %s", format)
		}
		want := []string{"zeta", "alpha", "mid"}
		for i, col := range want {
			if raw.Columns[i] != col {
				t.Fatalf("columns = %v, want %v", raw.Columns, want)
			}
		}
	})

	t.Run("later keys are appended", func(t *testing.T) {
		data := []byte(`[{"a": "1"}, {"a": "2", "b": "3"}]`)
		raw, _, err := ParseTable(data, "", "data.json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(raw.Columns) != 2 || raw.Columns[1] != "b" {
			t.Errorf("columns = %v", raw.Columns)
		}
		if raw.Rows[0][1] != "" {
			t.Errorf("missing cell should be empty, got %q", raw.Rows[0][1])
		}
	})

	t.Run("numbers keep their text form", func(t *testing.T) {
		data := []byte(`[{"amount": 1234.50, "count": 7}]`)
		raw, _, err := ParseTable(data, "json", "data.json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raw.Rows[0][0] != "1234.50" {
			t.Errorf("amount = %q, want 1234.50", raw.Rows[0][0])
		}
		if raw.Rows[0][1] != "7" {
			t.Errorf("count = %q, want 7", raw.Rows[0][1])
		}
	})

	t.Run("not an array fails", func(t *testing.T) {
		_, _, err := ParseTable([]byte(`{"a": 1}`), "json", "data.json")
		var formatErr *UnsupportedFormatError
		if !errors.As(err, &formatErr) {
			t.Fatalf("want UnsupportedFormatError, got %v", err)
		}
	})

	t.Run("empty array is empty file", func(t *testing.T) {
		_, _, err := ParseTable([]byte(`[]`), "json", "data.json")
		var emptyErr *EmptyFileError
		if !errors.As(err, &emptyErr) {
			t.Fatalf("want EmptyFileError, got %v", err)
		}
	})
}

// ----------------------------------------------------------------------------
// Sanitization Tests
// ----------------------------------------------------------------------------

func TestSanitizeUTF8(t *testing.T) {
	t.Run("valid input untouched", func(t *testing.T) {
		in := []byte("héllo, wörld")
		if got := string(sanitizeUTF8(in)); got != string(in) {
			t.Errorf("got %q", got)
		}
	})

	t.Run("invalid bytes replaced", func(t *testing.T) {
		in := []byte{'a', 0xff, 'b'}
		got := string(sanitizeUTF8(in))
		if got != "a�b" {
			t.Errorf("got %q", got)
		}
	})
}

func TestCleanHeaderStripsArtifacts(t *testing.T) {
	raw, _, err := ParseTable([]byte("=\"unit_code\", \"rent\" \nA,1\n"), "csv", "f.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Columns[0] != "unit_code" || raw.Columns[1] != "rent" {
		t.Errorf("columns = %v", raw.Columns)
	}
}
