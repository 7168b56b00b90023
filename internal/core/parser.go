package core

// parser.go turns raw file bytes into a RawTable: ordered column names
// plus positionally aligned rows. Supported formats are spreadsheet
// workbooks (xlsx), delimited text (csv), and JSON arrays of objects.
// The parser is a pure transform: it never touches storage.

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Format identifies a supported input format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// xlsxSignature is the ZIP local-file-header magic every xlsx starts with.
var xlsxSignature = []byte{0x50, 0x4b, 0x03, 0x04}

// ParseTable parses file bytes into a RawTable and reports the effective
// format. When declared is empty the format is sniffed from the byte
// signature. The first row of tabular input becomes Columns; missing
// trailing cells are padded with empty strings and extra cells are
// dropped.
func ParseTable(data []byte, declared string, fileName string) (*RawTable, Format, error) {
	format, err := detectFormat(data, Format(declared))
	if err != nil {
		return nil, "", err
	}

	var table *RawTable
	switch format {
	case FormatXLSX:
		table, err = parseWorkbook(data)
	case FormatJSON:
		table, err = parseJSONArray(data)
	default:
		table, err = parseDelimited(data)
	}
	if err != nil {
		return nil, "", err
	}

	if len(table.Rows) == 0 {
		return nil, "", &EmptyFileError{FileName: fileName}
	}

	alignRows(table)
	return table, format, nil
}

// detectFormat resolves the effective format from the declared one or the
// byte signature.
func detectFormat(data []byte, declared Format) (Format, error) {
	switch declared {
	case FormatCSV, FormatXLSX, FormatJSON:
		return declared, nil
	case "":
		// Sniff below.
	default:
		return "", &UnsupportedFormatError{Declared: string(declared)}
	}

	if bytes.HasPrefix(data, xlsxSignature) {
		return FormatXLSX, nil
	}

	trimmed := bytes.TrimLeft(stripBOM(data), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return FormatJSON, nil
	}

	if looksDelimited(trimmed) {
		return FormatCSV, nil
	}

	return "", &UnsupportedFormatError{}
}

// looksDelimited accepts text whose first line carries at least one field
// separator and no control bytes.
func looksDelimited(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	for _, b := range line {
		if b < 0x09 || (b > 0x0d && b < 0x20) {
			return false
		}
	}
	return bytes.ContainsAny(line, ",;\t")
}

func parseDelimited(data []byte) (*RawTable, error) {
	data = sanitizeUTF8(stripBOM(data))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if guessSeparator(data) == ';' {
		r.Comma = ';'
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, &UnsupportedFormatError{Declared: string(FormatCSV)}
	}
	if len(records) == 0 {
		return &RawTable{}, nil
	}

	table := &RawTable{Columns: cleanHeader(records[0])}
	for _, row := range records[1:] {
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// guessSeparator picks ';' over ',' when the header row favors it,
// which European property-management exports frequently do.
func guessSeparator(data []byte) byte {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func parseWorkbook(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &UnsupportedFormatError{Declared: string(FormatXLSX)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &RawTable{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &UnsupportedFormatError{Declared: string(FormatXLSX)}
	}
	if len(rows) == 0 {
		return &RawTable{}, nil
	}

	table := &RawTable{Columns: cleanHeader(rows[0])}
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// parseJSONArray reads an array of flat objects. Column order follows
// first appearance across the array so the output is deterministic.
func parseJSONArray(data []byte) (*RawTable, error) {
	dec := json.NewDecoder(bytes.NewReader(stripBOM(data)))
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, &UnsupportedFormatError{Declared: string(FormatJSON)}
	}

	// Decoded maps lose key order, so take column order from the first
	// object's raw text and append any keys later objects introduce.
	table := &RawTable{}
	if cols, ok := orderedKeys(data); ok {
		table.Columns = cols
	}
	seen := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		seen[c] = true
	}
	for _, obj := range objects {
		extra := make([]string, 0)
		for key := range obj {
			if !seen[key] {
				seen[key] = true
				extra = append(extra, key)
			}
		}
		sort.Strings(extra)
		table.Columns = append(table.Columns, extra...)
	}

	for _, obj := range objects {
		row := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			row[i] = jsonCellString(obj[col])
		}
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// orderedKeys extracts the first object's key order from the raw JSON.
func orderedKeys(data []byte) ([]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(stripBOM(data)))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil, false
	}
	if !dec.More() {
		return nil, false
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, false
		}
	}
	return keys, true
}

func jsonCellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// alignRows pads missing trailing cells with empty strings and drops
// extra cells beyond the header width.
func alignRows(table *RawTable) {
	width := len(table.Columns)
	for i, row := range table.Rows {
		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			table.Rows[i] = padded
		case len(row) > width:
			table.Rows[i] = row[:width]
		}
	}
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = CleanCell(h)
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})
}

// sanitizeUTF8 replaces invalid byte sequences with the replacement rune
// so downstream string handling stays well-formed.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
