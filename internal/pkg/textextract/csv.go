package textextract

import (
	"bytes"
	"encoding/csv"
	"strings"
)

func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	var out strings.Builder
	writeRows(&out, records[0], records[1:])
	return out.String(), nil
}
