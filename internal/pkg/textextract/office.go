package textextract

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var (
	docxBreak = regexp.MustCompile(`</w:p>|<w:br[^>]*/>|<w:tab[^>]*/>`)
	xmlTag    = regexp.MustCompile(`<[^>]+>`)
)

func extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	body := r.Editable().GetContent()
	body = docxBreak.ReplaceAllStringFunc(body, func(m string) string {
		if strings.HasPrefix(m, "<w:tab") {
			return "\t"
		}
		return "\n"
	})
	body = xmlTag.ReplaceAllString(body, "")
	return html.UnescapeString(body), nil
}

// extractXLSX renders every sheet row as "header: value | header: value".
func extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			continue
		}
		out.WriteString("Sheet: " + sheet + "\n")
		writeRows(&out, rows[0], rows[1:])
		out.WriteString("\n")
	}
	return out.String(), nil
}

func writeRows(out *strings.Builder, header []string, rows [][]string) {
	for _, row := range rows {
		var cells []string
		for i, value := range row {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			name := ""
			if i < len(header) {
				name = strings.TrimSpace(header[i])
			}
			if name == "" {
				cells = append(cells, value)
			} else {
				cells = append(cells, name+": "+value)
			}
		}
		if len(cells) > 0 {
			out.WriteString(strings.Join(cells, " | "))
			out.WriteString("\n")
		}
	}
}
