package textextract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseFormat(t *testing.T) {
	t.Run("Known names, extensions and file names", func(t *testing.T) {
		cases := map[string]Format{
			"pdf":            FormatPDF,
			".DOCX":          FormatDOCX,
			"report.xlsx":    FormatXLSX,
			"claims.csv":     FormatCSV,
			"TXT":            FormatText,
			"notes.markdown": FormatMarkdown,
		}
		for in, want := range cases {
			got, err := ParseFormat(in)
			require.NoError(t, err, "Expected %q to parse", in)
			assert.Equal(t, want, got)
		}
	})

	t.Run("Unknown format is unsupported", func(t *testing.T) {
		_, err := ParseFormat("image.png")

		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestExtract(t *testing.T) {
	t.Run("Plain text is returned without byte order mark", func(t *testing.T) {
		text, err := Extract(FormatText, []byte("\ufeffClaims need a policy number."))

		require.NoError(t, err)
		assert.Equal(t, "Claims need a policy number.", text)
	})

	t.Run("Blank text is reported as no text", func(t *testing.T) {
		_, err := Extract(FormatText, []byte("  \n "))

		assert.ErrorIs(t, err, ErrNoText)
	})

	t.Run("Invalid utf-8 fails extraction", func(t *testing.T) {
		_, err := Extract(FormatText, []byte{0xff, 0xfe, 0xfd})

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoText)
	})

	t.Run("CSV rows are rendered with their headers", func(t *testing.T) {
		data := []byte("field,required\npolicy number,yes\nincident date,yes\n,\n")

		text, err := Extract(FormatCSV, data)

		require.NoError(t, err)
		assert.Equal(t, "field: policy number | required: yes\nfield: incident date | required: yes\n", text)
	})

	t.Run("XLSX sheets are rendered with their headers", func(t *testing.T) {
		f := excelize.NewFile()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"document", "deadline"}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"claim form", "30 days"}))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))
		require.NoError(t, f.Close())

		text, err := Extract(FormatXLSX, buf.Bytes())

		require.NoError(t, err)
		assert.Contains(t, text, "Sheet: Sheet1")
		assert.Contains(t, text, "document: claim form | deadline: 30 days")
	})

	t.Run("Garbage PDF fails extraction", func(t *testing.T) {
		_, err := Extract(FormatPDF, []byte("not a pdf"))

		assert.Error(t, err)
	})

	t.Run("Unknown format is unsupported", func(t *testing.T) {
		_, err := Extract(Format("png"), []byte("x"))

		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}
