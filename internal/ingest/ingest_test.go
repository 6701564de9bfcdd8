package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

// minimalPDF assembles a one-page PDF with a correct cross-reference table.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func minimalDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestMediaTypeFor(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		expected  string
		expectErr bool
	}{
		{"pdf", "resume.pdf", types.MediaTypePDF, false},
		{"uppercase pdf", "RESUME.PDF", types.MediaTypePDF, false},
		{"docx", "resume.docx", types.MediaTypeDOCX, false},
		{"legacy doc rejected", "resume.doc", "", true},
		{"text rejected", "resume.txt", "", true},
		{"no extension", "resume", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MediaTypeFor(tt.filename)
			if tt.expectErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindIngestionFailed, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIngestFile_PDF(t *testing.T) {
	data := minimalPDF("Jane Doe")
	path := writeFixture(t, "resume.pdf", data)

	doc, err := New(0, nil).IngestFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "resume.pdf", doc.Name)
	assert.Equal(t, types.MediaTypePDF, doc.MediaType)
	assert.Equal(t, len(data), doc.Size)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), doc.Data)
	assert.Equal(t, 1, doc.PageCount)

	raw, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}

func TestIngest_DOCX(t *testing.T) {
	data := minimalDOCX(t, "Jane Doe")

	doc, err := New(0, nil).Ingest(context.Background(), "cv.docx", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, types.MediaTypeDOCX, doc.MediaType)
	assert.Zero(t, doc.PageCount)
}

func TestIngest_Failures(t *testing.T) {
	ctx := context.Background()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		filename string
		data     []byte
		maxSize  int64
		code     string
	}{
		{"unsupported extension", ctx, "resume.png", []byte("png"), 0, errors.ErrCodeUnsupportedMediaType},
		{"pdf extension with zip content", ctx, "resume.pdf", minimalDOCX(t, "x"), 0, errors.ErrCodeUnsupportedMediaType},
		{"docx extension with text content", ctx, "resume.docx", []byte("plain text"), 0, errors.ErrCodeUnsupportedMediaType},
		{"empty document", ctx, "resume.pdf", nil, 0, errors.ErrCodeIngestionFailed},
		{"too large", ctx, "resume.pdf", minimalPDF("x"), 16, errors.ErrCodeFileTooLarge},
		{"cancelled", cancelled, "resume.pdf", minimalPDF("x"), 0, errors.ErrCodeIngestionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := New(tt.maxSize, nil).Ingest(tt.ctx, tt.filename, bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.Equal(t, types.Document{}, doc, "no partial payload on failure")
			assert.Equal(t, errors.KindIngestionFailed, errors.KindOf(err))
			assert.True(t, errors.HasCode(err, tt.code), "expected code %s, got %v", tt.code, err)
		})
	}
}

func TestIngestFile_Missing(t *testing.T) {
	_, err := New(0, nil).IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotReadable))
}

func TestExtractText_DOCX(t *testing.T) {
	data := minimalDOCX(t, "Jane Doe", "  ", "Senior Engineer")
	doc := types.Document{
		Name:      "cv.docx",
		MediaType: types.MediaTypeDOCX,
		Data:      base64.StdEncoding.EncodeToString(data),
	}

	text, err := ExtractText(doc)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nSenior Engineer", text)
}

func TestExtractText_Errors(t *testing.T) {
	_, err := ExtractText(types.Document{Name: "x.docx", MediaType: types.MediaTypeDOCX, Data: "!!!"})
	assert.Equal(t, errors.KindIngestionFailed, errors.KindOf(err))

	notZip := base64.StdEncoding.EncodeToString([]byte("not a zip"))
	_, err = ExtractText(types.Document{Name: "x.docx", MediaType: types.MediaTypeDOCX, Data: notZip})
	assert.True(t, errors.HasCode(err, errors.ErrCodeIngestionFailed))

	_, err = ExtractText(types.Document{Name: "x.rtf", MediaType: "application/rtf", Data: notZip})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnsupportedMediaType))
}

func TestDOCXBodySizeLimit(t *testing.T) {
	saved := maxDocumentXML
	maxDocumentXML = 4 << 10
	t.Cleanup(func() { maxDocumentXML = saved })

	// ~64 KiB of repeated text compresses to a few hundred bytes
	bomb := minimalDOCX(t, strings.Repeat("A", 64<<10))
	require.Less(t, len(bomb), 4<<10)

	t.Run("extract", func(t *testing.T) {
		_, err := ExtractText(types.Document{
			Name:      "cv.docx",
			MediaType: types.MediaTypeDOCX,
			Data:      base64.StdEncoding.EncodeToString(bomb),
		})
		require.Error(t, err)
		assert.Equal(t, errors.KindIngestionFailed, errors.KindOf(err))
		assert.True(t, errors.HasCode(err, errors.ErrCodeFileTooLarge))
	})

	t.Run("ingest", func(t *testing.T) {
		_, err := New(0, nil).Ingest(context.Background(), "cv.docx", bytes.NewReader(bomb))
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeFileTooLarge))
	})

	t.Run("body read past the declared size", func(t *testing.T) {
		r := &cappedReader{r: strings.NewReader(strings.Repeat("x", 5<<10)), remaining: maxDocumentXML}
		_, err := io.ReadAll(r)
		assert.ErrorIs(t, err, errBodyTooLarge)

		r = &cappedReader{r: strings.NewReader(strings.Repeat("x", 4<<10)), remaining: maxDocumentXML}
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Len(t, data, 4<<10)
	})

	t.Run("small document still extracts", func(t *testing.T) {
		text, err := ExtractText(types.Document{
			Name:      "cv.docx",
			MediaType: types.MediaTypeDOCX,
			Data:      base64.StdEncoding.EncodeToString(minimalDOCX(t, "Jane Doe")),
		})
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", text)
	})
}
