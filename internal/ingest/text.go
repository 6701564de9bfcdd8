package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

const docxBody = "word/document.xml"

// maxDocumentXML bounds the decompressed WordprocessingML body. The upload
// limit only applies to the compressed container.
var maxDocumentXML int64 = 32 << 20

var errBodyTooLarge = stderrors.New("document body exceeds the decompressed size limit")

// ExtractText returns the plain text of an ingested document. Providers that
// cannot take a binary attachment of the document's media type send this instead.
func ExtractText(doc types.Document) (string, error) {
	data, err := Decode(doc)
	if err != nil {
		return "", err
	}

	var text string
	switch doc.MediaType {
	case types.MediaTypePDF:
		text, err = pdfText(data)
	case types.MediaTypeDOCX:
		text, err = docxText(data)
	default:
		return "", errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
			fmt.Sprintf("no text extractor for %s", doc.MediaType), nil)
	}
	if stderrors.Is(err, errBodyTooLarge) {
		return "", errors.NewIngestionError(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s expands beyond %d bytes", doc.Name, maxDocumentXML), err)
	}
	if err != nil {
		return "", errors.NewIngestionError(errors.ErrCodeIngestionFailed,
			fmt.Sprintf("failed to extract text from %s", doc.Name), err)
	}

	text = cleanText(text)
	if text == "" {
		return "", errors.NewIngestionError(errors.ErrCodeIngestionFailed,
			fmt.Sprintf("no text content found in %s", doc.Name), nil)
	}
	return text, nil
}

func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open DOCX container: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		if f.UncompressedSize64 > uint64(maxDocumentXML) {
			return "", errBodyTooLarge
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", docxBody, err)
		}
		defer func() { _ = rc.Close() }()
		return wordprocessingText(&cappedReader{r: rc, remaining: maxDocumentXML})
	}
	return "", fmt.Errorf("%s not found in DOCX container", docxBody)
}

// cappedReader fails with errBodyTooLarge once more than remaining bytes are
// read, whatever size the zip header declares.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errBodyTooLarge
	}
	return n, err
}

// wordprocessingText walks WordprocessingML and keeps run text, tabs and paragraph breaks.
func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("malformed document XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}

func cleanText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
