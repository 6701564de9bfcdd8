// Package ingest turns user-selected resume files into transport-ready documents.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
	"resumeforge/internal/utils"
)

// DefaultMaxSize bounds uploaded documents when no limit is configured
const DefaultMaxSize int64 = 10 * 1024 * 1024

var extensionMediaTypes = map[string]string{
	".pdf":  types.MediaTypePDF,
	".docx": types.MediaTypeDOCX,
}

// Ingestor reads and encodes resume documents
type Ingestor struct {
	maxSize int64
	logger  *errors.Logger
}

// New creates an ingestor. A non-positive maxSize uses DefaultMaxSize.
func New(maxSize int64, logger *errors.Logger) *Ingestor {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Ingestor{maxSize: maxSize, logger: logger}
}

// MediaTypeFor resolves the declared media type from a file name.
func MediaTypeFor(name string) (string, error) {
	ext := utils.GetFileExtension(name)
	mediaType, ok := extensionMediaTypes[ext]
	if !ok {
		return "", errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q: only .pdf and .docx are accepted", ext), nil).
			WithContext("filename", name)
	}
	return mediaType, nil
}

// IsSupported reports whether a media type may enter the pipeline
func IsSupported(mediaType string) bool {
	return mediaType == types.MediaTypePDF || mediaType == types.MediaTypeDOCX
}

// IngestFile reads a document from disk.
func (i *Ingestor) IngestFile(ctx context.Context, path string) (types.Document, error) {
	if _, err := MediaTypeFor(path); err != nil {
		return types.Document{}, err
	}
	if err := utils.ValidateInputFile(path); err != nil {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("cannot read document: %s", path), err)
	}

	file, err := os.Open(path)
	if err != nil {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("cannot open document: %s", path), err)
	}
	defer func() {
		if err := file.Close(); err != nil && i.logger != nil {
			i.logger.Warn("Failed to close document", "filename", path, "error", err)
		}
	}()

	return i.Ingest(ctx, filepath.Base(path), file)
}

// Ingest reads a document from r. The name decides the declared media type and
// the content must agree with it.
func (i *Ingestor) Ingest(ctx context.Context, name string, r io.Reader) (types.Document, error) {
	mediaType, err := MediaTypeFor(name)
	if err != nil {
		return types.Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeIngestionFailed,
			"document read cancelled", err)
	}

	data, err := io.ReadAll(io.LimitReader(r, i.maxSize+1))
	if err != nil {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("failed to read document: %s", name), err)
	}
	if int64(len(data)) > i.maxSize {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("document exceeds %s", utils.FormatFileSize(i.maxSize)), nil).
			WithContext("filename", name)
	}
	if len(data) == 0 {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeIngestionFailed,
			fmt.Sprintf("document is empty: %s", name), nil)
	}
	if err := checkContent(mediaType, data); err != nil {
		return types.Document{}, errors.NewIngestionError(errors.ErrCodeUnsupportedMediaType,
			fmt.Sprintf("content of %s does not match its extension", name), err)
	}

	if mediaType == types.MediaTypeDOCX {
		if err := checkDOCXBody(data); err != nil {
			return types.Document{}, err.WithContext("filename", name)
		}
	}

	doc := types.Document{
		Name:      name,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
		Size:      len(data),
	}
	if mediaType == types.MediaTypePDF {
		doc.PageCount = countPages(data)
	}

	if i.logger != nil {
		i.logger.Debug("Document ingested",
			"filename", name,
			"media_type", mediaType,
			"size", utils.FormatFileSize(int64(len(data))),
			"pages", doc.PageCount)
	}
	return doc, nil
}

// Decode returns the raw bytes of an ingested document
func Decode(doc types.Document) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return nil, errors.NewIngestionError(errors.ErrCodeIngestionFailed,
			"document payload is not valid base64", err)
	}
	return data, nil
}

func checkContent(mediaType string, data []byte) error {
	sniffed := http.DetectContentType(data)
	switch mediaType {
	case types.MediaTypePDF:
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			return fmt.Errorf("expected PDF header, detected %s", sniffed)
		}
	case types.MediaTypeDOCX:
		if !strings.HasPrefix(sniffed, "application/zip") {
			return fmt.Errorf("expected OOXML zip container, detected %s", sniffed)
		}
	}
	return nil
}

// checkDOCXBody rejects containers without a document body or whose body
// declares a decompressed size over maxDocumentXML.
func checkDOCXBody(data []byte) *errors.AppError {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.NewIngestionError(errors.ErrCodeIngestionFailed, "invalid DOCX container", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		if f.UncompressedSize64 > uint64(maxDocumentXML) {
			return errors.NewIngestionError(errors.ErrCodeFileTooLarge,
				fmt.Sprintf("document body expands beyond %s", utils.FormatFileSize(maxDocumentXML)), errBodyTooLarge)
		}
		return nil
	}
	return errors.NewIngestionError(errors.ErrCodeIngestionFailed,
		fmt.Sprintf("%s not found in DOCX container", docxBody), nil)
}

// countPages is best effort: a PDF the parser cannot read still ingests, with zero pages.
func countPages(data []byte) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
