package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/docextract/internal/infrastructure/extractor/pdftext"
)

type FileKind string

const (
	KindPDF   FileKind = "pdf"
	KindImage FileKind = "image"
)

// ocrImageTypes are the image formats tesseract reads directly.
var ocrImageTypes = []string{"image/png", "image/jpeg", "image/tiff", "image/bmp", "image/webp"}

// DetectKind classifies an upload by its content; the filename is only used in errors.
func DetectKind(filename string, data []byte) (FileKind, error) {
	mime := mimetype.Detect(data)
	switch {
	case mime.Is("application/pdf"):
		return KindPDF, nil
	case mimetype.EqualsAny(mime.String(), ocrImageTypes...):
		return KindImage, nil
	}
	return "", domain.WrapError(domain.ErrUnsupportedFileType, "detect file type",
		fmt.Errorf("%s (%s)", filename, mime.String()))
}

// OCR is the subset of the OCR engine the normalizer drives.
type OCR interface {
	RecognizeImage(ctx context.Context, image []byte, pageNo int) (domain.Page, error)
	RecognizePDFPage(ctx context.Context, data []byte, pageNo int) (domain.Page, error)
}

// Normalizer turns raw uploads into token documents: PDF text layers where usable,
// OCR for scanned pages and images.
type Normalizer struct {
	ocr             OCR
	minCharsPerPage int
}

func NewNormalizer(engine OCR, minCharsPerPage int) *Normalizer {
	return &Normalizer{ocr: engine, minCharsPerPage: minCharsPerPage}
}

func NewDefaultNormalizer(opts ocr.Options, minCharsPerPage int) *Normalizer {
	return NewNormalizer(ocr.NewEngine(ocr.ExecRunner{}, opts), minCharsPerPage)
}

func (n *Normalizer) Normalize(ctx context.Context, documentID, filename string, data []byte) (domain.Document, error) {
	kind, err := DetectKind(filename, data)
	if err != nil {
		return domain.Document{}, err
	}
	slog.Info("detected_file_type", "document_id", documentID, "kind", kind, "filename", filename)

	switch kind {
	case KindPDF:
		return n.normalizePDF(ctx, documentID, data)
	default:
		page, err := n.ocr.RecognizeImage(ctx, data, 1)
		if err != nil {
			return domain.Document{}, fmt.Errorf("ocr image: %w", err)
		}
		return domain.Document{DocumentID: documentID, Pages: []domain.Page{page}}, nil
	}
}

func (n *Normalizer) normalizePDF(ctx context.Context, documentID string, data []byte) (domain.Document, error) {
	layers, err := pdftext.Read(data)
	if err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrUnsupportedFileType, "read pdf", err)
	}

	doc := domain.Document{DocumentID: documentID, Pages: make([]domain.Page, 0, len(layers))}
	for _, layer := range layers {
		if layer.Chars >= n.minCharsPerPage {
			doc.Pages = append(doc.Pages, layer.Page)
			continue
		}
		slog.Info("pdf_page_needs_ocr", "document_id", documentID, "page_no", layer.Page.PageNo, "chars", layer.Chars)
		page, err := n.ocr.RecognizePDFPage(ctx, data, layer.Page.PageNo)
		if err != nil {
			return domain.Document{}, fmt.Errorf("ocr pdf page %d: %w", layer.Page.PageNo, err)
		}
		doc.Pages = append(doc.Pages, page)
	}
	slog.Info("pdf_normalized", "document_id", documentID, "pages", len(doc.Pages), "tokens", doc.TokenCount())
	return doc, nil
}
