package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadableDocument = errors.New("unreadable PDF document")

var pdfMagic = []byte("%PDF-")

// PageError records a page whose text could not be extracted. Pages are
// numbered from 1.
type PageError struct {
	Page int
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e PageError) Unwrap() error { return e.Err }

type Extraction struct {
	Text       string
	Pages      int
	PageErrors []PageError
}

// Empty reports whether no usable text was recovered.
func (e *Extraction) Empty() bool {
	return strings.TrimSpace(e.Text) == ""
}

type Extractor interface {
	Extract(data []byte) (*Extraction, error)
}

// LooksLikePDF checks the file signature.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract concatenates the plain text of every page in order, with no
// separator. A failing page is skipped and reported in PageErrors; only a
// document that cannot be opened at all is an error.
func (e *PDFExtractor) Extract(data []byte) (*Extraction, error) {
	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	return extractPages(readerPages{reader}), nil
}

func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

type pageSource interface {
	NumPage() int
	PageText(num int) (string, error)
}

type readerPages struct {
	r *pdf.Reader
}

func (p readerPages) NumPage() int { return p.r.NumPage() }

func (p readerPages) PageText(num int) (string, error) {
	page := p.r.Page(num)
	if page.V.IsNull() {
		return "", errors.New("page object missing")
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		font := page.Font(name)
		fonts[name] = &font
	}
	return page.GetPlainText(fonts)
}

func extractPages(src pageSource) *Extraction {
	result := &Extraction{Pages: src.NumPage()}

	var text strings.Builder
	for num := 1; num <= result.Pages; num++ {
		pageText, err := pageTextSafe(src, num)
		if err != nil {
			slog.Warn("Skipping PDF page", "page", num, "error", err)
			result.PageErrors = append(result.PageErrors, PageError{Page: num, Err: err})
			continue
		}
		text.WriteString(pageText)
	}
	result.Text = text.String()
	return result
}

func pageTextSafe(src pageSource, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("panic while reading page: %v", rec)
		}
	}()
	return src.PageText(num)
}
