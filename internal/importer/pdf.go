package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"faimport/internal/extraction"
	"faimport/internal/logger"
	"faimport/internal/ocr"
	"faimport/pkg/models"
)

// PDFFile is an invoice PDF held in memory. Path, when set, is stored as the invoice's PDF path.
type PDFFile struct {
	Name string
	Path string
	Data []byte
}

// documentReader turns a PDF into an invoice: text first, then extraction.
type documentReader struct {
	ocr       ocr.OCRService
	extractor extraction.Extractor
	log       zerolog.Logger
}

func newDocumentReader(o ocr.OCRService, ex extraction.Extractor) documentReader {
	return documentReader{ocr: o, extractor: ex, log: logger.WithComponent("importer")}
}

// read never fails on OCR alone: Document AI can still work from the PDF bytes.
func (r documentReader) read(ctx context.Context, ref string, data []byte) (*models.Invoice, error) {
	doc := extraction.Document{Source: ref, PDF: data}
	if r.ocr != nil {
		result, err := r.ocr.ProcessPDFWithMetadata(ctx, bytes.NewReader(data))
		if err != nil {
			r.log.Warn().Err(err).Str("ref", ref).Msg("No text read from PDF")
		} else {
			doc.Text = result.Text
			r.log.Debug().Str("ref", ref).Str("engine", result.Engine).Int("pages", result.PageCount).Msg("PDF text read")
		}
	}
	return r.extractor.Extract(ctx, doc)
}

// PDFSource imports PDFs already in memory, such as uploads.
type PDFSource struct {
	reader documentReader
	files  []PDFFile
}

func NewPDFSource(o ocr.OCRService, ex extraction.Extractor, files ...PDFFile) *PDFSource {
	return &PDFSource{reader: newDocumentReader(o, ex), files: files}
}

func (s *PDFSource) Name() string { return "pdf" }

func (s *PDFSource) Candidates(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, len(s.files))
	for _, f := range s.files {
		c := Candidate{Ref: f.Name}
		c.Invoice, c.Err = s.reader.read(ctx, f.Name, f.Data)
		if c.Invoice != nil && f.Path != "" {
			c.Invoice.PDFPath = f.Path
		}
		out = append(out, c)
	}
	return out, nil
}

// DirectorySource imports every PDF in a directory, in name order.
type DirectorySource struct {
	reader documentReader
	dir    string
}

func NewDirectorySource(o ocr.OCRService, ex extraction.Extractor, dir string) *DirectorySource {
	return &DirectorySource{reader: newDocumentReader(o, ex), dir: dir}
}

func (s *DirectorySource) Name() string { return "directory" }

func (s *DirectorySource) Candidates(ctx context.Context) ([]Candidate, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", s.dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(paths)

	out := make([]Candidate, 0, len(paths))
	for _, path := range paths {
		c := Candidate{Ref: path}
		data, err := os.ReadFile(path)
		if err != nil {
			c.Err = err
			out = append(out, c)
			continue
		}
		c.Invoice, c.Err = s.reader.read(ctx, path, data)
		if c.Invoice != nil {
			if abs, err := filepath.Abs(path); err == nil {
				c.Invoice.PDFPath = abs
			} else {
				c.Invoice.PDFPath = path
			}
		}
		out = append(out, c)
	}
	return out, nil
}
