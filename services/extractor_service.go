package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfcpumodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/models"
)

// DocumentLoader splits a document into ordered pages.
type DocumentLoader interface {
	Load(ctx context.Context, path string) ([]models.Page, error)
}

var licenseOnce sync.Once

// PDFLoader reads PDFs page by page. Plain text and markdown files are
// loaded as a single page.
type PDFLoader struct {
	log *zap.Logger
}

// NewPDFLoader applies the unidoc metered key once per process. An empty key
// leaves the library unlicensed, which only works for its free tier.
func NewPDFLoader(licenseKey string, log *zap.Logger) *PDFLoader {
	licenseOnce.Do(func() {
		if licenseKey == "" {
			log.Warn("UNIDOC_LICENSE_KEY not set, PDF extraction may fail")
			return
		}
		if err := license.SetMeteredKey(licenseKey); err != nil {
			log.Error("Failed to set Unidoc license key, PDF extraction will fail", zap.Error(err))
		}
	})
	return &PDFLoader{log: log}
}

func (l *PDFLoader) Load(ctx context.Context, path string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	source := filepath.Base(path)

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []models.Page{{SourceID: source, PageNumber: 1, TotalPages: 1, RawContent: string(content)}}, nil
	case ".pdf":
		return l.loadPDF(ctx, path, source)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

func (l *PDFLoader) loadPDF(ctx context.Context, path, source string) ([]models.Page, error) {
	conf := pdfcpumodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfcpumodel.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return nil, fmt.Errorf("invalid pdf %s: %w", source, err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", source, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}
	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}
	if numPages != pageCount {
		l.log.Warn("Page count mismatch between pdf readers",
			zap.String("source", source), zap.Int("pdfcpu", pageCount), zap.Int("unipdf", numPages))
	}

	pages := make([]models.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, models.Page{
			SourceID:   source,
			PageNumber: i,
			TotalPages: numPages,
			RawContent: text,
		})
	}

	l.log.Info("Loaded pdf", zap.String("source", source), zap.Int("pages", len(pages)))
	return pages, nil
}
