package report

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/mgalindo/deedflow/internal/deed"
	"github.com/mgalindo/deedflow/internal/storage"
)

// PDFRenderer turns a markdown report into PDF bytes. Optional; a nil
// renderer skips the PDF artifact.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

// Reporter writes the terminal artifacts. The main record write is the
// only fatal path; the divergence report and its PDF are independent side
// effects whose failures are logged and swallowed.
type Reporter struct {
	store storage.ObjectStore
	// ReportNotFound extends the divergence report to NAO_ENCONTRADA
	// verdicts, not just REPROVADA.
	reportNotFound bool
	pdf            PDFRenderer
}

func NewReporter(store storage.ObjectStore, reportNotFound bool, pdf PDFRenderer) *Reporter {
	return &Reporter{store: store, reportNotFound: reportNotFound, pdf: pdf}
}

// Persist writes the record and, when the verdict calls for it, the
// divergence report. It returns the report key actually written ("" when
// none) and a deed.PersistenceError only for the record write.
func (r *Reporter) Persist(ctx context.Context, keys CaseKeys, rec *deed.Record) (string, error) {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", &deed.PersistenceError{Key: keys.RecordKey, Err: err}
	}
	if err := r.store.Put(ctx, keys.RecordKey, payload, "application/json"); err != nil {
		return "", &deed.PersistenceError{Key: keys.RecordKey, Err: err}
	}
	log.Printf("deedflow record_persisted key=%s status=%s", keys.RecordKey, rec.Validation.Status)

	if !r.shouldReport(rec.Validation.Status) {
		return "", nil
	}
	markdown := BuildDivergenceMarkdown(keys.CaseID, rec)
	if err := r.store.Put(ctx, keys.ReportKey, []byte(markdown), "text/markdown"); err != nil {
		// The record is already safe; a lost report is an observability
		// gap, not a pipeline failure.
		log.Printf("deedflow report_write_failed key=%s err=%q", keys.ReportKey, err.Error())
		return "", nil
	}
	log.Printf("deedflow report_persisted key=%s", keys.ReportKey)

	if r.pdf != nil {
		r.renderPDF(ctx, keys, markdown)
	}
	return keys.ReportKey, nil
}

func (r *Reporter) renderPDF(ctx context.Context, keys CaseKeys, markdown string) {
	pdfBytes, err := r.pdf.Render(ctx, markdown)
	if err != nil {
		log.Printf("deedflow report_pdf_failed key=%s err=%q", keys.ReportKey, err.Error())
		return
	}
	pdfKey := strings.TrimSuffix(keys.ReportKey, ".md") + ".pdf"
	if err := r.store.Put(ctx, pdfKey, pdfBytes, "application/pdf"); err != nil {
		log.Printf("deedflow report_pdf_write_failed key=%s err=%q", pdfKey, err.Error())
		return
	}
	log.Printf("deedflow report_pdf_persisted key=%s", pdfKey)
}

func (r *Reporter) shouldReport(status deed.ValidationStatus) bool {
	switch status {
	case deed.StatusRejected:
		return true
	case deed.StatusNotFound:
		return r.reportNotFound
	default:
		return false
	}
}
