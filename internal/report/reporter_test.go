package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mgalindo/deedflow/internal/deed"
	"github.com/mgalindo/deedflow/internal/storage"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	failPut map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string][]byte{},
		types:   map[string]string{},
		failPut: map[string]error{},
	}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if err, ok := s.failPut[key]; ok {
		return err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

type stubPDF struct {
	calls int
	err   error
}

func (p *stubPDF) Render(context.Context, string) ([]byte, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.4 stub"), nil
}

func caseKeysForTest() CaseKeys {
	return Layout{OutputPrefix: "output/", ReportPrefix: "reports/"}.Keys("caso/escritura.pdf")
}

func approvedRecord() *deed.Record {
	rec := &deed.Record{
		IssuanceNumber: "1",
		ProcessNumber:  "SRE/0123/2024",
		Issuer:         deed.Party{Name: "Vert Securitizadora", TaxID: "12.345.678/0001-00"},
		TotalVolume:    "50000000.00",
	}
	rec.Validation = deed.Validation{
		Status:    deed.StatusApproved,
		Timestamp: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	return rec
}

func TestPersistApprovedWritesRecordOnly(t *testing.T) {
	store := newMemStore()
	rep := NewReporter(store, true, nil)
	keys := caseKeysForTest()

	reportKey, err := rep.Persist(context.Background(), keys, approvedRecord())
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if reportKey != "" {
		t.Fatalf("no report expected for APROVADA, got %q", reportKey)
	}

	data, ok := store.objects[keys.RecordKey]
	if !ok {
		t.Fatalf("record not written at %s", keys.RecordKey)
	}
	if store.types[keys.RecordKey] != "application/json" {
		t.Fatalf("content type: %q", store.types[keys.RecordKey])
	}
	var round deed.Record
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("record payload is not valid JSON: %v", err)
	}
	if round.ProcessNumber != "SRE/0123/2024" {
		t.Fatalf("round trip process number: %q", round.ProcessNumber)
	}
}

func TestPersistRejectedWritesReport(t *testing.T) {
	store := newMemStore()
	rep := NewReporter(store, false, nil)
	keys := caseKeysForTest()

	rec := approvedRecord()
	rec.Validation.Status = deed.StatusRejected
	rec.Validation.Divergences = []deed.Divergence{{
		Field:    "volume_total",
		Expected: "50000000.00",
		Found:    "48000000.00",
		Detail:   "diferença acima da tolerância",
	}}

	reportKey, err := rep.Persist(context.Background(), keys, rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if reportKey != keys.ReportKey {
		t.Fatalf("report key: %q", reportKey)
	}
	body := string(store.objects[keys.ReportKey])
	if !strings.Contains(body, "volume_total") || !strings.Contains(body, "48000000.00") {
		t.Fatalf("report missing divergence row:\n%s", body)
	}
}

func TestPersistNotFoundHonorsFlag(t *testing.T) {
	keys := caseKeysForTest()
	rec := approvedRecord()
	rec.Validation.Status = deed.StatusNotFound
	rec.Validation.AttemptedKeys = []string{"12345678000100_1_SRE/0123/2024"}

	store := newMemStore()
	reportKey, err := NewReporter(store, true, nil).Persist(context.Background(), keys, rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if reportKey == "" {
		t.Fatal("NAO_ENCONTRADA should produce a report when enabled")
	}

	store = newMemStore()
	reportKey, err = NewReporter(store, false, nil).Persist(context.Background(), keys, rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if reportKey != "" {
		t.Fatalf("NAO_ENCONTRADA report should be suppressed, got %q", reportKey)
	}
}

func TestPersistRecordWriteFailureIsFatal(t *testing.T) {
	store := newMemStore()
	keys := caseKeysForTest()
	store.failPut[keys.RecordKey] = errors.New("bucket unavailable")

	_, err := NewReporter(store, true, nil).Persist(context.Background(), keys, approvedRecord())
	var perr *deed.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Key != keys.RecordKey {
		t.Fatalf("error key: %q", perr.Key)
	}
}

func TestPersistReportWriteFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	keys := caseKeysForTest()
	store.failPut[keys.ReportKey] = errors.New("bucket unavailable")

	rec := approvedRecord()
	rec.Validation.Status = deed.StatusRejected
	rec.Validation.Divergences = []deed.Divergence{{Field: "volume_total"}}

	reportKey, err := NewReporter(store, true, nil).Persist(context.Background(), keys, rec)
	if err != nil {
		t.Fatalf("report failure must not fail the run: %v", err)
	}
	if reportKey != "" {
		t.Fatalf("failed report should not be announced, got %q", reportKey)
	}
	if _, ok := store.objects[keys.RecordKey]; !ok {
		t.Fatal("record should still be written")
	}
}

func TestPersistRendersPDFAlongsideReport(t *testing.T) {
	store := newMemStore()
	keys := caseKeysForTest()
	pdf := &stubPDF{}

	rec := approvedRecord()
	rec.Validation.Status = deed.StatusRejected
	rec.Validation.Divergences = []deed.Divergence{{Field: "volume_total"}}

	if _, err := NewReporter(store, true, pdf).Persist(context.Background(), keys, rec); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if pdf.calls != 1 {
		t.Fatalf("renderer calls: %d", pdf.calls)
	}
	pdfKey := strings.TrimSuffix(keys.ReportKey, ".md") + ".pdf"
	if store.types[pdfKey] != "application/pdf" {
		t.Fatalf("pdf not persisted, types: %v", store.types)
	}
}

func TestPersistPDFFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	keys := caseKeysForTest()
	pdf := &stubPDF{err: errors.New("chromium crashed")}

	rec := approvedRecord()
	rec.Validation.Status = deed.StatusRejected
	rec.Validation.Divergences = []deed.Divergence{{Field: "volume_total"}}

	reportKey, err := NewReporter(store, true, pdf).Persist(context.Background(), keys, rec)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if reportKey != keys.ReportKey {
		t.Fatalf("markdown report should survive pdf failure, got %q", reportKey)
	}
}
