package refdata

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"
)

// Row is one filing in the registry extract.
type Row struct {
	IssuerCNPJ       string
	RequestNumber    string
	ProcessNumber    string
	RegisteredValue  string
	IssuerName       string
	RegistrationDate string
	FiduciaryAgent   string
}

// Column names as they appear in the CVM extract.
const (
	colIssuerCNPJ       = "CNPJ_Emissor"
	colRequestNumber    = "Numero_Requerimento"
	colProcessNumber    = "Numero_Processo"
	colRegisteredValue  = "Valor_Total_Registrado"
	colIssuerName       = "Nome_Emissor"
	colRegistrationDate = "Data_Registro"
	colFiduciaryAgent   = "Agente_fiduciario"
)

// Table is the registry extract pre-indexed by composite key. It is
// loaded once per invocation and is safe for concurrent reads.
type Table struct {
	index          map[string]Row
	canonicalGroup string
}

// Load parses a CSV registry extract (UTF-8 or latin-1) and builds the
// composite-key index. Rows whose key components are missing are skipped;
// they can never match a lookup anyway.
func Load(data []byte, canonicalGroup string) (*Table, error) {
	if !utf8.Valid(data) {
		data = latin1ToUTF8(data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read reference header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colIssuerCNPJ, colRequestNumber, colProcessNumber} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("reference dataset missing column %s", required)
		}
	}

	t := &Table{index: map[string]Row{}, canonicalGroup: canonicalGroup}
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read reference row: %w", err)
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		row := Row{
			IssuerCNPJ:       field(colIssuerCNPJ),
			RequestNumber:    field(colRequestNumber),
			ProcessNumber:    field(colProcessNumber),
			RegisteredValue:  field(colRegisteredValue),
			IssuerName:       field(colIssuerName),
			RegistrationDate: field(colRegistrationDate),
			FiduciaryAgent:   field(colFiduciaryAgent),
		}
		key := CompositeKey(row.IssuerCNPJ, row.RequestNumber, row.ProcessNumber, canonicalGroup)
		if key == "" {
			skipped++
			continue
		}
		t.index[key] = row
	}
	if skipped > 0 {
		log.Printf("refdata load skipped_rows=%d rows=%d", skipped, len(t.index))
	}
	return t, nil
}

// Lookup answers an exact composite-key probe.
func (t *Table) Lookup(key string) (Row, bool) {
	row, ok := t.index[key]
	return row, ok
}

// Key builds a composite key with this table's canonical process group.
func (t *Table) Key(cnpj, request, process string) string {
	return CompositeKey(cnpj, request, process, t.canonicalGroup)
}

// Len reports the number of indexed filings.
func (t *Table) Len() int { return len(t.index) }

func latin1ToUTF8(data []byte) []byte {
	buf := make([]rune, len(data))
	for i, b := range data {
		buf[i] = rune(b)
	}
	return []byte(string(buf))
}
