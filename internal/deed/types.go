package deed

import (
	"strings"
	"time"
)

// ValidationStatus is the terminal verdict of the reference cross-check.
type ValidationStatus string

const (
	StatusPending  ValidationStatus = "PENDENTE"
	StatusApproved ValidationStatus = "APROVADA"
	StatusRejected ValidationStatus = "REPROVADA"
	StatusNotFound ValidationStatus = "NAO_ENCONTRADA"
)

// Party identifies a legal entity by name and CNPJ.
type Party struct {
	Name  string `json:"nome"`
	TaxID string `json:"cnpj"`
}

// Obligor is the debtor behind the securitized receivables.
type Obligor struct {
	Name    string `json:"nome"`
	TaxID   string `json:"cnpj"`
	Address string `json:"endereco"`
	City    string `json:"cidade"`
	State   string `json:"estado"`
}

// Series is one tranche of the issuance.
type Series struct {
	Name         string `json:"nome"`
	Volume       string `json:"volume"`
	Rate         string `json:"taxa"`
	RateIndex    string `json:"indexador"`
	IssueDate    string `json:"data_emissao"`
	MaturityDate string `json:"data_vencimento"`
}

// Divergence records one field mismatch found during validation.
type Divergence struct {
	Field    string `json:"campo"`
	Expected string `json:"valor_referencia"`
	Found    string `json:"valor_extraido"`
	Detail   string `json:"detalhe,omitempty"`
}

// Validation is the cross-check block. It is recomputed on every merge
// cycle and never carried over from a prior record.
type Validation struct {
	Status         ValidationStatus `json:"status"`
	ComparedFields []string         `json:"campos_comparados"`
	Divergences    []Divergence     `json:"divergencias"`
	AttemptedKeys  []string         `json:"chaves_tentadas"`
	MatchedKey     string           `json:"chave_match"`
	Source         string           `json:"fonte_referencia"`
	Timestamp      time.Time        `json:"timestamp_validacao"`
}

// Record is the canonical structured output for one securitization deed
// case. Field names follow the vocabulary of the deeds themselves and of
// the CVM reference table so the output JSON is stable for downstream
// consumers; a key is never omitted, undetermined values are explicit
// unknown markers.
type Record struct {
	DocumentType       string     `json:"tipo_documento"`
	IssuanceNumber     string     `json:"numero_emissao"`
	ISIN               string     `json:"isin"`
	ProcessNumber      string     `json:"numero_processo"`
	Issuer             Party      `json:"securitizadora"`
	Obligor            Obligor    `json:"devedora"`
	FiduciaryAgent     string     `json:"agente_fiduciario"`
	Auditor            string     `json:"auditor"`
	RatingAgency       string     `json:"agencia_rating"`
	Rating             string     `json:"rating"`
	TotalVolume        string     `json:"volume_total"`
	UseOfProceeds      string     `json:"destinacao_recursos"`
	Collateral         string     `json:"descricao_lastro"`
	CreditEnhancement  string     `json:"reforco_credito"`
	SubordinationIndex string     `json:"indice_subordinacao"`
	StructureSummary   string     `json:"resumo_estrutura"`
	OperationSummary   string     `json:"resumo_operacao"`
	Series             []Series   `json:"series"`
	RegistrationNumber string     `json:"numero_registro"`
	ApplicableLaw      string     `json:"legislacao_aplicavel"`
	Validation         Validation `json:"validacao"`
}

// DocumentChunk is one bounded segment of the extracted document text.
type DocumentChunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	PageStart int    `json:"page_start,omitempty"`
	PageEnd   int    `json:"page_end,omitempty"`
}

// ChunkSummary is the map-phase output for one chunk. An empty Summary
// marks a degraded chunk whose inference calls were exhausted.
type ChunkSummary struct {
	Index       int      `json:"index"`
	Summary     string   `json:"summary"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// TriggerEvent is the sole invocation input: the object that was just
// uploaded.
type TriggerEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// unknownMarkers are model placeholders treated as "value not determined".
// Matching is case-insensitive after trimming.
var unknownMarkers = map[string]struct{}{
	"":                 {},
	"null":             {},
	"n/a":              {},
	"na":               {},
	"não informado":    {},
	"nao informado":    {},
	"não especificado": {},
	"nao especificado": {},
	"desconhecido":     {},
}

// IsUnknown reports whether a scalar field value carries no information.
func IsUnknown(v string) bool {
	_, ok := unknownMarkers[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Normalize folds recognized placeholder spellings into the canonical
// unknown marker (the empty string) across every scalar field.
func (r *Record) Normalize() {
	for _, p := range r.scalarFields() {
		if IsUnknown(*p) {
			*p = ""
		} else {
			*p = strings.TrimSpace(*p)
		}
	}
	for i := range r.Series {
		s := &r.Series[i]
		for _, p := range []*string{&s.Name, &s.Volume, &s.Rate, &s.RateIndex, &s.IssueDate, &s.MaturityDate} {
			if IsUnknown(*p) {
				*p = ""
			} else {
				*p = strings.TrimSpace(*p)
			}
		}
	}
}

// IsEmpty reports whether nothing at all was extracted.
func (r *Record) IsEmpty() bool {
	for _, p := range r.scalarFields() {
		if !IsUnknown(*p) {
			return false
		}
	}
	return len(r.Series) == 0
}

func (r *Record) scalarFields() []*string {
	return []*string{
		&r.DocumentType, &r.IssuanceNumber, &r.ISIN, &r.ProcessNumber,
		&r.Issuer.Name, &r.Issuer.TaxID,
		&r.Obligor.Name, &r.Obligor.TaxID, &r.Obligor.Address, &r.Obligor.City, &r.Obligor.State,
		&r.FiduciaryAgent, &r.Auditor, &r.RatingAgency, &r.Rating,
		&r.TotalVolume, &r.UseOfProceeds, &r.Collateral, &r.CreditEnhancement,
		&r.SubordinationIndex, &r.StructureSummary, &r.OperationSummary,
		&r.RegistrationNumber, &r.ApplicableLaw,
	}
}
