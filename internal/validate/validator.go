// Package validate cross-checks an extracted record against the CVM
// registry extract and stamps the record's validation block.
package validate

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/mgalindo/deedflow/internal/config"
	"github.com/mgalindo/deedflow/internal/deed"
	"github.com/mgalindo/deedflow/internal/refdata"
)

// Reference is the lookup surface the validator needs from the loaded
// registry table.
type Reference interface {
	Key(cnpj, request, process string) string
	Lookup(key string) (refdata.Row, bool)
}

var processSplitRe = regexp.MustCompile(`[;,]`)

// Validator implements the conditional state machine: without a process
// number the record is PENDENTE and the reference table is never
// touched; with one, the composite key is probed and the fixed field set
// compared under the configured tolerances.
type Validator struct {
	ref    Reference
	source string
	cfg    config.ValidationConfig
	now    func() time.Time
}

func New(ref Reference, source string, cfg config.ValidationConfig) *Validator {
	return &Validator{ref: ref, source: source, cfg: cfg, now: time.Now}
}

// Validate computes a fresh validation block for the record. A later
// merge plus re-validation starts a new cycle; there are no transitions
// out of a terminal status within one cycle.
func (v *Validator) Validate(rec *deed.Record) {
	val := deed.Validation{
		Source:    v.source,
		Timestamp: v.now().UTC(),
	}
	defer func() { rec.Validation = val }()

	if deed.IsUnknown(rec.ProcessNumber) {
		// An original filing legitimately lacks a process number;
		// failing it here would be a false negative.
		val.Status = deed.StatusPending
		log.Printf("deedflow validate status=%s reason=no_process_number", val.Status)
		return
	}

	row, matched, attempted := v.lookup(rec)
	val.AttemptedKeys = attempted
	if !matched {
		val.Status = deed.StatusNotFound
		log.Printf("deedflow validate status=%s attempted_keys=%d", val.Status, len(attempted))
		return
	}
	val.MatchedKey = attempted[len(attempted)-1]

	val.ComparedFields, val.Divergences = v.compare(rec, row)
	if len(val.Divergences) > 0 {
		val.Status = deed.StatusRejected
	} else {
		val.Status = deed.StatusApproved
	}
	log.Printf("deedflow validate status=%s key=%s compared=%d divergences=%d",
		val.Status, val.MatchedKey, len(val.ComparedFields), len(val.Divergences))
}

// lookup probes each extracted process number in order until one hits.
// The attempted key list always ends with the matching key on a hit.
func (v *Validator) lookup(rec *deed.Record) (refdata.Row, bool, []string) {
	var attempted []string
	for _, proc := range splitProcessNumbers(rec.ProcessNumber) {
		key := v.ref.Key(rec.Issuer.TaxID, rec.IssuanceNumber, proc)
		if key == "" {
			continue
		}
		attempted = append(attempted, key)
		if row, ok := v.ref.Lookup(key); ok {
			return row, true, attempted
		}
	}
	return refdata.Row{}, false, attempted
}

func (v *Validator) compare(rec *deed.Record, row refdata.Row) ([]string, []deed.Divergence) {
	var compared []string
	var divergences []deed.Divergence

	if got, ok := refdata.NormalizeMoney(rec.TotalVolume); ok {
		if want, ok := refdata.NormalizeMoney(row.RegisteredValue); ok {
			compared = append(compared, "volume_total")
			if !v.moneyWithinTolerance(got, want) {
				divergences = append(divergences, deed.Divergence{
					Field:    "volume_total",
					Expected: row.RegisteredValue,
					Found:    rec.TotalVolume,
					Detail:   fmt.Sprintf("normalizado extraído=%.2f vs referência=%.2f", got, want),
				})
			}
		}
	}

	if !deed.IsUnknown(rec.Issuer.Name) && row.IssuerName != "" {
		compared = append(compared, "securitizadora.nome")
		if refdata.NormalizeName(rec.Issuer.Name) != refdata.NormalizeName(row.IssuerName) {
			divergences = append(divergences, deed.Divergence{
				Field:    "securitizadora.nome",
				Expected: row.IssuerName,
				Found:    rec.Issuer.Name,
			})
		}
	}

	if !deed.IsUnknown(rec.FiduciaryAgent) && row.FiduciaryAgent != "" {
		compared = append(compared, "agente_fiduciario")
		if refdata.NormalizeName(rec.FiduciaryAgent) != refdata.NormalizeName(row.FiduciaryAgent) {
			divergences = append(divergences, deed.Divergence{
				Field:    "agente_fiduciario",
				Expected: row.FiduciaryAgent,
				Found:    rec.FiduciaryAgent,
			})
		}
	}

	return compared, divergences
}

// moneyWithinTolerance accepts either the absolute or the relative bound.
func (v *Validator) moneyWithinTolerance(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff <= v.cfg.ValueToleranceAbs {
		return true
	}
	ref := want
	if ref < 0 {
		ref = -ref
	}
	return ref > 0 && diff/ref <= v.cfg.ValueToleranceRel
}

// splitProcessNumbers handles records where extraction yielded several
// `;`/`,` separated process numbers.
func splitProcessNumbers(raw string) []string {
	var out []string
	for _, p := range processSplitRe.Split(raw, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
