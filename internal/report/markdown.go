package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/mgalindo/deedflow/internal/deed"
)

// BuildDivergenceMarkdown renders the standalone discrepancy report for a
// record whose validation did not pass cleanly.
func BuildDivergenceMarkdown(caseID string, rec *deed.Record) string {
	v := rec.Validation
	var b strings.Builder
	b.WriteString("# Relatório de Divergências\n\n")
	fmt.Fprintf(&b, "**Caso:** %s\n\n", caseID)
	fmt.Fprintf(&b, "**Status da validação:** %s\n\n", v.Status)
	if !v.Timestamp.IsZero() {
		fmt.Fprintf(&b, "**Validado em:** %s\n\n", v.Timestamp.Format(time.RFC3339))
	}
	if v.Source != "" {
		fmt.Fprintf(&b, "**Fonte de referência:** %s\n\n", v.Source)
	}

	writeIdentity(&b, rec)

	switch v.Status {
	case deed.StatusNotFound:
		b.WriteString("## Registro não localizado\n\n")
		b.WriteString("Nenhuma linha da base de referência corresponde às chaves tentadas:\n\n")
		for _, k := range v.AttemptedKeys {
			fmt.Fprintf(&b, "- `%s`\n", k)
		}
		if len(v.AttemptedKeys) == 0 {
			b.WriteString("- (nenhuma chave pôde ser construída a partir dos identificadores extraídos)\n")
		}
		b.WriteString("\n")
	case deed.StatusRejected:
		fmt.Fprintf(&b, "## Divergências (%d)\n\n", len(v.Divergences))
		b.WriteString("| Campo | Valor de referência | Valor extraído | Detalhe |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, d := range v.Divergences {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				mdCell(d.Field), mdCell(d.Expected), mdCell(d.Found), mdCell(d.Detail))
		}
		b.WriteString("\n")
		if v.MatchedKey != "" {
			fmt.Fprintf(&b, "Chave de referência: `%s`\n\n", v.MatchedKey)
		}
	}

	if len(v.ComparedFields) > 0 {
		fmt.Fprintf(&b, "Campos comparados: %s\n", strings.Join(v.ComparedFields, ", "))
	}
	return b.String()
}

func writeIdentity(b *strings.Builder, rec *deed.Record) {
	b.WriteString("## Identificação\n\n")
	rows := []struct{ label, value string }{
		{"Securitizadora", rec.Issuer.Name},
		{"CNPJ", rec.Issuer.TaxID},
		{"Número da emissão", rec.IssuanceNumber},
		{"Número do processo", rec.ProcessNumber},
		{"Volume total", rec.TotalVolume},
	}
	for _, r := range rows {
		v := r.value
		if deed.IsUnknown(v) {
			v = "—"
		}
		fmt.Fprintf(b, "- **%s:** %s\n", r.label, v)
	}
	b.WriteString("\n")
}

func mdCell(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
