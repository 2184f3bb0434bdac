package pipeline

import (
	"strings"

	"github.com/mgalindo/deedflow/internal/deed"
)

// Prompts is the instruction set handed to the inference port. The
// hunting instructions bias the map phase toward exact-match identifiers;
// they are configuration for the model service, not pipeline control
// flow, and can be swapped without touching the pipeline.
type Prompts struct {
	MapSystem    string
	ReduceSystem string
}

// IrrelevantMarker is what the map prompt asks the model to answer for
// content-free chunks (indexes, blank pages); those summaries are dropped
// from the super-summary.
const IrrelevantMarker = "N/A"

// summarySeparator joins chunk summaries into the reduce context.
const summarySeparator = "\n\n--- NOVO SUMÁRIO ---\n\n"

const defaultMapSystem = `Você é um assistente de sumarização de termos de securitização.
Leia o trecho e sumarize os pontos principais em poucas linhas.

CAÇA A IDENTIFICADORES (prioridade máxima, transcreva EXATAMENTE como
aparecem no texto, sem reformatar):
- CNPJ da securitizadora e da devedora
- Número do processo ou requerimento na CVM (ex: CVM/SRE/AUT/CRI/PRI/2025/590)
- Número da emissão e das séries
- Código ISIN e número de registro
Depois dos identificadores, foque em dados financeiros, nomes de empresas
(securitizadora, devedora, agente fiduciário, auditor, agência de rating),
datas, valores, garantias e características das séries.
Se o trecho for irrelevante (índice, página em branco), responda apenas 'N/A'.`

const defaultReduceSystem = `Você é um especialista em análise de documentos financeiros.
Extraia os dados do sumário de um termo de securitização e responda em JSON.

Formato de saída (preencha exatamente este schema):
<schema>
` + recordSchema + `
</schema>

Responda APENAS com o JSON preenchido, sem '` + "```json" + `', introduções ou
explicações. Campos que o sumário não determina devem ficar como "" — NUNCA
invente valores, principalmente CNPJ, número de processo e número de emissão.`

// recordSchema mirrors the Record JSON shape; the reduce call must fill
// exactly these keys.
const recordSchema = `{
  "tipo_documento": "string",
  "numero_emissao": "string",
  "isin": "string",
  "numero_processo": "string",
  "securitizadora": {"nome": "string", "cnpj": "string"},
  "devedora": {"nome": "string", "cnpj": "string", "endereco": "string", "cidade": "string", "estado": "string"},
  "agente_fiduciario": "string",
  "auditor": "string",
  "agencia_rating": "string",
  "rating": "string",
  "volume_total": "string",
  "destinacao_recursos": "string",
  "descricao_lastro": "string",
  "reforco_credito": "string",
  "indice_subordinacao": "string",
  "resumo_estrutura": "string",
  "resumo_operacao": "string",
  "series": [{"nome": "string", "volume": "string", "taxa": "string", "indexador": "string", "data_emissao": "string (YYYY-MM-DD)", "data_vencimento": "string (YYYY-MM-DD)"}],
  "numero_registro": "string",
  "legislacao_aplicavel": "string"
}`

const condenseSystem = `Você é um assistente de consolidação. Combine os sumários a seguir em um
único sumário mais curto, preservando TODOS os identificadores exatos
(CNPJ, número de processo, número de emissão, ISIN, número de registro),
nomes de empresas, datas e valores. Não invente nada.`

// DefaultPrompts returns the hunting instruction set for securitization
// deeds.
func DefaultPrompts() Prompts {
	return Prompts{MapSystem: defaultMapSystem, ReduceSystem: defaultReduceSystem}
}

func buildMapPrompt(chunk deed.DocumentChunk) string {
	var b strings.Builder
	b.WriteString("<contexto>\n")
	b.WriteString(chunk.Text)
	b.WriteString("\n</contexto>\n\nSumarize os pontos principais deste contexto.")
	return b.String()
}

func buildReducePrompt(superSummary string) string {
	var b strings.Builder
	b.WriteString("<contexto_sumarizado>\n")
	b.WriteString(superSummary)
	b.WriteString("\n</contexto_sumarizado>\n\nExtraia os dados deste contexto.")
	return b.String()
}

func buildCondensePrompt(segment string) string {
	var b strings.Builder
	b.WriteString("<sumarios>\n")
	b.WriteString(segment)
	b.WriteString("\n</sumarios>\n\nConsolide estes sumários em um único sumário.")
	return b.String()
}
