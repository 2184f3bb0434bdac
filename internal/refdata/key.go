package refdata

import "strconv"

// CompositeKey derives the deterministic lookup key for one filing from
// issuer CNPJ, request (issuance) number, and process number. Equal
// normalized triples always produce equal keys, which is what turns the
// registry check into an exact lookup instead of a fuzzy search. Returns
// "" when any component is missing or unparseable.
func CompositeKey(cnpj, request, process, canonicalGroup string) string {
	normCNPJ := NormalizeCNPJ(cnpj)
	normReq, ok := NormalizeOrdinal(request)
	normProc := NormalizeProcess(process, canonicalGroup)
	if normCNPJ == "" || !ok || normProc == "" {
		return ""
	}
	return normCNPJ + "_" + strconv.Itoa(normReq) + "_" + normProc
}
