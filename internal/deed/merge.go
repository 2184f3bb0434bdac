package deed

import "strings"

// Merge combines a freshly extracted candidate with the previously
// persisted record for the same case. Re-uploads (amendments, offering
// announcements) typically add process and registration data that the
// original filing lacked, so the policy is asymmetric:
//
//   - identity fields keep the prior value unless it was unknown;
//   - every other scalar adopts the candidate value when it is known;
//   - series are matched by name, overlaid field by field, and unmatched
//     candidate series are appended;
//   - the validation block is never merged, it is recomputed afterwards.
//
// Merge never mutates its inputs.
func Merge(prior *Record, candidate Record) Record {
	candidate.Series = append([]Series(nil), candidate.Series...)
	candidate.Normalize()
	if prior == nil {
		candidate.Validation = Validation{}
		return candidate
	}

	out := *prior
	out.Series = append([]Series(nil), prior.Series...)
	out.Normalize()
	out.Validation = Validation{}

	// Identity fields: once set from an original filing they are never
	// overwritten by a later document.
	overlayIdentity(&out.Issuer.TaxID, candidate.Issuer.TaxID)
	overlayIdentity(&out.Obligor.TaxID, candidate.Obligor.TaxID)
	overlayIdentity(&out.ProcessNumber, candidate.ProcessNumber)
	overlayIdentity(&out.IssuanceNumber, candidate.IssuanceNumber)

	outScalars := out.scalarFields()
	candScalars := candidate.scalarFields()
	identity := map[*string]struct{}{
		&out.Issuer.TaxID:   {},
		&out.Obligor.TaxID:  {},
		&out.ProcessNumber:  {},
		&out.IssuanceNumber: {},
	}
	for i, p := range outScalars {
		if _, isIdentity := identity[p]; isIdentity {
			continue
		}
		if !IsUnknown(*candScalars[i]) {
			*p = *candScalars[i]
		}
	}

	out.Series = mergeSeries(out.Series, candidate.Series)
	return out
}

func overlayIdentity(prior *string, candidate string) {
	if IsUnknown(*prior) && !IsUnknown(candidate) {
		*prior = candidate
	}
}

func mergeSeries(prior, candidate []Series) []Series {
	merged := append([]Series(nil), prior...)
	for _, c := range candidate {
		idx := -1
		for i := range merged {
			if seriesNameEqual(merged[i].Name, c.Name) {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, c)
			continue
		}
		s := &merged[idx]
		overlaySeriesField(&s.Volume, c.Volume)
		overlaySeriesField(&s.Rate, c.Rate)
		overlaySeriesField(&s.RateIndex, c.RateIndex)
		overlaySeriesField(&s.IssueDate, c.IssueDate)
		overlaySeriesField(&s.MaturityDate, c.MaturityDate)
	}
	return merged
}

func overlaySeriesField(prior *string, candidate string) {
	if !IsUnknown(candidate) {
		*prior = candidate
	}
}

func seriesNameEqual(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.ReplaceAll(s, "ª", "a")
		s = strings.ReplaceAll(s, "º", "o")
		return strings.Join(strings.Fields(s), " ")
	}
	return norm(a) != "" && norm(a) == norm(b)
}
