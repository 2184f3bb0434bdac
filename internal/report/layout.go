// Package report persists the terminal pipeline outputs: the structured
// record JSON and, on discrepancy, a standalone divergence report.
package report

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/mgalindo/deedflow/internal/storage"
)

// Layout derives every storage key for a case from the uploaded
// document's key. Per-case state is addressed purely by this convention.
type Layout struct {
	// OutputPrefix is the folder name inside the case directory that
	// holds structured records, e.g. "output/".
	OutputPrefix string
	// ReportPrefix is the bucket-level prefix for divergence reports,
	// e.g. "reports/".
	ReportPrefix string
}

// CaseKeys are the concrete keys for one invocation.
type CaseKeys struct {
	CaseID    string
	OutputDir string
	RecordKey string
	ReportKey string
}

// Keys computes the case keys for a document object key. The case
// directory is the document's folder: every upload into the same folder
// belongs to the same logical case.
func (l Layout) Keys(docKey string) CaseKeys {
	dir := path.Dir(docKey)
	if dir == "." {
		dir = ""
	}
	stem := strings.TrimSuffix(path.Base(docKey), path.Ext(docKey))

	outputDir := path.Join(dir, strings.Trim(l.OutputPrefix, "/")) + "/"
	caseID := stem
	if dir != "" {
		caseID = strings.ReplaceAll(dir, "/", "_") + "_" + stem
	}
	return CaseKeys{
		CaseID:    caseID,
		OutputDir: outputDir,
		RecordKey: outputDir + stem + ".json",
		ReportKey: strings.Trim(l.ReportPrefix, "/") + "/" + caseID + "_divergencias.md",
	}
}

// FindLatestRecord returns the key of the newest non-empty JSON record in
// the case's output folder, or "" when the case has no prior record.
func FindLatestRecord(ctx context.Context, store storage.ObjectStore, outputDir string) (string, error) {
	objects, err := store.List(ctx, outputDir)
	if err != nil {
		return "", err
	}
	var records []storage.ObjectInfo
	for _, o := range objects {
		if strings.HasSuffix(o.Key, ".json") && o.Size > 2 {
			records = append(records, o)
		}
	}
	if len(records) == 0 {
		return "", nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Updated.After(records[j].Updated) })
	return records[0].Key, nil
}
