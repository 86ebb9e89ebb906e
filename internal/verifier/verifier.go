// Package verifier checks that a written catalog file reads back as the table
// that was built.
package verifier

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/tablefile"
)

// VerificationMethod defines how to verify data integrity.
type VerificationMethod string

const (
	// MethodCount compares row counts per dataset (fast)
	MethodCount VerificationMethod = "count"
	// MethodSHA256 compares the payload digest per dataset
	MethodSHA256 VerificationMethod = "sha256"
	// MethodSkip skips verification entirely
	MethodSkip VerificationMethod = "skip"
)

// VerifyResult holds verification results for a single dataset.
type VerifyResult struct {
	Dataset      int32
	Method       VerificationMethod
	SourceCount  int64
	DestCount    int64
	SourceHash   string
	DestHash     string
	Match        bool
	ErrorMessage string
}

// VerifyStats contains overall verification statistics.
type VerifyStats struct {
	DatasetsVerified int
	DatasetsPassed   int
	DatasetsFailed   int
	TotalRows        int64
	Method           VerificationMethod
	BuildID          string
}

// Verifier compares a built table with the file stored under a name.
type Verifier struct {
	store  blob.Store
	name   string
	method VerificationMethod
	logger *logger.Logger
}

// NewVerifier creates a verifier for the file stored under name.
func NewVerifier(store blob.Store, name string, method VerificationMethod, log *logger.Logger) (*Verifier, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is nil")
	}
	if name == "" {
		return nil, fmt.Errorf("file name is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	if method == "" {
		method = MethodCount
	}

	return &Verifier{
		store:  store,
		name:   name,
		method: method,
		logger: log,
	}, nil
}

// Verify reloads the stored file and compares it with built, dataset by dataset.
func (v *Verifier) Verify(ctx context.Context, built *catalog.Table) (*VerifyStats, error) {
	if v.method == MethodSkip {
		v.logger.Info("Verification SKIPPED (method=skip)")
		return &VerifyStats{
			Method: MethodSkip,
		}, nil
	}
	if v.method != MethodCount && v.method != MethodSHA256 {
		return nil, fmt.Errorf("unsupported verification method: %s", v.method)
	}

	stats := &VerifyStats{
		Method: v.method,
	}

	f, err := tablefile.Load(ctx, v.store, v.name, &built.Schema, catalog.NoFilters())
	if err != nil {
		return stats, fmt.Errorf("failed to reload %s: %w", v.name, err)
	}
	stored := f.Table
	stats.BuildID = f.Header.BuildID.String()

	source := groupByDataset(built)
	dest := groupByDataset(stored)

	datasets := built.Datasets()
	for _, ds := range stored.Datasets() {
		if _, ok := source[ds]; !ok {
			datasets = append(datasets, ds)
		}
	}

	v.logger.Infof("Starting verification (method=%s) for %d datasets", v.method, len(datasets))

	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("verification interrupted: %w", err)
		}

		srcRows, dstRows := rowsOf(source, ds), rowsOf(dest, ds)
		var result *VerifyResult
		switch v.method {
		case MethodCount:
			result = v.verifyByCount(ds, srcRows, dstRows)
		case MethodSHA256:
			result, err = v.verifyBySHA256(ds, built.Select(srcRows), stored.Select(dstRows))
			if err != nil {
				return stats, fmt.Errorf("verification failed for dataset %d: %w", ds, err)
			}
		}

		stats.DatasetsVerified++
		stats.TotalRows += result.SourceCount

		if result.Match {
			stats.DatasetsPassed++
			v.logger.Debugf("Verification PASSED for dataset %d (%d rows)", ds, result.SourceCount)
		} else {
			stats.DatasetsFailed++
			v.logger.Errorf("Verification FAILED for dataset %d: %s", ds, result.ErrorMessage)
			return stats, fmt.Errorf("verification mismatch in dataset %d: %s", ds, result.ErrorMessage)
		}
	}

	v.logger.Infof("Verification complete: %d datasets verified, %d passed, %d failed, %d total rows",
		stats.DatasetsVerified, stats.DatasetsPassed, stats.DatasetsFailed, stats.TotalRows)

	return stats, nil
}

func groupByDataset(t *catalog.Table) map[int32]*roaring.Bitmap {
	out := make(map[int32]*roaring.Bitmap)
	for i := range t.Rows {
		ds := t.Rows[i].Dataset
		bm, ok := out[ds]
		if !ok {
			bm = roaring.New()
			out[ds] = bm
		}
		bm.Add(uint32(i))
	}
	return out
}

func rowsOf(groups map[int32]*roaring.Bitmap, ds int32) *roaring.Bitmap {
	if bm, ok := groups[ds]; ok {
		return bm
	}
	return roaring.New()
}

// verifyByCount compares row counts for one dataset.
func (v *Verifier) verifyByCount(ds int32, source, dest *roaring.Bitmap) *VerifyResult {
	sourceCount := int64(source.GetCardinality())
	destCount := int64(dest.GetCardinality())

	result := &VerifyResult{
		Dataset:     ds,
		Method:      MethodCount,
		SourceCount: sourceCount,
		DestCount:   destCount,
		Match:       sourceCount == destCount,
	}
	if !result.Match {
		result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", sourceCount, destCount)
	}
	return result
}

// verifyBySHA256 compares the payload digests of one dataset's rows.
func (v *Verifier) verifyBySHA256(ds int32, source, dest *catalog.Table) (*VerifyResult, error) {
	sourceHash, err := tablefile.Digest(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source hash: %w", err)
	}
	destHash, err := tablefile.Digest(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to compute destination hash: %w", err)
	}

	result := &VerifyResult{
		Dataset:     ds,
		Method:      MethodSHA256,
		SourceCount: int64(source.Len()),
		DestCount:   int64(dest.Len()),
		SourceHash:  sourceHash,
		DestHash:    destHash,
		Match:       sourceHash == destHash && source.Len() == dest.Len(),
	}
	if !result.Match {
		if result.SourceCount != result.DestCount {
			result.ErrorMessage = fmt.Sprintf("count mismatch: source=%d, dest=%d", result.SourceCount, result.DestCount)
		} else {
			result.ErrorMessage = fmt.Sprintf("hash mismatch: source=%s, dest=%s", sourceHash[:16], destHash[:16])
		}
	}
	return result, nil
}

// SetLogger sets a custom logger for the verifier.
func (v *Verifier) SetLogger(log *logger.Logger) {
	v.logger = log
}

// GetMethod returns the configured verification method.
func (v *Verifier) GetMethod() VerificationMethod {
	return v.method
}
