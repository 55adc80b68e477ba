package database

import (
	"context"
	"errors"
	"strings"

	"loginwall/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const allowlistInsertBatchSize = 500

var errNotInitialised = errors.New("database not initialised")

func withContext(ctx context.Context) *gorm.DB {
	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}
	return db
}

// ListAllowedRanges returns every stored descriptor in insertion order.
func ListAllowedRanges(ctx context.Context) ([]domain.AllowedRange, error) {
	if DB == nil {
		return nil, errNotInitialised
	}

	var ranges []domain.AllowedRange
	if err := withContext(ctx).Order("id ASC").Find(&ranges).Error; err != nil {
		return nil, err
	}
	return ranges, nil
}

// ReplaceSourceRanges swaps every descriptor owned by source for the given
// set inside one transaction. It returns the number stored and removed.
func ReplaceSourceRanges(ctx context.Context, source string, descriptors []string) (int, int64, error) {
	if DB == nil {
		return 0, 0, errNotInitialised
	}

	records := toRecords(source, descriptors)
	var removed int64

	err := withContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("source = ?", source).Delete(&domain.AllowedRange{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected

		return upsertRanges(tx, records)
	})
	if err != nil {
		return 0, 0, err
	}
	return len(records), removed, nil
}

// upsertRanges inserts records, moving descriptors another source already
// stored over to the new source.
func upsertRanges(tx *gorm.DB, records []domain.AllowedRange) error {
	if len(records) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "descriptor"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "updated_at"}),
	}).CreateInBatches(&records, allowlistInsertBatchSize).Error
}

// DeleteAllowedRanges removes the given descriptors regardless of source.
func DeleteAllowedRanges(ctx context.Context, descriptors []string) (int64, error) {
	if DB == nil {
		return 0, errNotInitialised
	}

	normalized := normalizeDescriptors(descriptors)
	if len(normalized) == 0 {
		return 0, nil
	}

	res := withContext(ctx).Where("descriptor IN ?", normalized).Delete(&domain.AllowedRange{})
	return res.RowsAffected, res.Error
}

func toRecords(source string, descriptors []string) []domain.AllowedRange {
	normalized := normalizeDescriptors(descriptors)
	records := make([]domain.AllowedRange, 0, len(normalized))
	for _, d := range normalized {
		records = append(records, domain.AllowedRange{Descriptor: d, Source: source})
	}
	return records
}

// normalizeDescriptors trims and deduplicates while keeping first-seen order.
func normalizeDescriptors(descriptors []string) []string {
	seen := make(map[string]struct{}, len(descriptors))
	out := make([]string, 0, len(descriptors))
	for _, raw := range descriptors {
		d := strings.TrimSpace(raw)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
