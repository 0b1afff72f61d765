package indexer

import (
	"gorm.io/gorm"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// WithStatus returns a GORM scope that filters report views by status. A nil
// status matches every report.
func WithStatus(status *lifecycle.Status) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == nil {
			return db
		}
		return db.Where("status = ?", status.String())
	}
}

// ForReport returns a GORM scope that filters rows by report_id.
func ForReport(id lifecycle.ReportID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("report_id = ?", uint64(id))
	}
}

func Paginate(limit, offset int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(limit).Offset(offset)
	}
}
