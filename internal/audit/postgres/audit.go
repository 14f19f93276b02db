package postgres

import (
	auditpkg "github.com/dsrph/payment-disbursement/internal/audit"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) auditpkg.RepositoryAPI {
	return &AuditRepository{
		db: db,
	}
}

func (r *AuditRepository) Append(entry *auditmodel.Entry) error {
	return r.db.Create(entry).Error
}

func (r *AuditRepository) GetByPaymentID(paymentID string) ([]*auditmodel.Entry, error) {
	var entries []*auditmodel.Entry
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at ASC, id ASC").Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) GetByBatchID(batchID string) ([]*auditmodel.Entry, error) {
	var entries []*auditmodel.Entry
	err := r.db.Where("batch_id = ?", batchID).Order("created_at ASC, id ASC").Find(&entries).Error
	return entries, err
}
