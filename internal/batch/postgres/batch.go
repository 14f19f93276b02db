package postgres

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dsrph/payment-disbursement/internal"
	batchpkg "github.com/dsrph/payment-disbursement/internal/batch"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	"github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) batchpkg.RepositoryAPI {
	return &BatchRepository{
		db: db,
	}
}

// Create inserts the batch row, its payment rows and all audit entries in
// one transaction. A failure on any row rolls the whole batch back.
func (r *BatchRepository) Create(b *batch.PaymentBatch, payments []*paymentmodel.Payment, entries []*auditmodel.Entry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(b).Error; err != nil {
			return err
		}
		if len(payments) > 0 {
			if err := tx.CreateInBatches(payments, 500).Error; err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BatchRepository) GetByID(id string) (*batch.PaymentBatch, error) {
	var b batch.PaymentBatch
	err := r.db.Where("id = ?", id).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) GetByBatchNumber(batchNumber string) (*batch.PaymentBatch, error) {
	var b batch.PaymentBatch
	err := r.db.Where("batch_number = ?", batchNumber).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BatchRepository) List(status string, limit, offset int) ([]*batch.PaymentBatch, int64, error) {
	query := r.db.Model(&batch.PaymentBatch{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var batches []*batch.PaymentBatch
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&batches).Error
	return batches, total, err
}

func (r *BatchRepository) GetScheduledDue(asOf time.Time, limit int) ([]*batch.PaymentBatch, error) {
	var batches []*batch.PaymentBatch
	query := r.db.Where("status = ? AND scheduled_date IS NOT NULL AND scheduled_date <= ?",
		batch.StatusPending, asOf).
		Order("scheduled_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&batches).Error
	return batches, err
}

// TransitionStatus flips the batch status under a from-status guard, applies
// the extra column updates and writes the audit entry, all in one
// transaction. A guard miss rolls back with a conflict and leaves no trace.
func (r *BatchRepository) TransitionStatus(id, fromStatus, toStatus string, updates map[string]interface{}, entry *auditmodel.Entry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{
			"status":  toStatus,
			"version": gorm.Expr("version + 1"),
		}
		for column, value := range updates {
			values[column] = value
		}

		res := tx.Model(&batch.PaymentBatch{}).
			Where("id = ? AND status = ?", id, fromStatus).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.NewConflictError(
				fmt.Sprintf("batch %s is not in status %s", id, fromStatus),
				internal.ErrCodeInvalidTransition)
		}

		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *BatchRepository) CountPaymentsByStatus(batchID string) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&paymentmodel.Payment{}).
		Select("status, COUNT(*) AS count").
		Where("batch_id = ?", batchID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (r *BatchRepository) GetBatchPayments(batchID, status string) ([]*paymentmodel.Payment, error) {
	query := r.db.Where("batch_id = ?", batchID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var payments []*paymentmodel.Payment
	err := query.Order("created_at ASC").Find(&payments).Error
	return payments, err
}
