package postgres

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dsrph/payment-disbursement/internal"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	"github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	paymentpkg "github.com/dsrph/payment-disbursement/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

// Create inserts the payment and its creation audit entry in one
// transaction.
func (r *PaymentRepository) Create(p *payment.Payment, entry *auditmodel.Entry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if entry != nil {
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PaymentRepository) GetByID(id string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReferenceNumber(referenceNumber string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("internal_reference_number = ?", referenceNumber).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByFSPReference(fspCode, fspReference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("fsp_code = ? AND fsp_reference_number = ?", fspCode, fspReference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByHouseholdID(householdID string, limit, offset int) ([]*payment.Payment, int64, error) {
	var total int64
	if err := r.db.Model(&payment.Payment{}).Where("household_id = ?", householdID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []*payment.Payment
	err := r.db.Where("household_id = ?", householdID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	return payments, total, err
}

func (r *PaymentRepository) GetByStatus(status string, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	query := r.db.Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) GetStuckProcessing(olderThan time.Time, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	query := r.db.Where("status = ? AND updated_at < ?", payment.StatusProcessing, olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&payments).Error
	return payments, err
}

// TransitionStatus flips the status under a from-status guard, applies the
// extra column updates and writes the audit entry, all in one transaction.
// A guard miss rolls back with a conflict and leaves no trace.
func (r *PaymentRepository) TransitionStatus(id, fromStatus, toStatus string, updates map[string]interface{}, entry *auditmodel.Entry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{
			"status":  toStatus,
			"version": gorm.Expr("version + 1"),
		}
		for column, value := range updates {
			values[column] = value
		}

		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", id, fromStatus).
			Updates(values)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.NewConflictError(
				fmt.Sprintf("payment %s is not in status %s", id, fromStatus),
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
