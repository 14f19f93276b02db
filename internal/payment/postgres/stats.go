package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"

	paymentpkg "github.com/dsrph/payment-disbursement/internal/payment"
)

// StatsRepository serves the reporting aggregates with raw SQL over the same
// connection pool the gorm repositories use.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) paymentpkg.StatsRepositoryAPI {
	return &StatsRepository{
		db: db,
	}
}

func (r *StatsRepository) CountByStatus() ([]paymentpkg.StatusStatistics, error) {
	stats := []paymentpkg.StatusStatistics{}
	err := r.db.Select(&stats, `
		SELECT status,
		       COUNT(*) AS count,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		GROUP BY status
		ORDER BY status ASC`)
	return stats, err
}

func (r *StatsRepository) CountByFSP() ([]paymentpkg.FSPStatistics, error) {
	stats := []paymentpkg.FSPStatistics{}
	err := r.db.Select(&stats, `
		SELECT fsp_code,
		       COUNT(*) AS count,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		WHERE fsp_code IS NOT NULL
		GROUP BY fsp_code
		ORDER BY fsp_code ASC`)
	return stats, err
}

func (r *StatsRepository) DailyVolume(since time.Time) ([]paymentpkg.DailyVolume, error) {
	volume := []paymentpkg.DailyVolume{}
	query := r.db.Rebind(`
		SELECT CAST(DATE(created_at) AS TEXT) AS date,
		       COUNT(*) AS count,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM payments
		WHERE created_at >= ?
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at) ASC`)
	err := r.db.Select(&volume, query, since)
	return volume, err
}
