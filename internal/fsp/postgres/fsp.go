package postgres

import (
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	fsppkg "github.com/dsrph/payment-disbursement/internal/fsp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) fsppkg.ConfigRepositoryAPI {
	return &ConfigRepository{
		db: db,
	}
}

func (r *ConfigRepository) GetActive() ([]*fspmodel.FSPConfiguration, error) {
	var configs []*fspmodel.FSPConfiguration
	err := r.db.Where("is_active = ?", true).Order("created_at ASC").Find(&configs).Error
	return configs, err
}

func (r *ConfigRepository) GetByCode(code string) (*fspmodel.FSPConfiguration, error) {
	var cfg fspmodel.FSPConfiguration
	err := r.db.Where("fsp_code = ?", code).First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *ConfigRepository) GetAll() ([]*fspmodel.FSPConfiguration, error) {
	var configs []*fspmodel.FSPConfiguration
	err := r.db.Order("created_at ASC").Find(&configs).Error
	return configs, err
}

func (r *ConfigRepository) Upsert(cfg *fspmodel.FSPConfiguration) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fsp_code"}},
		UpdateAll: true,
	}).Create(cfg).Error
}
