package fsp

import (
	"log/slog"

	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

type ConfigRepositoryAPI interface {
	GetActive() ([]*fspmodel.FSPConfiguration, error)
	GetByCode(code string) (*fspmodel.FSPConfiguration, error)
	GetAll() ([]*fspmodel.FSPConfiguration, error)
	Upsert(cfg *fspmodel.FSPConfiguration) error
}

// BuildAdapter constructs the adapter implementation for a configuration row.
// Unknown codes return nil; the caller decides whether that is fatal.
func BuildAdapter(cfg *fspmodel.FSPConfiguration, cipher *secrets.Cipher, logger *slog.Logger) Adapter {
	switch cfg.FSPCode {
	case CodeLandBank:
		return NewLandBankAdapter(cfg, cipher, logger)
	case CodeBPI:
		return NewBPIAdapter(cfg, cipher, logger)
	case CodeGCash:
		return NewGCashAdapter(cfg, cipher, logger)
	default:
		return nil
	}
}

// LoadRegistry builds a registry from all active provider configurations.
// Rows without a matching adapter are skipped with a warning so one unknown
// code cannot keep the rest of the rail down.
func LoadRegistry(repo ConfigRepositoryAPI, cipher *secrets.Cipher, logger *slog.Logger) (*Registry, error) {
	configs, err := repo.GetActive()
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(logger)
	for _, cfg := range configs {
		adapter := BuildAdapter(cfg, cipher, logger)
		if adapter == nil {
			logger.Warn("no adapter for configured provider, skipping", "fsp_code", cfg.FSPCode)
			continue
		}
		if err := registry.Register(adapter, cfg); err != nil {
			logger.Error("provider configuration rejected", "fsp_code", cfg.FSPCode, "error", err)
			continue
		}
		logger.Info("provider registered", "fsp_code", cfg.FSPCode, "base_url", cfg.APIBaseURL)
	}
	return registry, nil
}
