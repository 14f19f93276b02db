package fsp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
)

// HealthStatus is one adapter's entry in the health snapshot.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// Registry owns the registered adapters and their configurations, and is the
// single routing decision point. Health is read from a snapshot the periodic
// monitor swaps in whole; request paths never probe a provider directly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	configs  map[string]*fspmodel.FSPConfiguration
	order    []string

	health atomic.Value // map[string]HealthStatus

	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		configs:  make(map[string]*fspmodel.FSPConfiguration),
		logger:   logger,
	}
	r.health.Store(map[string]HealthStatus{})
	return r
}

// Register adds or replaces an adapter keyed by its code, after the adapter
// accepts the configuration. A replaced adapter keeps its original
// registration position so fee-tie routing stays stable across refreshes.
// The new entry starts healthy until the first probe says otherwise.
func (r *Registry) Register(adapter Adapter, cfg *fspmodel.FSPConfiguration) error {
	if err := adapter.ValidateConfiguration(cfg); err != nil {
		return err
	}

	code := adapter.FSPCode()

	r.mu.Lock()
	if _, exists := r.adapters[code]; !exists {
		r.order = append(r.order, code)
	}
	r.adapters[code] = adapter
	r.configs[code] = cfg
	r.mu.Unlock()

	snapshot := r.snapshot()
	if _, seen := snapshot[code]; !seen {
		next := cloneSnapshot(snapshot)
		next[code] = HealthStatus{Healthy: true, Message: "registered, awaiting first probe", CheckedAt: time.Now()}
		r.health.Store(next)
	}

	r.logger.Info("fsp adapter registered", "fsp_code", code, "methods", adapter.SupportedPaymentMethods())
	return nil
}

// Get returns the adapter for a code.
func (r *Registry) Get(code string) (Adapter, error) {
	r.mu.RLock()
	adapter, exists := r.adapters[code]
	r.mu.RUnlock()

	if !exists {
		return nil, internal.NewNotFoundError(fmt.Sprintf("FSP service %s not found", code), internal.ErrCodeFSPNotFound)
	}
	return adapter, nil
}

// ConfigFor returns the configuration registered with an adapter.
func (r *Registry) ConfigFor(code string) (*fspmodel.FSPConfiguration, error) {
	r.mu.RLock()
	cfg, exists := r.configs[code]
	r.mu.RUnlock()

	if !exists {
		return nil, internal.NewNotFoundError(fmt.Sprintf("FSP service %s not found", code), internal.ErrCodeFSPNotFound)
	}
	return cfg, nil
}

// Codes returns the registered codes in registration order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GetBestFSP picks the cheapest healthy adapter that carries the method and
// accepts the amount. Equal fees resolve to the earliest-registered adapter,
// so repeated calls with the same inputs return the same provider.
func (r *Registry) GetBestFSP(paymentMethod string, amount decimal.Decimal) (Adapter, error) {
	r.mu.RLock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	adapters := make(map[string]Adapter, len(r.adapters))
	for code, a := range r.adapters {
		adapters[code] = a
	}
	r.mu.RUnlock()

	snapshot := r.snapshot()

	var best Adapter
	var bestFee decimal.Decimal

	for _, code := range order {
		adapter := adapters[code]
		if status, ok := snapshot[code]; !ok || !status.Healthy {
			continue
		}
		if !SupportsMethod(adapter, paymentMethod) {
			continue
		}
		if !adapter.SupportsAmount(amount) {
			continue
		}

		fee := adapter.TransactionFee(amount, paymentMethod)
		if best == nil || fee.LessThan(bestFee) {
			best = adapter
			bestFee = fee
		}
	}

	if best == nil {
		return nil, internal.ErrNoSuitableProvider
	}

	r.logger.Debug("routing decision",
		"fsp_code", best.FSPCode(), "payment_method", paymentMethod, "amount", amount.String(), "fee", bestFee.String())
	return best, nil
}

// SubmitPayment delegates to the named adapter, failing fast when the health
// snapshot marks it down instead of burning a timeout on a dead provider.
func (r *Registry) SubmitPayment(ctx context.Context, code string, req *SubmitRequest) (*ProviderResponse, error) {
	adapter, cfg, err := r.healthyAdapter(code)
	if err != nil {
		return nil, err
	}
	return adapter.SubmitPayment(ctx, req, cfg)
}

func (r *Registry) CheckPaymentStatus(ctx context.Context, code, fspReference string) (*ProviderResponse, error) {
	adapter, cfg, err := r.healthyAdapter(code)
	if err != nil {
		return nil, err
	}
	return adapter.CheckPaymentStatus(ctx, fspReference, cfg)
}

func (r *Registry) CancelPayment(ctx context.Context, code, fspReference string) (*ProviderResponse, error) {
	adapter, cfg, err := r.healthyAdapter(code)
	if err != nil {
		return nil, err
	}
	return adapter.CancelPayment(ctx, fspReference, cfg)
}

func (r *Registry) healthyAdapter(code string) (Adapter, *fspmodel.FSPConfiguration, error) {
	adapter, err := r.Get(code)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := r.ConfigFor(code)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsHealthy(code) {
		return nil, nil, internal.NewServiceUnavailableError(
			fmt.Sprintf("FSP %s is currently unhealthy", code), internal.ErrCodeFSPUnhealthy)
	}
	return adapter, cfg, nil
}

// IsHealthy reads the cached snapshot; it never probes.
func (r *Registry) IsHealthy(code string) bool {
	status, ok := r.snapshot()[code]
	return ok && status.Healthy
}

// HealthSnapshot returns the current snapshot for reporting.
func (r *Registry) HealthSnapshot() map[string]HealthStatus {
	return cloneSnapshot(r.snapshot())
}

// PerformHealthCheck probes every adapter and swaps in a fresh snapshot in
// one store, so readers always see a complete, consistent view.
func (r *Registry) PerformHealthCheck(ctx context.Context) {
	r.mu.RLock()
	codes := make([]string, len(r.order))
	copy(codes, r.order)
	adapters := make(map[string]Adapter, len(r.adapters))
	configs := make(map[string]*fspmodel.FSPConfiguration, len(r.configs))
	for code, a := range r.adapters {
		adapters[code] = a
		configs[code] = r.configs[code]
	}
	r.mu.RUnlock()

	next := make(map[string]HealthStatus, len(codes))

	for _, code := range codes {
		adapter := adapters[code]
		cfg := configs[code]

		if !cfg.IsActive {
			next[code] = HealthStatus{Healthy: false, Message: "deactivated by configuration", CheckedAt: time.Now()}
			continue
		}

		start := time.Now()
		err := adapter.TestConnection(ctx, cfg)
		latency := time.Since(start).Milliseconds()

		status := HealthStatus{Healthy: err == nil, LatencyMS: latency, CheckedAt: time.Now()}
		if err != nil {
			status.Message = err.Error()
			r.logger.Warn("fsp health probe failed", "fsp_code", code, "latency_ms", latency, "error", err)
		}
		next[code] = status
	}

	r.health.Store(next)
}

func (r *Registry) snapshot() map[string]HealthStatus {
	return r.health.Load().(map[string]HealthStatus)
}

func cloneSnapshot(in map[string]HealthStatus) map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(in))
	for code, status := range in {
		out[code] = status
	}
	return out
}
