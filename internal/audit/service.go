package audit

import (
	"log/slog"
	"time"

	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
)

type RepositoryAPI interface {
	Append(entry *auditmodel.Entry) error
	GetByPaymentID(paymentID string) ([]*auditmodel.Entry, error)
	GetByBatchID(batchID string) ([]*auditmodel.Entry, error)
}

// EntryResponse is the read shape of one audit record.
type EntryResponse struct {
	ID        int64     `json:"id"`
	PaymentID *string   `json:"payment_id,omitempty"`
	BatchID   *string   `json:"batch_id,omitempty"`
	EventType string    `json:"event_type"`
	OldStatus *string   `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(e *auditmodel.Entry) EntryResponse {
	return EntryResponse{
		ID:        e.ID,
		PaymentID: e.PaymentID,
		BatchID:   e.BatchID,
		EventType: e.EventType,
		OldStatus: e.OldStatus,
		NewStatus: e.NewStatus,
		Reason:    e.Reason,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt,
	}
}

// Service reads the trail. Writes happen inside the payment and batch
// repositories so they share the transaction of the transition they record.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) TrailForPayment(paymentID string) ([]EntryResponse, error) {
	entries, err := s.repo.GetByPaymentID(paymentID)
	if err != nil {
		s.logger.Error("failed to load payment audit trail", "payment_id", paymentID, "error", err)
		return nil, err
	}

	responses := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, toResponse(e))
	}
	return responses, nil
}

func (s *Service) TrailForBatch(batchID string) ([]EntryResponse, error) {
	entries, err := s.repo.GetByBatchID(batchID)
	if err != nil {
		s.logger.Error("failed to load batch audit trail", "batch_id", batchID, "error", err)
		return nil, err
	}

	responses := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, toResponse(e))
	}
	return responses, nil
}

// Record appends one standalone entry outside a repository transaction, for
// events that have no accompanying row change.
func (s *Service) Record(entry *auditmodel.Entry) error {
	if err := s.repo.Append(entry); err != nil {
		s.logger.Error("failed to append audit entry", "event_type", entry.EventType, "error", err)
		return err
	}
	return nil
}
