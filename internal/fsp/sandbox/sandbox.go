// Package sandbox runs an in-process simulator of the three provider APIs so
// the rail can be exercised end to end without collaborator credentials.
// Behavior is amount-tiered: small disbursements settle immediately, large
// ones are rejected with AMOUNT_LIMIT_EXCEEDED, everything in between is
// acknowledged and settles after a hold window, with a signed webhook when a
// callback URL is configured.
package sandbox

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsrph/payment-disbursement/internal/fsp"
)

const (
	instantBelow = 1000
	rejectAbove  = 10000
)

type Options struct {
	// HoldFor is how long an acknowledged disbursement stays in flight
	// before it settles.
	HoldFor time.Duration
	// CallbackURL is the engine's webhook base; the provider code is
	// appended. Empty disables callbacks, settlement then only shows up on
	// the status endpoints.
	CallbackURL string
	// WebhookSecrets holds the plaintext signing secret per provider code.
	WebhookSecrets map[string]string
	Logger         *slog.Logger
}

type disbursement struct {
	ref        string
	clientRef  string
	provider   string
	amount     decimal.Decimal
	settled    bool
	cancelled  bool
	rejected   bool
	acceptedAt time.Time
}

// Server holds the simulator state for all three providers.
type Server struct {
	mu      sync.Mutex
	records map[string]*disbursement
	opts    Options
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Server {
	if opts.HoldFor <= 0 {
		opts.HoldFor = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		records: make(map[string]*disbursement),
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops pending settlement timers and waits for in-flight callbacks.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Routes mounts the three provider surfaces under /lbp, /bpi and /gcash;
// configuration rows point their base URLs at those prefixes.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/lbp", func(r chi.Router) {
		r.Get("/v1/ping", s.ok)
		r.Post("/v1/disbursements", s.lbpSubmit)
		r.Get("/v1/disbursements/{ref}", s.lbpStatus)
		r.Post("/v1/disbursements/{ref}/cancel", s.lbpCancel)
	})

	r.Route("/bpi", func(r chi.Router) {
		r.Get("/api/v2/health", s.ok)
		r.Post("/api/v2/fund-transfers", s.bpiSubmit)
		r.Get("/api/v2/fund-transfers/{ref}", s.bpiStatus)
		r.Post("/api/v2/fund-transfers/{ref}/void", s.bpiCancel)
	})

	r.Route("/gcash", func(r chi.Router) {
		r.Get("/status", s.ok)
		r.Post("/payouts", s.gcashSubmit)
		r.Get("/payouts/{ref}", s.gcashStatus)
		r.Post("/payouts/{ref}/cancel", s.gcashCancel)
	})

	return r
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// accept records an acknowledged disbursement and arms its settlement.
func (s *Server) accept(provider, clientRef string, amount decimal.Decimal) *disbursement {
	d := &disbursement{
		ref:        provider + "-" + strings.ToUpper(uuid.NewString()[:8]),
		clientRef:  clientRef,
		provider:   provider,
		amount:     amount,
		settled:    amount.LessThan(decimal.NewFromInt(instantBelow)),
		acceptedAt: time.Now(),
	}

	s.mu.Lock()
	s.records[d.ref] = d
	s.mu.Unlock()

	if d.settled {
		return d
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.opts.HoldFor):
			s.settle(d.ref)
		case <-s.ctx.Done():
		}
	}()

	return d
}

// settle flips an in-flight disbursement to settled and delivers the
// provider-shaped callback.
func (s *Server) settle(ref string) {
	s.mu.Lock()
	d, ok := s.records[ref]
	if !ok || d.cancelled || d.settled {
		s.mu.Unlock()
		return
	}
	d.settled = true
	clientRef, provider := d.clientRef, d.provider
	s.mu.Unlock()

	if s.opts.CallbackURL == "" {
		return
	}

	var payload []byte
	switch provider {
	case fsp.CodeLandBank:
		payload, _ = json.Marshal(map[string]string{
			"txn_ref": ref, "client_ref": clientRef, "state": "POSTED", "remarks": "credited to beneficiary account",
		})
	case fsp.CodeBPI:
		payload, _ = json.Marshal(map[string]string{
			"transactionId": ref, "merchantTransactionId": clientRef, "status": "SUCCESS", "statusDetail": "transfer settled",
		})
	case fsp.CodeGCash:
		payload, _ = json.Marshal(map[string]string{
			"payout_id": ref, "request_id": clientRef, "status": "SUCCESS", "message": "wallet credited",
		})
	}

	s.deliverCallback(provider, payload)
}

func (s *Server) deliverCallback(provider string, payload []byte) {
	url := strings.TrimSuffix(s.opts.CallbackURL, "/") + "/" + provider

	ctx, cancelReq := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancelReq()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("sandbox callback request build failed", "provider", provider, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := s.opts.WebhookSecrets[provider]; secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.logger.Warn("sandbox callback undelivered", "provider", provider, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	s.logger.Info("sandbox callback delivered", "provider", provider, "status_code", resp.StatusCode)
}

// lookup returns the record, lazily settling in-flight disbursements whose
// hold has elapsed so the status endpoints progress without callbacks.
func (s *Server) lookup(ref string) (*disbursement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[ref]
	if !ok {
		return nil, false
	}
	if !d.settled && !d.cancelled && time.Since(d.acceptedAt) > s.opts.HoldFor {
		d.settled = true
	}
	return d, true
}

func (s *Server) cancelRecord(ref string) (*disbursement, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.records[ref]
	if !ok {
		return nil, "NOT_FOUND"
	}
	if d.settled {
		return d, "CANNOT_CANCEL_COMPLETED"
	}
	d.cancelled = true
	return d, ""
}

func requireBearer(w http.ResponseWriter, r *http.Request) bool {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// ---- LBP wire ----

func (s *Server) lbpSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	var req struct {
		ClientRef      string `json:"client_ref"`
		AmountCentavos int64  `json:"amount_centavos"`
		Currency       string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_code": "MALFORMED_REQUEST"})
		return
	}
	amount := decimal.NewFromInt(req.AmountCentavos).Div(decimal.NewFromInt(100))

	if req.Currency != "" && req.Currency != "PHP" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"state": "REJECTED", "error_code": "UNSUPPORTED_CURRENCY", "remarks": "only PHP is supported",
		})
		return
	}
	if amount.GreaterThan(decimal.NewFromInt(rejectAbove)) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"state": "REJECTED", "error_code": "AMOUNT_LIMIT_EXCEEDED", "remarks": "amount exceeds daily limit",
		})
		return
	}

	d := s.accept(fsp.CodeLandBank, req.ClientRef, amount)
	state, remarks := "ACCEPTED", "queued for posting"
	if d.settled {
		state, remarks = "POSTED", "credited to beneficiary account"
	}
	writeJSON(w, http.StatusCreated, map[string]string{"txn_ref": d.ref, "state": state, "remarks": remarks})
}

func (s *Server) lbpStatus(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, ok := s.lookup(chi.URLParam(r, "ref"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"txn_ref": d.ref, "state": s.lbpState(d), "remarks": ""})
}

func (s *Server) lbpCancel(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, errCode := s.cancelRecord(chi.URLParam(r, "ref"))
	switch errCode {
	case "NOT_FOUND":
		writeJSON(w, http.StatusNotFound, map[string]string{"error_code": errCode})
	case "":
		writeJSON(w, http.StatusOK, map[string]string{"txn_ref": d.ref, "state": "CANCELLED", "remarks": "disbursement cancelled"})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"txn_ref": d.ref, "state": "POSTED", "error_code": errCode})
	}
}

func (s *Server) lbpState(d *disbursement) string {
	switch {
	case d.cancelled:
		return "CANCELLED"
	case d.settled:
		return "POSTED"
	default:
		return "IN_PROCESS"
	}
}

// ---- BPI wire ----

func (s *Server) bpiSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	var req struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
		Amount                string `json:"amount"`
		CurrencyCode          string `json:"currencyCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reasonCode": "MALFORMED_REQUEST"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reasonCode": "INVALID_AMOUNT"})
		return
	}

	if amount.GreaterThan(decimal.NewFromInt(rejectAbove)) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "FAILED", "reasonCode": "AMOUNT_LIMIT_EXCEEDED", "statusDetail": "amount exceeds daily limit",
		})
		return
	}

	d := s.accept(fsp.CodeBPI, req.MerchantTransactionID, amount)
	status, detail := "RECEIVED", "transfer received"
	if d.settled {
		status, detail = "SUCCESS", "transfer settled"
	}
	writeJSON(w, http.StatusCreated, map[string]string{"transactionId": d.ref, "status": status, "statusDetail": detail})
}

func (s *Server) bpiStatus(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, ok := s.lookup(chi.URLParam(r, "ref"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"reasonCode": "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transactionId": d.ref, "status": s.bpiState(d), "statusDetail": ""})
}

func (s *Server) bpiCancel(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, errCode := s.cancelRecord(chi.URLParam(r, "ref"))
	switch errCode {
	case "NOT_FOUND":
		writeJSON(w, http.StatusNotFound, map[string]string{"reasonCode": errCode})
	case "":
		writeJSON(w, http.StatusOK, map[string]string{"transactionId": d.ref, "status": "VOIDED", "statusDetail": "transfer voided"})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"transactionId": d.ref, "status": "SUCCESS", "reasonCode": errCode})
	}
}

func (s *Server) bpiState(d *disbursement) string {
	switch {
	case d.cancelled:
		return "VOIDED"
	case d.settled:
		return "SUCCESS"
	default:
		return "PROCESSING"
	}
}

// ---- GCash wire ----

func (s *Server) gcashSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	var req struct {
		RequestID    string `json:"request_id"`
		Amount       string `json:"amount"`
		PayoutType   string `json:"payout_type"`
		MobileNumber string `json:"mobile_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"failure_code": "MALFORMED_REQUEST"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"failure_code": "INVALID_AMOUNT"})
		return
	}

	if req.PayoutType == "WALLET_CREDIT" && req.MobileNumber == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "FAILED", "failure_code": "MOBILE_REQUIRED", "message": "wallet credits need a mobile number",
		})
		return
	}
	if amount.GreaterThan(decimal.NewFromInt(rejectAbove)) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "FAILED", "failure_code": "AMOUNT_LIMIT_EXCEEDED", "message": "amount exceeds daily limit",
		})
		return
	}

	d := s.accept(fsp.CodeGCash, req.RequestID, amount)
	status, msg := "QUEUED", "payout queued"
	if d.settled {
		status, msg = "SUCCESS", "wallet credited"
	}
	writeJSON(w, http.StatusCreated, map[string]string{"payout_id": d.ref, "status": status, "message": msg})
}

func (s *Server) gcashStatus(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, ok := s.lookup(chi.URLParam(r, "ref"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"failure_code": "NOT_FOUND"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payout_id": d.ref, "status": s.gcashState(d), "message": ""})
}

func (s *Server) gcashCancel(w http.ResponseWriter, r *http.Request) {
	if !requireBearer(w, r) {
		return
	}
	d, errCode := s.cancelRecord(chi.URLParam(r, "ref"))
	switch errCode {
	case "NOT_FOUND":
		writeJSON(w, http.StatusNotFound, map[string]string{"failure_code": errCode})
	case "":
		writeJSON(w, http.StatusOK, map[string]string{"payout_id": d.ref, "status": "CANCELLED", "message": "payout cancelled"})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"payout_id": d.ref, "status": "SUCCESS", "failure_code": errCode})
	}
}

func (s *Server) gcashState(d *disbursement) string {
	switch {
	case d.cancelled:
		return "CANCELLED"
	case d.settled:
		return "SUCCESS"
	default:
		return "PROCESSING"
	}
}
