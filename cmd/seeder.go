package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/dsrph/payment-disbursement/internal"
	batchpg "github.com/dsrph/payment-disbursement/internal/batch/postgres"
	auditmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/audit"
	batchmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/batch"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	"github.com/dsrph/payment-disbursement/internal/fsp"
	fsppg "github.com/dsrph/payment-disbursement/internal/fsp/postgres"
	"github.com/dsrph/payment-disbursement/internal/payment"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

const demoBatchNumber = "BATCH-2026-000001"

// providerSeed is one row of the sandbox rail. Credentials are sealed with
// the configured key before they touch the database.
type providerSeed struct {
	Code          string
	Name          string
	BaseURL       string
	APIKey        string
	APISecret     string
	WebhookSecret string
	FeeType       string
	FeeValue      decimal.Decimal
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the sandbox FSP configurations and a demo batch for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		cipher, err := secrets.NewCipher(cfg.FSP.CredentialsKey)
		if err != nil {
			log.Fatalf("fsp credentials key: %v", err)
		}

		if clearData {
			for _, table := range []string{"payment_audit_log", "payments", "payment_batches", "fsp_configurations"} {
				if err := gormDB.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		seedProviders(cfg, gormDB, cipher)
		seedDemoBatch(gormDB)
	},
}

func seedProviders(cfg *internal.Config, gormDB *gorm.DB, cipher *secrets.Cipher) {
	repo := fsppg.NewConfigRepository(gormDB)

	for _, seed := range defaultProviderSeeds() {
		// Values from config.yml win over the sandbox defaults
		if entry, ok := cfg.FSP.Providers[seed.Code]; ok {
			if entry.BaseURL != "" {
				seed.BaseURL = entry.BaseURL
			}
			if entry.APIKey != "" {
				seed.APIKey = entry.APIKey
			}
			if entry.APISecret != "" {
				seed.APISecret = entry.APISecret
			}
			if entry.WebhookSecret != "" {
				seed.WebhookSecret = entry.WebhookSecret
			}
		}

		apiKeySealed, err := cipher.Seal(seed.APIKey)
		if err != nil {
			log.Fatalf("failed to seal api key for %s: %v", seed.Code, err)
		}
		apiSecretSealed, err := cipher.Seal(seed.APISecret)
		if err != nil {
			log.Fatalf("failed to seal api secret for %s: %v", seed.Code, err)
		}
		webhookSecretSealed, err := cipher.Seal(seed.WebhookSecret)
		if err != nil {
			log.Fatalf("failed to seal webhook secret for %s: %v", seed.Code, err)
		}

		row := &fspmodel.FSPConfiguration{
			FSPCode:          seed.Code,
			Name:             seed.Name,
			APIBaseURL:       seed.BaseURL,
			APIKeySealed:     apiKeySealed,
			APISecretSealed:  apiSecretSealed,
			WebhookSecret:    webhookSecretSealed,
			ConnectTimeoutMS: 5000,
			ReadTimeoutMS:    30000,
			MaxRetryAttempts: 3,
			RetryDelayMS:     5000,
			FeeType:          seed.FeeType,
			FeeValue:         seed.FeeValue,
			MinAmount:        seed.MinAmount,
			MaxAmount:        seed.MaxAmount,
			IsActive:         true,
		}

		if err := repo.Upsert(row); err != nil {
			log.Fatalf("failed to seed provider %s: %v", seed.Code, err)
		}
		fmt.Printf("Seeded FSP configuration: %s (%s)\n", seed.Code, seed.BaseURL)
	}
}

func defaultProviderSeeds() []providerSeed {
	return []providerSeed{
		{
			Code:          fsp.CodeLandBank,
			Name:          "Land Bank of the Philippines",
			BaseURL:       "http://localhost:9201",
			APIKey:        "lbp-sandbox-key",
			APISecret:     "lbp-sandbox-secret",
			WebhookSecret: "lbp-webhook-secret",
			FeeType:       fspmodel.FeeTypeFixed,
			FeeValue:      decimal.NewFromFloat(10.00),
			MinAmount:     decimal.NewFromInt(1),
			MaxAmount:     decimal.NewFromInt(500000),
		},
		{
			Code:          fsp.CodeBPI,
			Name:          "Bank of the Philippine Islands",
			BaseURL:       "http://localhost:9202",
			APIKey:        "bpi-sandbox-key",
			APISecret:     "bpi-sandbox-secret",
			WebhookSecret: "bpi-webhook-secret",
			FeeType:       fspmodel.FeeTypeFixed,
			FeeValue:      decimal.NewFromFloat(25.00),
			MinAmount:     decimal.NewFromInt(1),
			MaxAmount:     decimal.NewFromInt(200000),
		},
		{
			Code:          fsp.CodeGCash,
			Name:          "GCash",
			BaseURL:       "http://localhost:9203",
			APIKey:        "gcash-sandbox-key",
			APISecret:     "gcash-sandbox-secret",
			WebhookSecret: "gcash-webhook-secret",
			FeeType:       fspmodel.FeeTypePercentage,
			FeeValue:      decimal.NewFromFloat(2.00),
			MinAmount:     decimal.NewFromInt(1),
			MaxAmount:     decimal.NewFromInt(50000),
		},
	}
}

func seedDemoBatch(gormDB *gorm.DB) {
	repo := batchpg.NewBatchRepository(gormDB)

	if _, err := repo.GetByBatchNumber(demoBatchNumber); err == nil {
		fmt.Println("Demo batch already exists:", demoBatchNumber)
		return
	}

	mobile := "+639171234567"
	instructions := []payment.CreatePaymentDTO{
		{
			HouseholdID:            "HH-2026-000101",
			ProgramName:            "4Ps Regular Cash Grant",
			Amount:                 decimal.NewFromFloat(1400.00),
			PaymentMethod:          paymentmodel.MethodBankTransfer,
			RecipientAccountNumber: "0012345678",
			RecipientBankCode:      "TLBPPHMM",
			RecipientAccountName:   "Juan Dela Cruz",
		},
		{
			HouseholdID:            "HH-2026-000102",
			ProgramName:            "4Ps Regular Cash Grant",
			Amount:                 decimal.NewFromFloat(4500.00),
			PaymentMethod:          paymentmodel.MethodEWallet,
			RecipientAccountNumber: "09171234567",
			RecipientAccountName:   "Maria Santos",
			RecipientMobileNumber:  &mobile,
		},
		{
			HouseholdID:            "HH-2026-000103",
			ProgramName:            "4Ps Regular Cash Grant",
			Amount:                 decimal.NewFromFloat(800.00),
			PaymentMethod:          paymentmodel.MethodCashPickup,
			RecipientAccountNumber: "PAD-2026-0103",
			RecipientAccountName:   "Pedro Reyes",
		},
	}

	b := &batchmodel.PaymentBatch{
		ID:            uuid.New().String(),
		BatchNumber:   demoBatchNumber,
		ProgramID:     "4PS-2026-Q3",
		ProgramName:   "4Ps Regular Cash Grant",
		TotalPayments: len(instructions),
		Status:        batchmodel.StatusPending,
		CreatedBy:     "seeder",
		UpdatedBy:     "seeder",
	}

	total := decimal.Zero
	payments := make([]*paymentmodel.Payment, 0, len(instructions))
	entries := []*auditmodel.Entry{
		auditmodel.ForBatch(b.ID, auditmodel.EventBatchCreated, "", batchmodel.StatusPending,
			fmt.Sprintf("Batch created with %d payments", len(instructions)), "seeder"),
	}

	for _, dto := range instructions {
		dto.BatchID = &b.ID
		p := payment.NewPaymentFromDTO(dto, "seeder")
		payments = append(payments, p)
		total = total.Add(p.Amount)
		entries = append(entries, auditmodel.ForPayment(p.ID, auditmodel.EventPaymentCreated,
			"", paymentmodel.StatusPending, "Payment created", "seeder"))
	}
	b.TotalAmount = total

	if err := repo.Create(b, payments, entries); err != nil {
		log.Fatalf("failed to seed demo batch: %v", err)
	}
	fmt.Printf("Seeded demo batch %s with %d payments (total %s PHP)\n",
		demoBatchNumber, len(payments), total.StringFixed(2))
}
