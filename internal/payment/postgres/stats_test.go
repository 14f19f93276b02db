package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	paymentmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/payment"
	paymentpkg "github.com/dsrph/payment-disbursement/internal/payment"
)

var _ = ginkgo.Describe("StatsRepository", func() {
	var (
		db      *gorm.DB
		stats   paymentpkg.StatsRepositoryAPI
		statSeq int
	)

	seed := func(status string, amount float64, fspCode *string, createdAt time.Time) {
		statSeq++
		p := &paymentmodel.Payment{
			ID:                      fmt.Sprintf("9d8c7b6a-0000-4000-8000-%012d", statSeq),
			InternalReferenceNumber: fmt.Sprintf("PAY-2026-9%05d", statSeq),
			HouseholdID:             "HH-2026-000123",
			ProgramName:             "4Ps Regular Cash Grant",
			Amount:                  decimal.NewFromFloat(amount),
			Currency:                "PHP",
			PaymentMethod:           paymentmodel.MethodBankTransfer,
			RecipientAccountNumber:  "0012345678",
			RecipientAccountName:    "Juan Dela Cruz",
			Status:                  status,
			FSPCode:                 fspCode,
			CreatedBy:               "planner",
			CreatedAt:               createdAt,
		}
		gomega.Expect(db.Create(p).Error).ToNot(gomega.HaveOccurred())
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&paymentmodel.Payment{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// Pin the pool to one connection so sqlx sees the same in-memory
		// database gorm migrated.
		sqlDB, err := db.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB.SetMaxOpenConns(1)

		stats = NewStatsRepository(sqlx.NewDb(sqlDB, "sqlite3"))
	})

	ginkgo.Describe("CountByStatus", func() {
		ginkgo.It("should aggregate counts and totals per status", func() {
			// Given
			now := time.Now().UTC()
			seed(paymentmodel.StatusCompleted, 1400.00, nil, now)
			seed(paymentmodel.StatusCompleted, 1400.00, nil, now)
			seed(paymentmodel.StatusPending, 500.00, nil, now)

			// When
			rows, err := stats.CountByStatus()

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.HaveLen(2))
			gomega.Expect(rows[0].Status).To(gomega.Equal(paymentmodel.StatusCompleted))
			gomega.Expect(rows[0].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(rows[0].TotalAmount.Equal(decimal.NewFromFloat(2800.00))).To(gomega.BeTrue())
			gomega.Expect(rows[1].Status).To(gomega.Equal(paymentmodel.StatusPending))
			gomega.Expect(rows[1].Count).To(gomega.Equal(int64(1)))
		})

		ginkgo.It("should return an empty slice on an empty table", func() {
			rows, err := stats.CountByStatus()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("CountByFSP", func() {
		ginkgo.It("should cover only payments that reached a provider", func() {
			now := time.Now().UTC()
			landbank, gcash := "LANDBANK", "GCASH"
			seed(paymentmodel.StatusCompleted, 1400.00, &landbank, now)
			seed(paymentmodel.StatusProcessing, 1400.00, &landbank, now)
			seed(paymentmodel.StatusCompleted, 800.00, &gcash, now)
			seed(paymentmodel.StatusPending, 500.00, nil, now)

			rows, err := stats.CountByFSP()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.HaveLen(2))
			gomega.Expect(rows[0].FSPCode).To(gomega.Equal("GCASH"))
			gomega.Expect(rows[0].Count).To(gomega.Equal(int64(1)))
			gomega.Expect(rows[1].FSPCode).To(gomega.Equal("LANDBANK"))
			gomega.Expect(rows[1].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(rows[1].TotalAmount.Equal(decimal.NewFromFloat(2800.00))).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("DailyVolume", func() {
		ginkgo.It("should bucket by calendar day inside the window", func() {
			// Given two payments today, one yesterday and one outside the window
			today := time.Now().UTC()
			yesterday := today.Add(-24 * time.Hour)
			seed(paymentmodel.StatusCompleted, 1400.00, nil, today)
			seed(paymentmodel.StatusPending, 500.00, nil, today)
			seed(paymentmodel.StatusCompleted, 1400.00, nil, yesterday)
			seed(paymentmodel.StatusCompleted, 1400.00, nil, today.AddDate(0, 0, -10))

			// When
			rows, err := stats.DailyVolume(today.AddDate(0, 0, -3))

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.HaveLen(2))
			gomega.Expect(rows[0].Date).To(gomega.Equal(yesterday.Format("2006-01-02")))
			gomega.Expect(rows[0].Count).To(gomega.Equal(int64(1)))
			gomega.Expect(rows[1].Date).To(gomega.Equal(today.Format("2006-01-02")))
			gomega.Expect(rows[1].Count).To(gomega.Equal(int64(2)))
			gomega.Expect(rows[1].TotalAmount.Equal(decimal.NewFromFloat(1900.00))).To(gomega.BeTrue())
		})
	})
})
