package main_test

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OpenAPI contract", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		loader := openapi3.NewLoader()
		var err error
		doc, err = loader.LoadFromFile("api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("is a valid OpenAPI 3 document", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("describes the payment operations", func() {
		payments := doc.Paths.Value("/payments")
		Expect(payments).NotTo(BeNil())
		Expect(payments.Post).NotTo(BeNil())

		byID := doc.Paths.Value("/payments/{paymentId}")
		Expect(byID).NotTo(BeNil())
		Expect(byID.Get).NotTo(BeNil())

		for _, path := range []string{
			"/payments/{paymentId}/process",
			"/payments/{paymentId}/cancel",
			"/payments/{paymentId}/retry",
			"/payments/{paymentId}/check-status",
		} {
			item := doc.Paths.Value(path)
			Expect(item).NotTo(BeNil(), path)
			Expect(item.Post).NotTo(BeNil(), path)
		}

		status := doc.Paths.Value("/payments/{paymentId}/status")
		Expect(status).NotTo(BeNil())
		Expect(status.Patch).NotTo(BeNil())

		for _, path := range []string{
			"/payments/statistics",
			"/payments/statistics/fsp",
			"/payments/statistics/daily",
			"/payments/reference/{referenceNumber}",
			"/payments/household/{householdId}",
			"/payments/{paymentId}/audit",
		} {
			item := doc.Paths.Value(path)
			Expect(item).NotTo(BeNil(), path)
			Expect(item.Get).NotTo(BeNil(), path)
		}
	})

	It("describes the batch operations", func() {
		batches := doc.Paths.Value("/batches")
		Expect(batches).NotTo(BeNil())
		Expect(batches.Post).NotTo(BeNil())
		Expect(batches.Get).NotTo(BeNil())

		for _, path := range []string{
			"/batches/{batchId}/start",
			"/batches/{batchId}/retry-failed",
			"/batches/{batchId}/pause",
			"/batches/{batchId}/resume",
			"/batches/{batchId}/cancel",
		} {
			item := doc.Paths.Value(path)
			Expect(item).NotTo(BeNil(), path)
			Expect(item.Post).NotTo(BeNil(), path)
		}

		for _, path := range []string{
			"/batches/{batchId}",
			"/batches/number/{batchNumber}",
			"/batches/{batchId}/payments",
			"/batches/{batchId}/progress",
			"/batches/{batchId}/report",
			"/batches/{batchId}/audit",
		} {
			item := doc.Paths.Value(path)
			Expect(item).NotTo(BeNil(), path)
			Expect(item.Get).NotTo(BeNil(), path)
		}
	})

	It("describes the provider callback", func() {
		callback := doc.Paths.Value("/payment/callback/{fspCode}")
		Expect(callback).NotTo(BeNil())
		Expect(callback.Post).NotTo(BeNil())
	})
})
