package secrets_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

func TestSecrets(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Secrets Suite")
}

var _ = Describe("Cipher", func() {
	var cipher *secrets.Cipher

	BeforeEach(func() {
		key, err := secrets.GenerateKey()
		Expect(err).NotTo(HaveOccurred())

		cipher, err = secrets.NewCipher(key)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Seal and Open", func() {
		It("should round-trip credentials", func() {
			sealed, err := cipher.Seal("lbp-sandbox-api-key")
			Expect(err).NotTo(HaveOccurred())
			Expect(sealed).NotTo(ContainSubstring("lbp-sandbox-api-key"))

			opened, err := cipher.Open(sealed)
			Expect(err).NotTo(HaveOccurred())
			Expect(opened).To(Equal("lbp-sandbox-api-key"))
		})

		It("should produce distinct ciphertexts for the same plaintext", func() {
			first, err := cipher.Seal("same-secret")
			Expect(err).NotTo(HaveOccurred())

			second, err := cipher.Seal("same-secret")
			Expect(err).NotTo(HaveOccurred())

			Expect(first).NotTo(Equal(second))
		})

		It("should reject tampered ciphertext", func() {
			sealed, err := cipher.Seal("gcash-secret")
			Expect(err).NotTo(HaveOccurred())

			_, err = cipher.Open("AAAA" + sealed[4:])
			Expect(err).To(MatchError(secrets.ErrInvalidCiphertext))
		})

		It("should reject garbage input", func() {
			_, err := cipher.Open("not-base64!!!")
			Expect(err).To(MatchError(secrets.ErrInvalidCiphertext))
		})
	})

	Describe("NewCipher", func() {
		It("should reject keys of the wrong size", func() {
			_, err := secrets.NewCipher("dG9vLXNob3J0")
			Expect(err).To(HaveOccurred())
		})
	})
})
