package item

import (
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltKV", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltKV
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltKV(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("Load", func() {
		When("the key was never written", func() {
			It("should return nil without an error", func() {
				data, err := db.Load("missing")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(BeNil())
			})
		})

		When("the key holds a value", func() {
			BeforeEach(func() {
				Expect(db.Update("key", func([]byte) ([]byte, error) {
					return []byte("value"), nil
				})).To(Succeed())
			})

			It("should return the value", func() {
				data, err := db.Load("key")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("value"))
			})
		})
	})

	Describe("Update", func() {
		BeforeEach(func() {
			Expect(db.Update("key", func([]byte) ([]byte, error) {
				return []byte("first"), nil
			})).To(Succeed())
		})

		It("should pass the current value to fn", func() {
			var seen string
			Expect(db.Update("key", func(current []byte) ([]byte, error) {
				seen = string(current)
				return append(append([]byte{}, current...), "-second"...), nil
			})).To(Succeed())

			Expect(seen).To(Equal("first"))
			data, err := db.Load("key")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("first-second"))
		})

		When("fn fails", func() {
			It("should return the error and keep the previous value", func() {
				err := db.Update("key", func([]byte) ([]byte, error) {
					return nil, errors.New("boom")
				})
				Expect(err).To(MatchError("boom"))

				data, err := db.Load("key")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("first"))
			})
		})

		When("fn returns nil", func() {
			It("should remove the key", func() {
				Expect(db.Update("key", func([]byte) ([]byte, error) {
					return nil, nil
				})).To(Succeed())

				data, err := db.Load("key")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(BeNil())
			})
		})
	})

	Describe("Delete", func() {
		It("should remove an existing key", func() {
			Expect(db.Update("key", func([]byte) ([]byte, error) {
				return []byte("value"), nil
			})).To(Succeed())

			Expect(db.Delete("key")).To(Succeed())

			data, err := db.Load("key")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(BeNil())
		})

		It("should not fail for a missing key", func() {
			Expect(db.Delete("missing")).To(Succeed())
		})
	})

	When("the database is reopened", func() {
		It("should keep what was written", func() {
			Expect(db.Update("key", func([]byte) ([]byte, error) {
				return []byte("durable"), nil
			})).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltKV(dbPath)
			Expect(err).NotTo(HaveOccurred())

			data, err := db.Load("key")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("durable"))
		})
	})
})
