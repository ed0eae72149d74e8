package item

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		ctx     context.Context
		tmpDir  string
		storage ImageStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Put", func() {
		var (
			name string
			data []byte
			ref  string
			err  error
		)

		BeforeEach(func() {
			name = "test.jpg"
			data = []byte("test file content")
		})

		JustBeforeEach(func() {
			ref, err = storage.Put(ctx, name, data)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the absolute path inside the base directory", func() {
				Expect(filepath.IsAbs(ref)).To(BeTrue())
				Expect(filepath.Base(ref)).To(Equal("test.jpg"))
			})

			It("should save the file to disk", func() {
				Expect(filepath.Join(tmpDir, name)).To(BeAnExistingFile())
			})

			It("should not leave temporary files behind", func() {
				entries, readErr := os.ReadDir(tmpDir)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		When("the name carries directories", func() {
			BeforeEach(func() {
				name = "../../escape.jpg"
			})

			It("should store the file in the base directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(filepath.Join(tmpDir, "escape.jpg")).To(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		var (
			ref  string
			data []byte
			err  error
		)

		JustBeforeEach(func() {
			data, err = storage.Get(ctx, ref)
		})

		When("file exists", func() {
			BeforeEach(func() {
				var putErr error
				ref, putErr = storage.Put(ctx, "test.jpg", []byte("test file content"))
				Expect(putErr).NotTo(HaveOccurred())
			})

			It("should return the correct file data", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("test file content"))
			})
		})

		When("file does not exist", func() {
			BeforeEach(func() {
				ref = filepath.Join(tmpDir, "nonexistent.jpg")
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the reference points outside the base directory", func() {
			BeforeEach(func() {
				ref = "/etc/passwd"
			})

			It("should refuse it", func() {
				Expect(err).To(MatchError(ContainSubstring("outside storage")))
			})
		})
	})

	Describe("Delete", func() {
		var (
			ref string
			err error
		)

		BeforeEach(func() {
			var putErr error
			ref, putErr = storage.Put(ctx, "test.jpg", []byte("test file content"))
			Expect(putErr).NotTo(HaveOccurred())
		})

		JustBeforeEach(func() {
			err = storage.Delete(ctx, ref)
		})

		It("should remove the file", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(ref).NotTo(BeAnExistingFile())
		})
	})
})

var _ = Describe("S3Storage", func() {
	Describe("NewS3Storage", func() {
		var cfg S3Config

		BeforeEach(func() {
			cfg = S3Config{
				Endpoint:  "localhost:9000",
				AccessKey: "access",
				SecretKey: "secret",
				Bucket:    "scans",
			}
		})

		It("should build a client from a complete config", func() {
			s, err := NewS3Storage(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.region).To(Equal("us-east-1"))
		})

		It("should require an endpoint", func() {
			cfg.Endpoint = ""
			_, err := NewS3Storage(cfg)
			Expect(err).To(MatchError(ContainSubstring("endpoint is required")))
		})

		It("should require credentials", func() {
			cfg.SecretKey = " "
			_, err := NewS3Storage(cfg)
			Expect(err).To(MatchError(ContainSubstring("secret key are required")))
		})

		It("should require a bucket", func() {
			cfg.Bucket = ""
			_, err := NewS3Storage(cfg)
			Expect(err).To(MatchError(ContainSubstring("bucket is required")))
		})
	})

	Describe("references", func() {
		var s *S3Storage

		BeforeEach(func() {
			var err error
			s, err = NewS3Storage(S3Config{
				Endpoint:  "localhost:9000",
				AccessKey: "access",
				SecretKey: "secret",
				Bucket:    "scans",
				Prefix:    "/images/",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should prefix object keys", func() {
			Expect(s.objectKey("a.jpg")).To(Equal("images/a.jpg"))
		})

		It("should parse its own references", func() {
			key, err := s.parseRef("s3://scans/images/a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("images/a.jpg"))
		})

		DescribeTable("rejecting references",
			func(ref string) {
				_, err := s.parseRef(ref)
				Expect(err).To(HaveOccurred())
			},
			Entry("local path", "/tmp/a.jpg"),
			Entry("missing key", "s3://scans"),
			Entry("empty key", "s3://scans/"),
			Entry("other bucket", "s3://other/a.jpg"),
		)
	})
})
