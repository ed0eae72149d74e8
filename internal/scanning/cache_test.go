package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockRecognizer is a mock implementation of Recognizer
type mockRecognizer struct {
	text   string
	err    error
	calls  int
	closed bool
}

func (m *mockRecognizer) ExtractText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockRecognizer) Close() error {
	m.closed = true
	return nil
}

var _ = Describe("CachingRecognizer", func() {
	var (
		inner  *mockRecognizer
		cached *CachingRecognizer
	)

	BeforeEach(func() {
		inner = &mockRecognizer{text: "x = 4"}
		var err error
		cached, err = NewCachingRecognizer(inner, 4)
		Expect(err).NotTo(HaveOccurred())
	})

	When("the same bytes are extracted twice", func() {
		It("calls the wrapped recognizer once", func() {
			for i := 0; i < 2; i++ {
				text, err := cached.ExtractText(context.Background(), []byte("image"), "image/png")
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal("x = 4"))
			}
			Expect(inner.calls).To(Equal(1))
		})
	})

	When("different bytes are extracted", func() {
		It("calls the wrapped recognizer for each", func() {
			_, _ = cached.ExtractText(context.Background(), []byte("one"), "image/png")
			_, _ = cached.ExtractText(context.Background(), []byte("two"), "image/png")
			Expect(inner.calls).To(Equal(2))
		})
	})

	When("the wrapped recognizer fails", func() {
		BeforeEach(func() {
			inner.err = errors.New("boom")
		})

		It("does not cache the failure", func() {
			_, err := cached.ExtractText(context.Background(), []byte("image"), "image/png")
			Expect(err).To(MatchError("boom"))

			inner.err = nil
			text, err := cached.ExtractText(context.Background(), []byte("image"), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("x = 4"))
			Expect(inner.calls).To(Equal(2))
		})
	})

	Describe("Close", func() {
		It("closes the wrapped recognizer", func() {
			Expect(cached.Close()).To(Succeed())
			Expect(inner.closed).To(BeTrue())
		})
	})
})
