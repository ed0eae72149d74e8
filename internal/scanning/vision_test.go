package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scan-insight/internal/fault"
)

type annotateBody struct {
	Requests []struct {
		Image struct {
			Content string `json:"content"`
		} `json:"image"`
		Features []struct {
			Type string `json:"type"`
		} `json:"features"`
	} `json:"requests"`
}

var _ = Describe("NewVision", func() {
	It("requires an API key", func() {
		_, err := NewVision(context.Background(), Config{})
		Expect(err).To(MatchError("vision api key is required"))
	})
})

var _ = Describe("Vision", func() {
	var (
		server     *ghttp.Server
		recognizer *Vision
		imageData  []byte
		text       string
		err        error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		imageData = []byte("fake png bytes")

		var newErr error
		recognizer, newErr = NewVision(context.Background(), Config{
			APIKey:   "test-key",
			Endpoint: server.URL() + "/",
			Timeout:  200 * time.Millisecond,
		})
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = recognizer.ExtractText(context.Background(), imageData, "image/png")
	})

	When("the service finds text", func() {
		var received annotateBody

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/images:annotate"),
				func(w http.ResponseWriter, r *http.Request) {
					Expect(r.URL.Query().Get("key")).To(Equal("test-key"))
					Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"responses": []map[string]any{{
						"fullTextAnnotation": map[string]any{"text": "2+3=?\n"},
					}},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the trimmed full text", func() {
			Expect(text).To(Equal("2+3=?"))
		})

		It("sends the image base64 encoded", func() {
			Expect(received.Requests).To(HaveLen(1))
			Expect(received.Requests[0].Image.Content).To(Equal(base64.StdEncoding.EncodeToString(imageData)))
		})

		It("requests text detection", func() {
			Expect(received.Requests[0].Features).To(HaveLen(1))
			Expect(received.Requests[0].Features[0].Type).To(Equal("TEXT_DETECTION"))
		})
	})

	When("only word annotations are present", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"responses": []map[string]any{{
					"textAnnotations": []map[string]any{{"description": "Photosynthesis"}},
				}},
			}))
		})

		It("falls back to the first annotation", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Photosynthesis"))
		})
	})

	When("the annotation is empty", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"responses": []map[string]any{{}},
			}))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the no text sentinel", func() {
			Expect(text).To(Equal(NoTextDetected))
		})
	})

	When("the response has no annotations at all", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{}))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})
	})

	When("the image annotation carries an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"responses": []map[string]any{{
					"error": map[string]any{"code": 3, "message": "Bad image data."},
				}},
			}))
		})

		It("returns a service error with the diagnostic", func() {
			var se *fault.ServiceError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Payload).To(Equal("Bad image data."))
			Expect(se.StatusCode).To(Equal(3))
		})
	})

	When("the service rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadRequest,
				`{"error":{"code":400,"message":"Request payload size exceeds the limit"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})

		It("keeps the raw body for logging", func() {
			var se *fault.ServiceError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(se.Payload).To(ContainSubstring("payload size exceeds"))
		})
	})

	When("the service times out", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(500 * time.Millisecond)
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"responses": []map[string]any{{}}}),
			))
		})

		It("returns a network error", func() {
			Expect(fault.IsNetwork(err)).To(BeTrue())
		})
	})

	When("the service is unreachable", func() {
		BeforeEach(func() {
			server.Close()
		})

		It("returns a network error", func() {
			Expect(fault.IsNetwork(err)).To(BeTrue())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			imageData = nil
		})

		It("returns a service error without calling the service", func() {
			Expect(fault.IsService(err)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
