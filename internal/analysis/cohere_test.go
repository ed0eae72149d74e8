package analysis

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scan-insight/internal/fault"
)

var _ = Describe("NewCohere", func() {
	It("requires an API key", func() {
		_, err := NewCohere(Config{})
		Expect(err).To(MatchError("cohere api key is required"))
	})
})

var _ = Describe("Cohere", func() {
	var (
		server *ghttp.Server
		gen    *Cohere
		req    Request
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		gen, newErr = NewCohere(Config{
			Endpoint: server.URL(),
			APIKey:   "secret-token",
			Model:    "command-xlarge-nightly",
			Timeout:  200 * time.Millisecond,
		})
		Expect(newErr).NotTo(HaveOccurred())
		req = Request{Prompt: "You are an AI assistant specialized in Math.", MaxTokens: 150, Temperature: 0.7}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = gen.Generate(context.Background(), req)
	})

	When("the service returns generations", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/v1/generate"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer secret-token"),
				ghttp.VerifyJSONRepresenting(map[string]any{
					"model":              "command-xlarge-nightly",
					"prompt":             "You are an AI assistant specialized in Math.",
					"max_tokens":         150,
					"temperature":        0.7,
					"k":                  0,
					"stop_sequences":     []string{},
					"return_likelihoods": "NONE",
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"id": "gen-1",
					"generations": []map[string]any{
						{"id": "a", "text": " 5 "},
						{"id": "b", "text": "five"},
					},
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the first generation", func() {
			Expect(text).To(Equal(" 5 "))
		})
	})

	When("the response has no generations", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"id":      "gen-1",
				"message": "blocked output",
			}))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("blocked output"))
		})
	})

	When("a generation has no text field", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"generations": []map[string]any{{"id": "a"}},
			}))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})
	})

	When("the response is not JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>gateway</html>"))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})
	})

	When("the service rejects the token", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"message":"invalid api token"}`))
		})

		It("returns a service error carrying the payload", func() {
			se, ok := err.(*fault.ServiceError)
			Expect(ok).To(BeTrue())
			Expect(se.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(se.Payload).To(ContainSubstring("invalid api token"))
		})
	})

	When("the service is too slow", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(500 * time.Millisecond)
				},
				ghttp.RespondWith(http.StatusOK, `{"generations":[{"text":"late"}]}`),
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
})
