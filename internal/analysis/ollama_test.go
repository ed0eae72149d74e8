package analysis

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/scan-insight/internal/fault"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		gen    *Ollama
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		gen, newErr = NewOllama(Config{Endpoint: server.URL() + "/", Model: "llama3.1"})
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = gen.Generate(context.Background(), Request{
			Prompt:        "Explain the French Revolution",
			MaxTokens:     200,
			Temperature:   0.5,
			StopSequences: []string{"###"},
		})
	})

	When("the server answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyJSONRepresenting(map[string]any{
					"model":    "llama3.1",
					"stream":   false,
					"messages": []map[string]any{{"role": "user", "content": "Explain the French Revolution"}},
					"options": map[string]any{
						"num_predict": 200,
						"temperature": 0.5,
						"stop":        []string{"###"},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"message": map[string]any{"role": "assistant", "content": "It began in 1789."},
					"done":    true,
				}),
			))
		})

		It("returns the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("It began in 1789."))
		})
	})

	When("the model is missing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error":"model 'llama3.1' not found"}`))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})
	})

	When("the response has no message", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"done": true}))
		})

		It("returns a service error", func() {
			Expect(fault.IsService(err)).To(BeTrue())
		})
	})
})
