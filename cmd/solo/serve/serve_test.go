package servecmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/llm"
)

// fakeOllama answers /api/show with showStatus and streams a fixed
// generation from /api/generate.
func fakeOllama(showStatus int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/show":
			w.WriteHeader(showStatus)
		case "/api/generate":
			for _, line := range []string{
				`{"response":"Hi","done":false}`,
				`{"response":" there","done":false}`,
				`{"response":"","done":true}`,
			} {
				fmt.Fprintln(w, line)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

var _ = Describe("Serve Command", func() {
	Describe("configuration", func() {
		It("applies flags over the config file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "solo.toml")
			Expect(os.WriteFile(path, []byte(`
[server]
listen = ":7000"

[engine]
model = "from-file"
`), 0o644)).To(Succeed())

			cmder := &serveCommander{}
			cmd := newServeCmd(cmder)
			Expect(cmd.ParseFlags([]string{"--config", path, "--model", "from-flag"})).To(Succeed())

			cfg, err := cmder.loadConfig(cmd)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Server.Listen).To(Equal(":7000"))
			Expect(cfg.Engine.Model).To(Equal("from-flag"))
		})

		It("rejects invalid overrides", func() {
			cmder := &serveCommander{}
			cmd := newServeCmd(cmder)
			Expect(cmd.ParseFlags([]string{"--ollama-url", "not a url"})).To(Succeed())

			_, err := cmder.loadConfig(cmd)
			Expect(err).To(MatchError(ContainSubstring("invalid configuration")))
		})
	})

	Describe("running", func() {
		var (
			upstream *httptest.Server
			ctx      context.Context
			cancel   context.CancelFunc
			baseURL  string
			done     chan error
		)

		start := func(showStatus int, extraFlags ...string) {
			upstream = fakeOllama(showStatus)

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			baseURL = "http://" + ln.Addr().String()

			cmder := &serveCommander{listener: ln, logger: zap.NewNop()}
			cmd := newServeCmd(cmder)
			cmd.SetArgs(append([]string{"--ollama-url", upstream.URL, "--model", "m"}, extraFlags...))

			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan error, 1)
			go func() {
				done <- cmd.ExecuteContext(ctx)
			}()
		}

		health := func() string {
			resp, err := http.Get(baseURL + "/health")
			if err != nil {
				return ""
			}
			defer resp.Body.Close()

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return ""
			}
			return body["engine_status"]
		}

		AfterEach(func() {
			cancel()
			Eventually(done).Should(Receive(BeNil()))
			upstream.Close()
		})

		It("serves completions once the model is confirmed", func() {
			start(http.StatusOK)
			Eventually(health).Should(Equal("ready"))

			resp, err := http.Post(baseURL+"/v1/completions", "application/json",
				strings.NewReader(`{"prompt": "Say hi"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out llm.Response
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Response).To(Equal("Hi there"))
		})

		It("reports a model that could not be loaded", func() {
			start(http.StatusNotFound)
			Eventually(health).Should(Equal("failed"))

			resp, err := http.Post(baseURL+"/chat/completions", "application/json",
				strings.NewReader(`{"messages": [{"role": "user", "content": "hi"}]}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("model not loaded"))
		})

		It("writes the ledger to SQLite when asked", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "ledger.db")
			start(http.StatusOK, "--sqlite", dbPath)
			Eventually(health).Should(Equal("ready"))

			_, err := os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
