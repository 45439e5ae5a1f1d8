package pinger

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/August26/httpping-go/internal/model"
	"github.com/August26/httpping-go/internal/transport"
)

// fakeProber answers from a script and records what it was asked.
type fakeProber struct {
	mu        sync.Mutex
	urls      []string
	deadlines []bool
	answers   []model.ProbeResult
	onProbe   func(n int)
}

func (f *fakeProber) Probe(ctx context.Context, url string) model.ProbeResult {
	f.mu.Lock()
	n := len(f.urls)
	f.urls = append(f.urls, url)
	_, hasDeadline := ctx.Deadline()
	f.deadlines = append(f.deadlines, hasDeadline)
	f.mu.Unlock()

	if f.onProbe != nil {
		f.onProbe(n)
	}
	if n < len(f.answers) {
		return f.answers[n]
	}
	return model.Succeeded(http.StatusOK)
}

var _ = Describe("NormalizeTarget()", func() {
	It("adds https:// when the scheme is missing", func() {
		Expect(NormalizeTarget("example.com")).To(Equal("https://example.com"))
	})

	It("keeps an explicit scheme", func() {
		Expect(NormalizeTarget("http://example.com/x")).To(Equal("http://example.com/x"))
	})

	It("rejects an empty url", func() {
		_, err := NormalizeTarget("")
		Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
	})
})

var _ = Describe("NewTarget()", func() {
	It("converts the interval to a duration", func() {
		t, err := NewTarget("example.com", 4, 1.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(model.PingTarget{URL: "https://example.com", Count: 4, Interval: 1500 * time.Millisecond}))
	})

	DescribeTable("rejects invalid input",
		func(raw string, count int, interval float64) {
			_, err := NewTarget(raw, count, interval)
			Expect(err).To(MatchError(ErrConfiguration))
		},
		Entry("empty url", "", 4, 1.0),
		Entry("zero count", "example.com", 0, 1.0),
		Entry("negative interval", "example.com", 4, -1.0),
	)
})

var _ = Describe("Pinger", func() {
	var (
		out    *bytes.Buffer
		prober *fakeProber
		p      *Pinger
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		prober = &fakeProber{}
		p = &Pinger{Prober: prober, Proxies: &model.ProxyMap{Entries: map[string]string{}}, Out: out, KeepResults: true}
	})

	When("interval is zero", func() {
		It("issues exactly count requests in order", func() {
			target, err := NewTarget("example.com", 2, 0)
			Expect(err).NotTo(HaveOccurred())

			results := p.Run(context.Background(), target)

			Expect(prober.urls).To(Equal([]string{"https://example.com", "https://example.com"}))
			Expect(prober.deadlines).To(Equal([]bool{false, false}))
			Expect(results).To(HaveLen(2))
			Expect(results[0].Seq).To(Equal(0))
			Expect(results[1].Seq).To(Equal(1))

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			Expect(lines).To(HaveLen(3))
			Expect(lines[0]).To(Equal("PING https://example.com:"))
			Expect(lines[1]).To(HavePrefix("Reply from https://example.com: seq=0 status=200 time="))
			Expect(lines[2]).To(HavePrefix("Reply from https://example.com: seq=1 status=200 time="))
		})
	})

	It("keeps going after a failed probe", func() {
		prober.answers = []model.ProbeResult{
			model.Failed(errors.New("connection refused")),
			model.Succeeded(http.StatusTeapot),
		}
		target, _ := NewTarget("http://example.com", 2, 0)

		results := p.Run(context.Background(), target)

		Expect(results[0].OK).To(BeFalse())
		Expect(results[1].StatusCode).To(Equal(http.StatusTeapot))
		Expect(out.String()).To(ContainSubstring("Request to http://example.com failed: seq=0 error=connection refused"))
		Expect(out.String()).To(ContainSubstring("status=418"))
	})

	It("names the proxies in the header", func() {
		p.Proxies = &model.ProxyMap{Entries: map[string]string{"socks": "socks5h://s:1"}}
		target, _ := NewTarget("example.com", 1, 0)

		p.Run(context.Background(), target)

		Expect(out.String()).To(HavePrefix("PING https://example.com via socks=socks5h://s:1:\n"))
	})

	It("bounds each probe by the interval and does not sleep after the last one", func() {
		target, _ := NewTarget("example.com", 3, 0.05)

		start := time.Now()
		p.Run(context.Background(), target)
		elapsed := time.Since(start)

		Expect(prober.deadlines).To(Equal([]bool{true, true, true}))
		Expect(elapsed).To(BeNumerically(">=", 100*time.Millisecond))
		Expect(elapsed).To(BeNumerically("<", 150*time.Millisecond+100*time.Millisecond))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		prober.onProbe = func(n int) {
			if n == 1 {
				cancel()
			}
		}
		target, _ := NewTarget("example.com", 10, 0.01)

		results := p.Run(ctx, target)

		Expect(results).To(HaveLen(2))
		Expect(prober.urls).To(HaveLen(2))
	})

	It("stops pulling when the consumer breaks", func() {
		target, _ := NewTarget("example.com", 5, 0)
		n := 0
		for range p.Probes(context.Background(), target) {
			n++
			if n == 2 {
				break
			}
		}
		Expect(prober.urls).To(HaveLen(2))
	})

	It("does not reserve memory for a huge count", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		prober.onProbe = func(int) { cancel() }
		target, err := NewTarget("example.com", 1<<50, 0)
		Expect(err).NotTo(HaveOccurred())

		var results []model.ProbeResult
		Expect(func() { results = p.Run(ctx, target) }).NotTo(Panic())
		Expect(results).To(HaveLen(1))
		Expect(prober.urls).To(HaveLen(1))
	})

	It("prints without keeping results by default", func() {
		p.KeepResults = false
		target, _ := NewTarget("example.com", 3, 0)

		Expect(p.Run(context.Background(), target)).To(BeEmpty())
		Expect(prober.urls).To(HaveLen(3))
		Expect(strings.Count(out.String(), "Reply from")).To(Equal(3))
	})

	It("runs the sequence only once", func() {
		target, _ := NewTarget("example.com", 2, 0)
		seq := p.Probes(context.Background(), target)

		first := 0
		for range seq {
			first++
		}
		second := 0
		for range seq {
			second++
		}

		Expect(first).To(Equal(2))
		Expect(second).To(Equal(0))
		Expect(prober.urls).To(HaveLen(2))
	})

	It("measures elapsed time around the probe", func() {
		prober.onProbe = func(int) { time.Sleep(20 * time.Millisecond) }
		target, _ := NewTarget("example.com", 1, 0)

		results := p.Run(context.Background(), target)

		Expect(results[0].LatencyMs).To(BeNumerically(">=", 20))
	})
})

var _ = Describe("Pinger with the HTTP transport", func() {
	var srv *httptest.Server

	BeforeEach(func() {
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/slow" {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))
	})

	AfterEach(func() {
		srv.Close()
	})

	It("reports the real status code", func() {
		out := &bytes.Buffer{}
		p := &Pinger{Prober: transport.New(nil, nil), Out: out, KeepResults: true}
		target, _ := NewTarget(srv.URL, 2, 0)

		results := p.Run(context.Background(), target)

		Expect(results).To(HaveLen(2))
		for _, r := range results {
			Expect(r.OK).To(BeTrue())
			Expect(r.StatusCode).To(Equal(http.StatusCreated))
		}
	})

	It("reports a timeout as a failure line", func() {
		out := &bytes.Buffer{}
		p := &Pinger{Prober: transport.New(nil, nil), Out: out, KeepResults: true}
		target, _ := NewTarget(srv.URL+"/slow", 1, 0.05)

		results := p.Run(context.Background(), target)

		Expect(results).To(HaveLen(1))
		Expect(results[0].OK).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("failed: seq=0"))
	})
})
