// Package collyfetcher implements recipe.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Waiter delays a request until the target host may be contacted.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgents    []string
	RespectRobots bool
	Timeout       time.Duration
	// Limiter is optional; nil disables politeness delays.
	Limiter Waiter
}

// Fetcher implements recipe.Fetcher with one collector clone per call and a
// single attempt per request.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	pick          func(n int) int
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	transport := http.RoundTripper(newHTTPTransport())
	if cfg.RespectRobots {
		transport = &robotsFallbackTransport{base: transport}
	}
	c.WithTransport(transport)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	// Clones share the backend, so transport and timeout are set once here.
	c.SetRequestTimeout(timeout)
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		pick:          rand.IntN,
	}
}

// Fetch executes a single HTTP GET. Every failure is a *recipe.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, request recipe.FetchRequest) (recipe.FetchResponse, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, request.URL); err != nil {
			return recipe.FetchResponse{}, recipe.NewFetchError(request.URL, err)
		}
	}

	var (
		result   recipe.FetchResponse
		fetchErr error
	)
	collector := f.buildCollector(ctx, request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return recipe.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request recipe.FetchRequest,
	start time.Time,
	result *recipe.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if ua := f.userAgent(); ua != "" {
		collector.UserAgent = ua
	}

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	return f.cfg.UserAgents[f.pick(len(f.cfg.UserAgents))]
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request recipe.FetchRequest,
	start time.Time,
	result *recipe.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			*fetchErr = recipe.NewStatusError(request.URL, r.StatusCode)
			return
		}
		*result = recipe.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			*fetchErr = recipe.NewStatusError(request.URL, r.StatusCode)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return recipe.NewFetchError(url, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return recipe.NewFetchError(url, *fetchErr)
		}
		if err != nil {
			return recipe.NewFetchError(url, err)
		}
		return nil
	}
}

// copyHeaders replaces any collector default (User-Agent included) with the
// caller's header values.
func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
