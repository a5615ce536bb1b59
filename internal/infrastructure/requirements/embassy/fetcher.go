package embassy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
	"github.com/haithamq/visaflow/internal/infrastructure/resilience"
)

// embassyURLs maps country ids to the public requirement pages.
var embassyURLs = map[string]string{
	"fr": "https://fr.tlscontact.com/sa/RUH/page.php?pid=requirements",
	"de": "https://riyadh.diplo.de/sa-en/service/visa",
	"gb": "https://www.gov.uk/standard-visitor-visa",
	"us": "https://travel.state.gov/content/travel/en/us-visas.html",
	"es": "https://www.exteriores.gob.es/Consulados/riyadh/en",
	"it": "https://consriyadh.esteri.it/consolato_riad/en",
}

const maxPageBytes = 4 << 20

type Options struct {
	HTTPClient         *http.Client
	RequestTimeout     time.Duration
	CacheTTL           time.Duration
	RatePerMinute      int
	ResilienceExecutor *resilience.Executor
	URLs               map[string]string
	Logger             *slog.Logger
}

// Fetcher resolves requirement sets with a three-step strategy: cached set,
// live embassy page, embedded fallback catalog. Failures never surface to
// the pipeline; the fallback set closes every path.
type Fetcher struct {
	cache      ports.CheckpointStore
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	urls       map[string]string
	catalog    map[string][]catalogRequirement
	cacheTTL   time.Duration
	log        *slog.Logger
}

func New(cache ports.CheckpointStore, opts Options) (*Fetcher, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 10
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}
	urls := opts.URLs
	if urls == nil {
		urls = embassyURLs
	}

	return &Fetcher{
		cache:      cache,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), 1),
		executor:   opts.ResilienceExecutor,
		urls:       urls,
		catalog:    catalog,
		cacheTTL:   opts.CacheTTL,
		log:        opts.Logger,
	}, nil
}

func cacheKey(countryID, visaType string) string {
	return fmt.Sprintf("requirements:%s:%s", strings.ToLower(countryID), strings.ToLower(visaType))
}

func (f *Fetcher) Fetch(ctx context.Context, countryID, visaType string) (domain.RequirementSet, error) {
	key := cacheKey(countryID, visaType)

	if blob, err := f.cache.Get(ctx, key); err == nil {
		var set domain.RequirementSet
		if err := json.Unmarshal(blob, &set); err == nil && len(set.Requirements) > 0 {
			f.log.Info("requirement cache hit", "key", key)
			set.FromCache = true
			return set, nil
		}
	}

	url, ok := f.urls[strings.ToLower(countryID)]
	if ok {
		set, err := f.scrape(ctx, countryID, url)
		if err == nil && len(set.Requirements) > 0 {
			if blob, marshalErr := json.Marshal(set); marshalErr == nil {
				if cacheErr := f.cache.Set(ctx, key, blob, f.cacheTTL); cacheErr != nil {
					f.log.Warn("requirement cache write failed", "key", key, "error", cacheErr)
				}
			}
			return set, nil
		}
		if err != nil {
			f.log.Warn("embassy scrape failed", "country_id", countryID, "url", url, "error", err)
		}
	}

	return f.fallback(countryID, visaType), nil
}

func (f *Fetcher) scrape(ctx context.Context, countryID, url string) (domain.RequirementSet, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return domain.RequirementSet{}, fmt.Errorf("rate limit wait: %w", err)
	}

	var body []byte
	var contentType string
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "visaflow/1.0")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		contentType = resp.Header.Get("Content-Type")
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return fmt.Errorf("read page: %w", err)
		}
		return nil
	}

	var err error
	if f.executor != nil {
		err = f.executor.Execute(ctx, "embassy.fetch", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.RequirementSet{}, err
	}

	var requirements []domain.Requirement
	if strings.Contains(contentType, "application/pdf") || strings.HasSuffix(strings.ToLower(url), ".pdf") {
		requirements, err = parsePDFRequirements(body, countryID)
	} else {
		requirements, err = parseHTMLRequirements(body, countryID)
	}
	if err != nil {
		return domain.RequirementSet{}, fmt.Errorf("parse requirements: %w", err)
	}

	return domain.RequirementSet{
		Requirements: requirements,
		SourceURL:    url,
		FromCache:    false,
	}, nil
}

func (f *Fetcher) fallback(countryID, visaType string) domain.RequirementSet {
	entries, ok := f.catalog[strings.ToLower(visaType)]
	if !ok {
		entries = f.catalog["tourist"]
	}

	requirements := make([]domain.Requirement, len(entries))
	for i, entry := range entries {
		requirements[i] = entry.toDomain(strings.ToLower(countryID))
	}

	f.log.Info("using fallback requirements", "country_id", countryID, "visa_type", visaType, "count", len(requirements))
	return domain.RequirementSet{
		Requirements: requirements,
		SourceURL:    "fallback",
		FromCache:    false,
	}
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	msg := err.Error()
	if strings.Contains(msg, "unexpected status 5") || strings.Contains(msg, "unexpected status 429") {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
