package loader

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
	"github.com/gridiron-data/nflrefresh/internal/errhandling"
	"github.com/gridiron-data/nflrefresh/internal/logger"
)

// Defaults for the nflverse release download endpoint.
const (
	DefaultBaseURL   = "https://github.com/nflverse/nflverse-data/releases/download"
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "nflrefresh/1.0 (+https://github.com/gridiron-data/nflrefresh)"

	// seasonPlaceholder is replaced by the season in asset names.
	seasonPlaceholder = "{season}"

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 1024
)

// Source names a release asset on the provider.
type Source struct {
	// Release is the release tag (e.g., "stats_team")
	Release string
	// Asset is the file name template; "{season}" is substituted
	Asset string
}

// Built-in sources for the two refresh modes.
var (
	WeeklyTeamSource  = Source{Release: "stats_team", Asset: "stats_team_week_{season}.csv"}
	PlayerStatsSource = Source{Release: "stats_player", Asset: "stats_player_week_{season}.csv"}
)

// HTTPError represents a non-2xx response from the provider.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Message    string
	classified *errhandling.ClassifiedError
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d (%s) from %s: %s", e.StatusCode, e.Status, e.URL, e.Message)
}

// Unwrap exposes the classification so errhandling.ClassifyError sees it.
func (e *HTTPError) Unwrap() error {
	return e.classified
}

// NflverseConfig configures an Nflverse loader.
type NflverseConfig struct {
	BaseURL   string
	Source    Source
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// Client overrides the HTTP client (tests, proxies)
	Client *http.Client
}

// Nflverse downloads season CSV assets from nflverse GitHub releases.
type Nflverse struct {
	baseURL   string
	source    Source
	userAgent string
	headers   map[string]string
	client    *http.Client
}

// NewNflverse creates a loader for one release source.
func NewNflverse(cfg NflverseConfig) (*Nflverse, error) {
	if cfg.Source.Release == "" || cfg.Source.Asset == "" {
		return nil, errors.New("nflverse source requires a release and an asset")
	}
	if !strings.Contains(cfg.Source.Asset, seasonPlaceholder) {
		return nil, fmt.Errorf("asset %q must contain %s", cfg.Source.Asset, seasonPlaceholder)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Nflverse{
		baseURL:   base,
		source:    cfg.Source,
		userAgent: ua,
		headers:   cfg.Headers,
		client:    client,
	}, nil
}

// URL returns the download URL of the season asset.
func (n *Nflverse) URL(season int) string {
	asset := strings.ReplaceAll(n.source.Asset, seasonPlaceholder, strconv.Itoa(season))
	return fmt.Sprintf("%s/%s/%s", n.baseURL, n.source.Release, asset)
}

// Load downloads and parses the season asset.
func (n *Nflverse) Load(ctx context.Context, season int, weeks []int) (*dataset.Dataset, error) {
	url := n.URL(season)
	start := time.Now()

	logger.Debug("dataset download started",
		"release", n.source.Release,
		"season", season,
		"url", url,
	)

	body, err := n.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var reader io.Reader = body
	if strings.HasSuffix(strings.ToLower(url), ".gz") {
		gz, gzErr := gzip.NewReader(body)
		if gzErr != nil {
			return nil, errhandling.NewValidationError("invalid gzip payload", gzErr)
		}
		defer gz.Close()
		reader = gz
	}

	header, records, err := readCSV(reader)
	if err != nil {
		return nil, err
	}
	total := len(records)

	if len(weeks) > 0 {
		records, err = filterWeeks(header, records, weeks)
		if err != nil {
			return nil, err
		}
	}

	ds, err := dataset.FromRecords(header, records)
	if err != nil {
		return nil, errhandling.NewValidationError("malformed dataset", err)
	}

	logger.Debug("dataset download completed",
		"release", n.source.Release,
		"season", season,
		"rows_downloaded", total,
		"record_count", ds.NumRows(),
		"column_count", ds.NumColumns(),
		"duration", time.Since(start),
	)
	return ds, nil
}

// open performs the GET request and returns the response body on 2xx.
func (n *Nflverse) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, errhandling.ClassifyNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
			Message:    strings.TrimSpace(string(msg)),
			classified: errhandling.ClassifyHTTPStatus(resp.StatusCode, resp.Status),
		}
	}
	return resp.Body, nil
}

// Close releases idle connections held by the HTTP client.
func (n *Nflverse) Close() error {
	n.client.CloseIdleConnections()
	return nil
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errhandling.NewValidationError("empty CSV payload", err)
	}
	if err != nil {
		return nil, nil, classifyReadError("reading CSV header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, classifyReadError("reading CSV records", err)
	}
	return header, records, nil
}

// classifyReadError separates malformed CSV from a connection dropped mid-body.
func classifyReadError(msg string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return errhandling.NewValidationError(msg, err)
	}
	return errhandling.ClassifyNetworkError(fmt.Errorf("%s: %w", msg, err))
}

func filterWeeks(header []string, records [][]string, weeks []int) ([][]string, error) {
	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "week") {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errhandling.NewValidationError("week filter requested but dataset has no week column", nil)
	}

	wanted := make(map[int]struct{}, len(weeks))
	for _, w := range weeks {
		wanted[w] = struct{}{}
	}

	kept := make([][]string, 0, len(records))
	for _, rec := range records {
		w, err := strconv.Atoi(strings.TrimSpace(rec[idx]))
		if err != nil {
			continue
		}
		if _, ok := wanted[w]; ok {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

var (
	_ Loader  = (*Nflverse)(nil)
	_ Locator = (*Nflverse)(nil)
)
