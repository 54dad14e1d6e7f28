package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL = "https://dapi.kakao.com"
	keywordPath    = "/v2/local/search/keyword.json"

	maxPageSize = 15
	maxRadius   = 20000
)

// HTTPDoer is the subset of *http.Client the service needs
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service is a Kakao Local keyword search client
type Service struct {
	client  HTTPDoer
	baseURL string
	apiKey  string
}

type Option func(*Service)

// WithHTTPClient replaces the default 10s-timeout client
func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Service) { s.client = client }
}

// WithBaseURL points the client at another host, used by tests
func WithBaseURL(baseURL string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

func NewService(apiKey string, opts ...Option) *Service {
	s := &Service{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KeywordSearch returns places matching query ranked by the API. An empty
// result is not an error.
func (s *Service) KeywordSearch(ctx context.Context, query string, opts SearchOptions) (places []Place, err error) {
	if query = NormalizeQuery(query); query == "" {
		return []Place{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "kakao.keyword_search",
		attribute.String("search.query", query),
		attribute.Int("search.radius", opts.Radius),
	)
	defer func() {
		span.SetAttributes(attribute.String("search.status", string(StatusOf(places, err))))
		telemetry.EndSpan(span, err)
	}()

	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"query":     query,
		"operation": "keyword_search",
		"service":   "kakao",
	})

	var resp kakaoResponse
	if err := s.doRequest(ctx, keywordPath, keywordParams(query, opts), &resp); err != nil {
		logger.WithError(err).Warn("Keyword search failed")
		if isTimeout(err) {
			return nil, apperrors.NewTimeoutError("kakao.keyword_search", s.timeout(), err)
		}
		return nil, apperrors.NewExternalError("kakao", "keyword_search", err)
	}

	places = make([]Place, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		p, ok := d.toPlace()
		if !ok {
			continue
		}
		places = append(places, p)
	}

	logger.WithField("results", len(places)).Debug("Keyword search completed")
	return places, nil
}

// Ping checks that the API answers and accepts the key
func (s *Service) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("query", "서울시청")
	params.Set("size", "1")
	var resp kakaoResponse
	return s.doRequest(ctx, keywordPath, params, &resp)
}

func (s *Service) timeout() time.Duration {
	if c, ok := s.client.(*http.Client); ok {
		return c.Timeout
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func keywordParams(query string, opts SearchOptions) url.Values {
	params := url.Values{}
	params.Set("query", query)
	if opts.Location != nil {
		params.Set("x", strconv.FormatFloat(opts.Location.Lng, 'f', -1, 64))
		params.Set("y", strconv.FormatFloat(opts.Location.Lat, 'f', -1, 64))
		if opts.Radius > 0 {
			params.Set("radius", strconv.Itoa(min(opts.Radius, maxRadius)))
		}
	}
	if opts.Size > 0 {
		params.Set("size", strconv.Itoa(min(opts.Size, maxPageSize)))
	}
	switch opts.Sort {
	case SortDistance:
		if opts.Location != nil {
			params.Set("sort", SortDistance)
		}
	case SortAccuracy:
		params.Set("sort", SortAccuracy)
	}
	return params
}

func (s *Service) doRequest(ctx context.Context, path string, params url.Values, v interface{}) error {
	u := fmt.Sprintf("%s%s?%s", s.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "KakaoAK "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr kakaoError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("kakao API error: %s: %s (%s)", resp.Status, apiErr.Message, apiErr.ErrorType)
		}
		return fmt.Errorf("kakao API error: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode kakao response: %w", err)
	}
	return nil
}

func (d kakaoDocument) toPlace() (Place, bool) {
	lng, err := strconv.ParseFloat(d.X, 64)
	if err != nil {
		return Place{}, false
	}
	lat, err := strconv.ParseFloat(d.Y, 64)
	if err != nil {
		return Place{}, false
	}
	distance, _ := strconv.Atoi(d.Distance)

	return Place{
		ID:          d.ID,
		Name:        d.PlaceName,
		Address:     d.AddressName,
		RoadAddress: d.RoadAddressName,
		Category:    d.CategoryName,
		Phone:       d.Phone,
		URL:         d.PlaceURL,
		Lat:         lat,
		Lng:         lng,
		DistanceM:   distance,
	}, true
}
