package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/interfaces"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/monitoring"
	"github.com/ssimba1203/gather-map-clean/internal/services"
)

var _ interfaces.GatheringServiceInterface = (*services.GatheringService)(nil)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockGatheringService is a mock implementation of GatheringServiceInterface
type MockGatheringService struct {
	mock.Mock
}

func (m *MockGatheringService) result(args mock.Arguments) (*database.Gathering, error) {
	g, _ := args.Get(0).(*database.Gathering)
	return g, args.Error(1)
}

func (m *MockGatheringService) Get(ctx context.Context, id string) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockGatheringService) AddFriend(ctx context.Context, id, address string) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id, address))
}

func (m *MockGatheringService) RemoveFriend(ctx context.Context, id string, friendID int) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id, friendID))
}

func (m *MockGatheringService) Reset(ctx context.Context, id string) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockGatheringService) SelectCategory(ctx context.Context, id, category string) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id, category))
}

func (m *MockGatheringService) SetOrigin(ctx context.Context, id string, lat, lng float64, ok bool) (*database.Gathering, error) {
	return m.result(m.Called(ctx, id, lat, lng, ok))
}

func (m *MockGatheringService) DefaultCenter() database.LatLng {
	return m.Called().Get(0).(database.LatLng)
}

const testGatheringID = "6f1c1d2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f"

func sampleGathering() *database.Gathering {
	mid := database.LatLng{Lat: 37.55, Lng: 127.05}
	return &database.Gathering{
		ID: testGatheringID,
		Friends: []database.Friend{
			{ID: 1, Lat: 37.5, Lng: 127.0, Address: "강남역"},
			{ID: 2, Lat: 37.6, Lng: 127.1, Address: "건대입구"},
		},
		NextFriendID: 3,
		Category:     "카페",
		Center:       mid,
		Midpoint:     &mid,
		Places: []database.Place{
			{Name: "카페 A", Lat: 37.55, Lng: 127.05, MapURL: "https://map.naver.com/v5/search/%EC%B9%B4%ED%8E%98%20A"},
		},
		Overlays: []database.Overlay{},
	}
}

func newTestServer(svc *MockGatheringService) *Server {
	return New(Config{
		KakaoJSKey:        "js-key",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}, svc)
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: middleware.GatheringCookie, Value: testGatheringID})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetGathering(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("Get", mock.Anything, testGatheringID).Return(sampleGathering(), nil)
	s := newTestServer(svc)

	w := do(s, http.MethodGet, "/api/gathering", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeView(t, w)
	assert.Equal(t, testGatheringID, body["id"])
	assert.Equal(t, []interface{}{"친구 1: 강남역", "친구 2: 건대입구"}, body["friend_headings"])
	assert.Equal(t, "중간 지점 근처 카페 추천", body["places_heading"])
	assert.Len(t, body["places"], 1)
	svc.AssertExpectations(t)
}

func TestAddFriend(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockGatheringService)
		svc.On("AddFriend", mock.Anything, testGatheringID, "강남역").Return(sampleGathering(), nil)
		s := newTestServer(svc)

		w := do(s, http.MethodPost, "/api/gathering/friends", `{"address":"강남역"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("address not found", func(t *testing.T) {
		svc := new(MockGatheringService)
		svc.On("AddFriend", mock.Anything, testGatheringID, "없는 곳").
			Return(nil, errors.NewAddressNotFoundError("없는 곳", nil))
		s := newTestServer(svc)

		w := do(s, http.MethodPost, "/api/gathering/friends", `{"address":"없는 곳"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "ADDRESS_NOT_FOUND")
		assert.Contains(t, w.Body.String(), "주소를 찾을 수 없습니다.")
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockGatheringService)
		s := newTestServer(svc)

		w := do(s, http.MethodPost, "/api/gathering/friends", `{"address":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "AddFriend", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRemoveFriend(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockGatheringService)
		svc.On("RemoveFriend", mock.Anything, testGatheringID, 2).Return(sampleGathering(), nil)
		s := newTestServer(svc)

		w := do(s, http.MethodDelete, "/api/gathering/friends/2", "")
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("non numeric id", func(t *testing.T) {
		s := newTestServer(new(MockGatheringService))
		w := do(s, http.MethodDelete, "/api/gathering/friends/abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := new(MockGatheringService)
		svc.On("RemoveFriend", mock.Anything, testGatheringID, 9).Return(nil, errors.NewFriendNotFoundError(9))
		s := newTestServer(svc)

		w := do(s, http.MethodDelete, "/api/gathering/friends/9", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "FRIEND_NOT_FOUND")
	})
}

func TestSelectCategory(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("SelectCategory", mock.Anything, testGatheringID, "카페").Return(sampleGathering(), nil)
	svc.On("SelectCategory", mock.Anything, testGatheringID, "술집").Return(nil, errors.NewInvalidCategoryError("술집"))
	s := newTestServer(svc)

	assert.Equal(t, http.StatusOK, do(s, http.MethodPut, "/api/gathering/category", `{"category":"카페"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPut, "/api/gathering/category", `{"category":"술집"}`).Code)
}

func TestSetOriginAndReset(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("SetOrigin", mock.Anything, testGatheringID, 37.4, 127.1, true).Return(sampleGathering(), nil)
	svc.On("SetOrigin", mock.Anything, testGatheringID, 0.0, 0.0, false).Return(sampleGathering(), nil)
	svc.On("Reset", mock.Anything, testGatheringID).Return(&database.Gathering{ID: testGatheringID, Category: "맛집"}, nil)
	s := newTestServer(svc)

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/gathering/origin", `{"lat":37.4,"lng":127.1,"ok":true}`).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/gathering/origin", `{"ok":false}`).Code)

	w := do(s, http.MethodPost, "/api/gathering/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "중간 지점 근처 맛집 추천", decodeView(t, w)["places_heading"])
	svc.AssertExpectations(t)
}

func TestConfigAndIndex(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("DefaultCenter").Return(database.LatLng{Lat: 37.5665, Lng: 126.9780})
	s := newTestServer(svc)

	w := do(s, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "js-key", cfg.KakaoJSKey)
	assert.Equal(t, services.Categories(), cfg.Categories)
	assert.Equal(t, "맛집", cfg.DefaultCategory)
	assert.InDelta(t, 37.5665, cfg.DefaultCenter.Lat, 1e-9)

	w = do(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "appkey=js-key")
	assert.Contains(t, w.Body.String(), `data-category="편의점"`)
}

func TestSessionCookieIssued(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("Get", mock.Anything, mock.AnythingOfType("string")).Return(&database.Gathering{Category: "맛집"}, nil)
	s := newTestServer(svc)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/gathering", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.GatheringCookie {
			found = true
			assert.NotEmpty(t, c.Value)
		}
	}
	assert.True(t, found)
}

func TestRateLimited(t *testing.T) {
	svc := new(MockGatheringService)
	svc.On("Get", mock.Anything, testGatheringID).Return(sampleGathering(), nil)
	s := New(Config{RateLimitRequests: 1, RateLimitWindow: time.Hour}, svc)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/gathering", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/api/gathering", "").Code)
}

func TestMonitoringAndWebhookRoutes(t *testing.T) {
	hooked := false
	mm := monitoring.NewMonitoringMiddleware(nil, monitoring.NewMetricsCollector(), monitoring.NewHealthChecker("gathermap", "test"))
	s := New(Config{}, new(MockGatheringService),
		WithMonitoring(mm),
		WithWebhook(func(c *gin.Context) {
			hooked = true
			c.Status(http.StatusOK)
		}),
	)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, WebhookPath, "{}").Code)
	assert.True(t, hooked)

	w := do(s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
