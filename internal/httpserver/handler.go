package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ssimba1203/gather-map-clean/internal/database"
	"github.com/ssimba1203/gather-map-clean/internal/errors"
	"github.com/ssimba1203/gather-map-clean/internal/interfaces"
	"github.com/ssimba1203/gather-map-clean/internal/middleware"
	"github.com/ssimba1203/gather-map-clean/internal/services"
)

// Handler serves the map page and the gathering JSON API
type Handler struct {
	svc        interfaces.GatheringServiceInterface
	kakaoJSKey string
}

func NewHandler(svc interfaces.GatheringServiceInterface, kakaoJSKey string) *Handler {
	return &Handler{svc: svc, kakaoJSKey: kakaoJSKey}
}

// GatheringView is a gathering plus the list headings the page shows
type GatheringView struct {
	*database.Gathering
	FriendHeadings []string `json:"friend_headings"`
	PlacesHeading  string   `json:"places_heading"`
}

func newGatheringView(g *database.Gathering) GatheringView {
	headings := make([]string, 0, len(g.Friends))
	for _, f := range g.Friends {
		headings = append(headings, services.FriendHeading(f))
	}
	return GatheringView{
		Gathering:      g,
		FriendHeadings: headings,
		PlacesHeading:  services.PlacesHeading(g.Category),
	}
}

// ConfigResponse is what the page needs before drawing the map
type ConfigResponse struct {
	KakaoJSKey      string          `json:"kakao_js_key"`
	DefaultCenter   database.LatLng `json:"default_center"`
	Categories      []string        `json:"categories"`
	DefaultCategory string          `json:"default_category"`
}

type originRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	OK  bool    `json:"ok"`
}

type addFriendRequest struct {
	Address string `json:"address"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"KakaoJSKey": h.kakaoJSKey,
		"Categories": services.Categories(),
	})
}

func (h *Handler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResponse{
		KakaoJSKey:      h.kakaoJSKey,
		DefaultCenter:   h.svc.DefaultCenter(),
		Categories:      services.Categories(),
		DefaultCategory: services.DefaultCategory,
	})
}

func (h *Handler) GetGathering(c *gin.Context) {
	g, err := h.svc.Get(c.Request.Context(), middleware.GatheringID(c))
	h.respond(c, g, err)
}

func (h *Handler) SetOrigin(c *gin.Context) {
	var req originRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("body", "invalid origin payload").WithDetails(err.Error()))
		return
	}
	g, err := h.svc.SetOrigin(c.Request.Context(), middleware.GatheringID(c), req.Lat, req.Lng, req.OK)
	h.respond(c, g, err)
}

func (h *Handler) AddFriend(c *gin.Context) {
	var req addFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("body", "invalid friend payload").WithDetails(err.Error()))
		return
	}
	g, err := h.svc.AddFriend(c.Request.Context(), middleware.GatheringID(c), req.Address)
	h.respond(c, g, err)
}

func (h *Handler) RemoveFriend(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		_ = c.Error(errors.NewValidationError("id", "friend id must be an integer"))
		return
	}
	g, err := h.svc.RemoveFriend(c.Request.Context(), middleware.GatheringID(c), id)
	h.respond(c, g, err)
}

func (h *Handler) SelectCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("body", "invalid category payload").WithDetails(err.Error()))
		return
	}
	g, err := h.svc.SelectCategory(c.Request.Context(), middleware.GatheringID(c), req.Category)
	h.respond(c, g, err)
}

func (h *Handler) Reset(c *gin.Context) {
	g, err := h.svc.Reset(c.Request.Context(), middleware.GatheringID(c))
	h.respond(c, g, err)
}

// NotFound renders unknown routes through the error middleware
func (h *Handler) NotFound(c *gin.Context) {
	_ = c.Error(errors.NewNotFoundError("route"))
}

func (h *Handler) respond(c *gin.Context, g *database.Gathering, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newGatheringView(g))
}
