// Package adminapi exposes a debug/operations HTTP surface over a
// running engine: feature inspection, a manual refresh trigger, and
// the install-history trail, following the usual
// BaseHandler/HandleError/RegisterRoutes shape with swaggo
// annotations.
package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"fluxflag/internal/constants"
	"fluxflag/internal/engine"
	"fluxflag/internal/logger"
	"fluxflag/pkg/errors"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type BaseHandler struct {
	Engine *engine.Engine
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "admin API request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

type Handler struct {
	BaseHandler
}

func NewHandler(eng *engine.Engine, log logger.Logger) *Handler {
	return &Handler{BaseHandler: BaseHandler{Engine: eng, Logger: log}}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/features", h.ListFeatures)
		v1.GET("/features/:name", h.GetFeature)
		v1.POST("/refresh", h.Refresh)
		v1.GET("/rules/history", h.RuleHistory)
	}
}

type featureValueResponse struct {
	Name    string `json:"name"`
	Value   string `json:"value,omitempty"`
	Present bool   `json:"present"`
	Enabled bool   `json:"enabled"`
}

// ListFeatures godoc
// @Summary      List every currently evaluated feature
// @Description  Returns the current value of every feature the installed rule set names
// @Tags         features
// @Produce      json
// @Success      200  {array}  featureValueResponse
// @Router       /features [get]
func (h *Handler) ListFeatures(c *gin.Context) {
	values := h.Engine.AllFeatureValues()
	out := make([]featureValueResponse, 0, len(values))
	for name, v := range values {
		out = append(out, featureValueResponse{
			Name:    name,
			Value:   v.Value,
			Present: v.Present,
			Enabled: v.Present && constants.FeatureTruthyValues[strings.ToLower(v.Value)],
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetFeature godoc
// @Summary      Get a single feature's current value
// @Tags         features
// @Produce      json
// @Param        name  path  string  true  "Feature name"
// @Success      200  {object}  featureValueResponse
// @Router       /features/{name} [get]
func (h *Handler) GetFeature(c *gin.Context) {
	name := c.Param("name")
	value, present := h.Engine.GetFeatureValue(name)
	c.JSON(http.StatusOK, featureValueResponse{
		Name:    name,
		Value:   value,
		Present: present,
		Enabled: h.Engine.IsFeatureEnabled(name),
	})
}

// Refresh godoc
// @Summary      Trigger an immediate rule fetch cycle
// @Tags         rules
// @Produce      json
// @Success      202  "Accepted"
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	if err := h.Engine.RefreshRules(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// RuleHistory godoc
// @Summary      List recent rule-lifecycle events
// @Tags         rules
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of events to return (1-1000)" default(100)
// @Success      200  {array}  models.LifecycleEvent
// @Router       /rules/history [get]
func (h *Handler) RuleHistory(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	events, err := h.Engine.RuleHistory(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxHistoryLimit {
		return defaultHistoryLimit
	}
	return n
}

