package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ModelGovernor/internal/governor"
	"github.com/router-for-me/ModelGovernor/internal/ledger"
	"github.com/router-for-me/ModelGovernor/internal/models"
)

// requestBody is the shared payload for authorize and execute.
type requestBody struct {
	Scope   models.Scope   `json:"scope"`
	Content string         `json:"content"`
	Options models.Options `json:"options"`
}

// Handler serves the governed request path and the management API.
type Handler struct {
	governor *governor.Governor
}

// NewHandler constructs a Handler.
func NewHandler(g *governor.Governor) *Handler {
	return &Handler{governor: g}
}

// Authorize runs the dry-run admission check without consuming any quota.
func (h *Handler) Authorize(c *gin.Context) {
	var body requestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}
	auth := h.governor.Authorize(body.Scope, body.Content, body.Options)
	c.JSON(http.StatusOK, auth)
}

// Execute runs the full governed pipeline and returns the provider result.
func (h *Handler) Execute(c *gin.Context) {
	var body requestBody
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content must not be empty"})
		return
	}

	result, errExecute := h.governor.Execute(c.Request.Context(), body.Scope, body.Content, body.Options)
	if errExecute != nil {
		status, payload := mapExecuteError(errExecute)
		c.JSON(status, payload)
		return
	}
	c.JSON(http.StatusOK, result)
}

// mapExecuteError translates pipeline rejections into HTTP responses. Rate
// and budget rejections both map to 429 but stay distinguishable by reason.
func mapExecuteError(err error) (int, gin.H) {
	var rateErr *governor.RateLimitExceededError
	if errors.As(err, &rateErr) {
		return http.StatusTooManyRequests, gin.H{
			"error":  "rate limit exceeded",
			"reason": "rate",
			"scope":  rateErr.ScopeKey,
		}
	}
	var budgetErr *ledger.BudgetExceededError
	if errors.As(err, &budgetErr) {
		return http.StatusTooManyRequests, gin.H{
			"error":            budgetErr.Error(),
			"reason":           "budget",
			"kind":             budgetErr.Kind,
			"scope":            budgetErr.ScopeKey,
			"estimated_micros": budgetErr.EstimatedMicros,
			"limit_micros":     budgetErr.LimitMicros,
			"remaining_micros": budgetErr.RemainingMicros,
		}
	}
	var providerErr *governor.ProviderInvocationError
	if errors.As(err, &providerErr) {
		return http.StatusBadGateway, gin.H{
			"error": providerErr.Error(),
			"cause": string(providerErr.Cause),
		}
	}
	return http.StatusInternalServerError, gin.H{"error": err.Error()}
}

// Health returns the current system health snapshot.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.governor.Health())
}

// Alerts lists alerts filtered by the resolved query flag (default false).
func (h *Handler) Alerts(c *gin.Context) {
	resolved := false
	if raw := strings.TrimSpace(c.Query("resolved")); raw != "" {
		parsed, errParse := strconv.ParseBool(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved flag"})
			return
		}
		resolved = parsed
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.governor.Alerts(resolved)})
}

// ResolveAlert marks an alert resolved; an unknown id still returns ok.
func (h *Handler) ResolveAlert(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing alert id"})
		return
	}
	h.governor.ResolveAlert(id)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SetLimits installs a per-scope limit override at runtime.
func (h *Handler) SetLimits(c *gin.Context) {
	scopeKey := strings.TrimSpace(c.Param("scope"))
	if scopeKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing scope"})
		return
	}
	var limits models.Limits
	if errBind := c.ShouldBindJSON(&limits); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if limits.PerRequestMicros < 0 || limits.DailyMicros < 0 || limits.MaxRequestsPerMinute < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limits must not be negative"})
		return
	}
	if limits.WarningThreshold < 0 || limits.WarningThreshold > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "warning_threshold must be within [0,1]"})
		return
	}
	h.governor.SetLimits(scopeKey, limits)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scope": scopeKey})
}

// Usage returns the scope's current cost counters.
func (h *Handler) Usage(c *gin.Context) {
	scopeKey := strings.TrimSpace(c.Param("scope"))
	if scopeKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing scope"})
		return
	}
	c.JSON(http.StatusOK, h.governor.Usage(models.ParseScopeKey(scopeKey)))
}
