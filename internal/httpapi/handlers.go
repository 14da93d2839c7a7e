package httpapi

import (
	"context"
	"net/http"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calls"
	"crm-calls/internal/presence"
	"crm-calls/internal/reporting"
	"crm-calls/internal/rtc"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CallControl is the per-user call surface; rtc.Hub implements it.
// Every method takes the user from ctx.
type CallControl interface {
	Initiate(ctx context.Context, calleeID string, callType calls.CallType) (calls.Session, error)
	Accept(ctx context.Context, sessionID string) (calls.Session, error)
	Decline(ctx context.Context, sessionID string) (calls.Session, error)
	End(ctx context.Context) (calls.Session, error)
	Get(ctx context.Context, sessionID string) (calls.Session, error)
	Subscribe(ctx context.Context) (<-chan rtc.Event, func(), error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    CallControl
	Presence *presence.Service
	Reports  *reporting.Service

	// DevLogin enables token issuance without credentials. Never set in production.
	DevLogin  bool
	Heartbeat time.Duration
}

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
}

// Login issues a JWT token pair for local development.
// Real deployments get tokens from the identity provider.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || !h.DevLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "login disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	userType := auth.UserType(req.UserType)
	if req.UserID == "" || !userType.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and user_type (customer|admin) required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, userType)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Presence ---

type presenceRequest struct {
	Status string `json:"status"`
}

func (h Handlers) SetPresence(c *gin.Context) {
	if h.Presence == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence not configured"})
		return
	}
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Presence.SetStatus(c.Request.Context(), presence.Status(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) ListOnline(c *gin.Context) {
	if h.Presence == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence not configured"})
		return
	}
	rows, err := h.Presence.ListOnline(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": rows})
}

// --- Calls ---

type startCallRequest struct {
	CalleeID string `json:"callee_id"`
	CallType string `json:"call_type"`
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CalleeID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callee_id required"})
		return
	}
	callType := calls.CallType(req.CallType)
	if req.CallType == "" {
		callType = calls.CallTypeAudio
	}
	sess, err := h.Calls.Initiate(c.Request.Context(), req.CalleeID, callType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h Handlers) GetCall(c *gin.Context) {
	sess, err := h.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	sess, err := h.Calls.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) DeclineCall(c *gin.Context) {
	sess, err := h.Calls.Decline(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h Handlers) EndCall(c *gin.Context) {
	sess, err := h.Calls.End(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// --- Reports (admin) ---

func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return reporting.TimeRange{}, false
	}
	return reporting.TimeRange{From: from.UTC(), To: to.UTC()}, true
}

func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range:      rng,
		CallerType: c.Query("caller_type"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UserReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.ParticipantSummary(c.Request.Context(), reporting.ParticipantSummaryRequest{
		UserID: c.Param("user_id"),
		Range:  rng,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
