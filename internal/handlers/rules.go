package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bluelight-hub/authguard/internal/models"
	pkghttp "github.com/bluelight-hub/authguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RuleManager defines the interface for threat rule administration
type RuleManager interface {
	CreateRule(ctx context.Context, rule *models.ThreatRule) (*models.ThreatRule, error)
	UpdateRule(ctx context.Context, rule *models.ThreatRule) (*models.ThreatRule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*models.ThreatRule, error)
	ListRules(ctx context.Context, filter models.RuleFilter) ([]*models.ThreatRule, error)
	LoadAllRules(ctx context.Context) (int, error)
	Stats() []models.RuleStats
	ActiveRuleCount() int
}

// RuleHandler exposes threat rule administration endpoints
type RuleHandler struct {
	service RuleManager
}

// NewRuleHandler creates a new RuleHandler
func NewRuleHandler(service RuleManager) *RuleHandler {
	return &RuleHandler{service: service}
}

// RuleRequest represents the request body for creating or updating a rule
type RuleRequest struct {
	Name          string         `json:"name" validate:"required,min=1,max=200"`
	Description   string         `json:"description" validate:"max=2000"`
	ConditionType string         `json:"condition_type" validate:"required"`
	Severity      string         `json:"severity" validate:"required,oneof=low medium high critical"`
	Status        string         `json:"status" validate:"omitempty,oneof=enabled disabled testing"`
	Config        map[string]any `json:"config"`
	Tags          []string       `json:"tags"`
}

func (req *RuleRequest) toModel() *models.ThreatRule {
	return &models.ThreatRule{
		Name:          req.Name,
		Description:   req.Description,
		ConditionType: req.ConditionType,
		Severity:      models.RuleSeverity(req.Severity),
		Status:        models.RuleStatus(req.Status),
		Config:        req.Config,
		Tags:          req.Tags,
	}
}

// Create handles rule creation
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	rule, err := h.service.CreateRule(r.Context(), req.toModel())
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// Update handles rule updates
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	rule := req.toModel()
	rule.ID = id
	updated, err := h.service.UpdateRule(r.Context(), rule)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles rule deletion
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get returns a single rule
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// List returns rules matching the query filter
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.RuleFilter{
		ConditionType: q.Get("condition_type"),
		Status:        models.RuleStatus(q.Get("status")),
		Severity:      models.RuleSeverity(q.Get("severity")),
		Tag:           q.Get("tag"),
		Limit:         queryInt(q.Get("limit"), 50),
		Offset:        queryInt(q.Get("offset"), 0),
	}

	rulesOut, err := h.service.ListRules(r.Context(), filter)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	if rulesOut == nil {
		rulesOut = []*models.ThreatRule{}
	}
	writeJSON(w, http.StatusOK, rulesOut)
}

// Reload rebuilds the live catalog from storage
func (h *RuleHandler) Reload(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.LoadAllRules(r.Context())
	if err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusConflict, "reload_failed",
			"Rule catalog reload failed, previous catalog still active", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"active_rules": n})
}

// Stats returns per-rule evaluation statistics
func (h *RuleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_rules": h.service.ActiveRuleCount(),
		"rules":        h.service.Stats(),
	})
}

func writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Rule not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Rule already exists")
	case errors.Is(err, models.ErrUnknownRuleType):
		pkghttp.WriteBadRequest(w, "Unknown rule condition type")
	case errors.Is(err, models.ErrInvalidRuleConfiguration):
		pkghttp.WriteBadRequest(w, "Invalid rule configuration")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	return fallback
}
