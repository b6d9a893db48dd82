package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/rules"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/httputil"
	"custos/pkg/requestcontext"
)

// Handler exposes the composite rule CRUD surface.
type Handler struct {
	service *rules.Service
	logger  *slog.Logger
}

func New(service *rules.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts composite rule endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/composite-rules", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

type createRequest struct {
	AssetID     string            `json:"asset_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Operator    string            `json:"operator"`
	Conditions  []rules.Condition `json:"conditions"`
}

// HandleCreate handles POST /composite-rules.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rule, err := h.service.Create(ctx, rules.CreateInput{
		AssetID:     assetID,
		Name:        req.Name,
		Description: req.Description,
		Operator:    rules.Operator(req.Operator),
		Conditions:  req.Conditions,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "composite rule creation failed",
			"request_id", requestID,
			"asset_id", req.AssetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, rule)
}

// HandleList handles GET /composite-rules?asset_id=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	assetID, err := id.ParseAssetID(r.URL.Query().Get("asset_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ruleSet, err := h.service.ListByAsset(r.Context(), assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Rules: ruleSet})
}

type listResponse struct {
	Rules []*rules.CompositeRule `json:"rules"`
}

// HandleGet handles GET /composite-rules/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rule, err := h.service.Get(r.Context(), ruleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

type updateRequest struct {
	Enabled *bool `json:"enabled"`
}

// HandleUpdate handles PATCH /composite-rules/{id}. Enabled is the only
// mutable field; condition changes mean a new rule.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[updateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.Enabled == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "enabled is required"))
		return
	}

	rule, err := h.service.SetEnabled(ctx, ruleID, *req.Enabled)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

// HandleDelete handles DELETE /composite-rules/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), ruleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
