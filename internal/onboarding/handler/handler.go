package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/eligibility"
	"custos/internal/onboarding"
	"custos/internal/transfer"
	id "custos/pkg/domain"
	"custos/pkg/platform/httputil"
	"custos/pkg/requestcontext"
)

// Handler exposes the onboarding lifecycle endpoints.
type Handler struct {
	service *onboarding.Service
	logger  *slog.Logger
}

func New(service *onboarding.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts onboarding endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/onboarding", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/check-eligibility", h.HandleCheckEligibility)
		r.Post("/{id}/review", h.HandleReview)
		r.Post("/{id}/allocate", h.HandleAllocate)
		r.Post("/{id}/withdraw", h.HandleWithdraw)
	})
}

type createRequest struct {
	InvestorID     string `json:"investor_id"`
	AssetID        string `json:"asset_id"`
	RequestedUnits int64  `json:"requested_units"`
}

// HandleCreate handles POST /onboarding.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[createRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	investorID, err := id.ParseInvestorID(req.InvestorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Create(ctx, onboarding.CreateInput{
		InvestorID:     investorID,
		AssetID:        assetID,
		RequestedUnits: req.RequestedUnits,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "onboarding creation failed",
			"request_id", requestID,
			"investor_id", req.InvestorID,
			"asset_id", req.AssetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// HandleGet handles GET /onboarding/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	onboardingID, err := id.ParseOnboardingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Get(r.Context(), onboardingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

type eligibilityResponse struct {
	Onboarding  *onboarding.Record  `json:"onboarding"`
	Eligibility *eligibility.Result `json:"eligibility"`
}

// HandleCheckEligibility handles POST /onboarding/{id}/check-eligibility.
func (h *Handler) HandleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	onboardingID, err := id.ParseOnboardingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, result, err := h.service.CheckEligibility(ctx, onboardingID)
	if err != nil {
		h.logger.WarnContext(ctx, "onboarding eligibility check failed",
			"request_id", requestcontext.RequestID(ctx),
			"onboarding_id", onboardingID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, eligibilityResponse{Onboarding: rec, Eligibility: result})
}

type reviewRequest struct {
	Decision         string   `json:"decision"`
	RejectionReasons []string `json:"rejection_reasons"`
}

// HandleReview handles POST /onboarding/{id}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	onboardingID, err := id.ParseOnboardingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[reviewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	decision, err := onboarding.ParseReviewDecision(req.Decision)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Review(ctx, onboardingID, onboarding.ReviewInput{
		Decision:         decision,
		RejectionReasons: req.RejectionReasons,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

type allocateResponse struct {
	Onboarding *onboarding.Record `json:"onboarding"`
	Holding    *transfer.Holding  `json:"holding"`
}

// HandleAllocate handles POST /onboarding/{id}/allocate.
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	onboardingID, err := id.ParseOnboardingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, holding, err := h.service.Allocate(ctx, onboardingID)
	if err != nil {
		h.logger.WarnContext(ctx, "onboarding allocation failed",
			"request_id", requestcontext.RequestID(ctx),
			"onboarding_id", onboardingID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocateResponse{Onboarding: rec, Holding: holding})
}

// HandleWithdraw handles POST /onboarding/{id}/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	onboardingID, err := id.ParseOnboardingID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.Withdraw(r.Context(), onboardingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
