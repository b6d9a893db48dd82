package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custos/internal/eligibility"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/httputil"
	"custos/pkg/requestcontext"
)

// Handler exposes eligibility evaluation over HTTP.
type Handler struct {
	service *eligibility.Service
	logger  *slog.Logger
}

func New(service *eligibility.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts eligibility endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/eligibility/check", h.HandleCheck)
}

type checkRequest struct {
	InvestorID       string `json:"investor_id"`
	FundStructureID  string `json:"fund_structure_id"`
	InvestmentAmount *int64 `json:"investment_amount,omitempty"`
}

// HandleCheck handles POST /eligibility/check.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[checkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	investorID, err := id.ParseInvestorID(req.InvestorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fundID, err := id.ParseFundStructureID(req.FundStructureID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.InvestmentAmount != nil && *req.InvestmentAmount <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "investment amount must be positive"))
		return
	}

	result, err := h.service.Evaluate(ctx, eligibility.Request{
		InvestorID:       investorID,
		FundStructureID:  fundID,
		InvestmentAmount: req.InvestmentAmount,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "eligibility check failed",
			"request_id", requestID,
			"investor_id", req.InvestorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
