package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custos/internal/transfer"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/httputil"
	"custos/pkg/requestcontext"
)

// Handler exposes transfer simulation and execution.
type Handler struct {
	service *transfer.Service
	logger  *slog.Logger
}

func New(service *transfer.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts transfer endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transfers/simulate", h.HandleSimulate)
	r.Post("/transfers", h.HandleExecute)
}

type transferRequest struct {
	AssetID        string `json:"asset_id"`
	FromInvestorID string `json:"from_investor_id"`
	ToInvestorID   string `json:"to_investor_id"`
	Units          int64  `json:"units"`
	ExecutionDate  string `json:"execution_date"`
}

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (transfer.Request, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, ok := httputil.DecodeAndPrepare[transferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return transfer.Request{}, false
	}

	assetID, err := id.ParseAssetID(body.AssetID)
	if err != nil {
		httputil.WriteError(w, err)
		return transfer.Request{}, false
	}
	fromID, err := id.ParseInvestorID(body.FromInvestorID)
	if err != nil {
		httputil.WriteError(w, err)
		return transfer.Request{}, false
	}
	toID, err := id.ParseInvestorID(body.ToInvestorID)
	if err != nil {
		httputil.WriteError(w, err)
		return transfer.Request{}, false
	}
	executionDate, err := time.Parse(time.RFC3339, body.ExecutionDate)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "execution_date must be RFC 3339"))
		return transfer.Request{}, false
	}

	return transfer.Request{
		AssetID:        assetID,
		FromInvestorID: fromID,
		ToInvestorID:   toID,
		Units:          body.Units,
		ExecutionDate:  executionDate,
	}, true
}

// HandleSimulate handles POST /transfers/simulate.
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Simulate(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "transfer simulation failed",
			"request_id", requestcontext.RequestID(ctx),
			"asset_id", req.AssetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type executeResponse struct {
	Transfer   *transfer.Transfer          `json:"transfer"`
	Validation *transfer.ValidationResult  `json:"validation"`
}

// HandleExecute handles POST /transfers. A failed validation returns 422 with
// the error envelope carrying every violation.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	executed, result, err := h.service.Execute(ctx, req)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			h.logger.WarnContext(ctx, "transfer execution failed",
				"request_id", requestcontext.RequestID(ctx),
				"asset_id", req.AssetID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, executeResponse{
		Transfer:   executed,
		Validation: result,
	})
}
