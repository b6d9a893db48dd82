package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custos/internal/ledger"
	id "custos/pkg/domain"
	dErrors "custos/pkg/domain-errors"
	"custos/pkg/platform/httputil"
)

// Handler wires ledger read endpoints. The ledger has no write endpoint; only
// evaluators append.
type Handler struct {
	service     *ledger.Service
	logger      *slog.Logger
	recentLimit int
}

func New(service *ledger.Service, logger *slog.Logger, recentLimit int) *Handler {
	if recentLimit <= 0 {
		recentLimit = 100
	}
	return &Handler{service: service, logger: logger, recentLimit: recentLimit}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/decisions/{id}", h.HandleGet)
	r.Get("/decisions", h.HandleList)
}

// HandleGet handles GET /decisions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	decisionID, err := id.ParseDecisionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Get(r.Context(), decisionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleList handles GET /decisions. With asset_id it lists that asset's
// records oldest-first (optionally bounded by from/to); without it, the most
// recent records newest-first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if assetParam := q.Get("asset_id"); assetParam != "" {
		assetID, err := id.ParseAssetID(assetParam)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		from, err := parseTimeParam(q.Get("from"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		to, err := parseTimeParam(q.Get("to"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		records, err := h.service.ListByAsset(ctx, assetID, from, to)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, listResponse{Decisions: records})
		return
	}

	records, err := h.service.Recent(ctx, h.recentLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Decisions: records})
}

type listResponse struct {
	Decisions []*ledger.DecisionRecord `json:"decisions"`
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "time parameters must be RFC 3339")
	}
	return t, nil
}
