package handler

import (
	"net/http"

	"github.com/raditia/duet-media/internal/api"
)

// GoldQuote handles GET /api/quote/gold -- the cached world gold price.
func (h *Handler) GoldQuote(w http.ResponseWriter, r *http.Request) {
	q, cached, err := h.Quote.Latest(r.Context())
	if err != nil {
		api.BadGateway(w, err.Error())
		return
	}

	result := map[string]interface{}{
		"quote":  q,
		"cached": cached,
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(result))
}
