package handler

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/raditia/duet-media/internal/api"
	"github.com/raditia/duet-media/internal/gallery"
	"github.com/raditia/duet-media/internal/mediastore"
)

// destroyRequest is the body of POST /api/media/destroy.
type destroyRequest struct {
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
}

// Destroy handles POST /api/media/destroy -- signed deletion of a stored
// asset.
func (h *Handler) Destroy(w http.ResponseWriter, r *http.Request) {
	var body destroyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.PublicID == "" {
		api.BadRequest(w, "public_id is required")
		return
	}

	kind := mediastore.Kind(body.ResourceType)
	if body.ResourceType == "" {
		kind = mediastore.KindImage
	}
	if !kind.Valid() {
		api.BadRequest(w, "resource_type must be image or video")
		return
	}

	res, err := h.Store.Destroy(r.Context(), body.PublicID, kind)
	if err != nil {
		api.BadGateway(w, err.Error())
		return
	}
	// "not found" counts as deleted: the asset is gone either way, so
	// repeating a destroy is idempotent.
	if !res.Deleted() {
		api.BadGateway(w, "store refused deletion: "+res.Result)
		return
	}

	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(res))
}

// listKind parses and validates the type query parameter.
func listKind(r *http.Request) (mediastore.Kind, bool) {
	kind := mediastore.Kind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = mediastore.KindImage
	}
	return kind, kind.Valid()
}

// ListResources handles GET /api/media/resources -- proxies one page of
// the store's native listing.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	kind, ok := listKind(r)
	if !ok {
		api.BadRequest(w, "type must be image or video")
		return
	}

	list, err := h.Store.ListResources(r.Context(), kind, r.URL.Query().Get("cursor"))
	if err != nil {
		api.BadGateway(w, err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(list))
}

// Gallery handles GET /api/gallery -- the normalized listing the dashboard
// renders.
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	kind, ok := listKind(r)
	if !ok {
		api.BadRequest(w, "type must be image or video")
		return
	}

	list, err := h.Store.ListResources(r.Context(), kind, r.URL.Query().Get("cursor"))
	if err != nil {
		api.BadGateway(w, err.Error())
		return
	}

	result := map[string]interface{}{
		"items":       gallery.Normalize(list.Resources),
		"next_cursor": list.NextCursor,
	}
	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(result))
}
