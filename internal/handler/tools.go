package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/raditia/duet-media/internal/api"
	"github.com/raditia/duet-media/internal/mediastore"
	"github.com/raditia/duet-media/internal/transform"
)

// maxToolUpload bounds the multipart form size for AI tool inputs.
const maxToolUpload = 32 << 20

// Transform handles POST /api/tools/transform -- uploads the file as a
// temporary asset, runs the named AI tool against it and returns the
// result. The temporary asset is released whether the tool succeeds or not.
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxToolUpload); err != nil {
		api.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	tool := r.FormValue("tool")
	if tool == "" {
		api.BadRequest(w, "missing required field: tool")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.BadRequest(w, "missing required field: file")
		return
	}
	defer file.Close()

	kind := mediastore.Kind(r.FormValue("resource_type"))
	if kind == "" {
		kind = mediastore.KindImage
	}
	if !kind.Valid() {
		api.BadRequest(w, "resource_type must be image or video")
		return
	}

	result, err := h.Pipeline.Run(r.Context(), file, header.Filename, kind, tool, r.FormValue("prompt"))
	if err != nil {
		// A bad tool name is the caller's mistake, not an upstream failure.
		if errors.Is(err, transform.ErrUnknownTool) {
			api.BadRequest(w, "unknown tool "+strconv.Quote(tool)+"; available: "+strings.Join(h.Pipeline.Tools(), ", "))
			return
		}
		h.Logger.Error().Err(err).Str("tool", tool).Msg("transform failed")
		api.BadGateway(w, err.Error())
		return
	}

	// The tool either returned media bytes or a JSON result; pass both
	// through as-is.
	if format := transform.DetectImageFormat(result); format != "" {
		w.Header().Set("Content-Type", "image/"+format)
		w.Header().Set("Content-Length", strconv.Itoa(len(result)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result); err != nil {
			h.Logger.Error().Err(err).Msg("failed to write transform result")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result); err != nil {
		h.Logger.Error().Err(err).Msg("failed to write transform result")
	}
}
