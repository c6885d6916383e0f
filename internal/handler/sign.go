package handler

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/raditia/duet-media/internal/api"
)

// signRequest is the body of POST /api/media/sign. Values are scalars:
// strings, numbers or booleans.
type signRequest struct {
	Params map[string]interface{} `json:"params"`
}

// Sign handles POST /api/media/sign -- issues a single-use upload
// credential over the caller-supplied parameter set. The secret stays
// server-side.
func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	var body signRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(body.Params) == 0 {
		api.BadRequest(w, "params is required")
		return
	}

	params := make(map[string]string, len(body.Params))
	for k, v := range body.Params {
		s, ok := stringify(v)
		if !ok {
			api.BadRequest(w, "parameter "+k+" must be a string, number or boolean")
			return
		}
		params[k] = s
	}

	cred, err := h.Issuer.Issue(params)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	if ts, err := strconv.ParseInt(params["timestamp"], 10, 64); err == nil {
		cred.Timestamp = ts
	}

	api.WriteJSON(w, http.StatusOK, api.SuccessResponse(cred))
}

// stringify renders a JSON scalar the way it must appear in the signed
// string: numbers without exponent notation, no extra escaping.
func stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
