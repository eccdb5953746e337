package handlers

import (
	"net/http"

	contract "manimrender/internal/contracts/render"
	"manimrender/internal/httpkit"
)

// PostRender renders the script, uploads the video and answers with the
// render result. Failures use the same body with success=false.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	var req contract.Request
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}

	res := h.render.Render(r.Context(), req)
	httpkit.WriteJSON(w, res.HTTPStatus(), res.Response())
	return nil
}
