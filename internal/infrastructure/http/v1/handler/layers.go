package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Layers(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusOK, "got layers", h.tileUseCase.Layers())
}

// RefreshFilters recomputes filter state of every layer.
func (h *Handler) RefreshFilters(c *gin.Context) {
	if err := h.tileUseCase.RefreshFilters(); err != nil {
		h.RespondWithInternalServerError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "filters refreshed", nil)
}
