package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
)

type bboxResponse struct {
	Layer    string    `json:"layer"`
	SRS      string    `json:"srs"`
	GridLoc  string    `json:"gridloc"`
	BBox     grid.BBox `json:"bbox"`
	Parent   string    `json:"parent,omitempty"`
	Children []string  `json:"children"`
}

// BBox resolves a grid location like x1y2z3 to its bounding box.
func (h *Handler) BBox(c *gin.Context) {
	srs, err := grid.ParseSRS(c.Param("srs"))
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, err)
		return
	}

	cell, err := grid.ParseGridLoc(c.Param("gridloc"))
	if err != nil {
		loggerFrom(c).Warn("invalid gridloc parameter", "gridloc", c.Param("gridloc"), "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrInvalidGridLoc)
		return
	}

	box, err := h.tileUseCase.CellBBox(c.Param("layer"), srs, cell)
	if err != nil {
		h.RespondWithError(c, statusFor(err), err)
		return
	}

	resp := bboxResponse{
		Layer:   c.Param("layer"),
		SRS:     srs.String(),
		GridLoc: cell.GridLoc(),
		BBox:    box,
	}
	if parent, ok := cell.Parent(); ok {
		resp.Parent = parent.GridLoc()
	}
	for _, child := range cell.Children() {
		resp.Children = append(resp.Children, child.GridLoc())
	}

	h.RespondWithJSON(c, http.StatusOK, "got bbox", resp)
}
