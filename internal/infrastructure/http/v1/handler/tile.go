package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/usecase"
)

type tileParams struct {
	Layer  string `validate:"required"`
	X      int    `validate:"gte=0"`
	Y      int    `validate:"gte=0"`
	Z      int    `validate:"gte=0,lte=30"`
	Format string `validate:"required"`
}

// Tile serves GET /tile/:layer/:srs/:z/:x/:y where y ends in the format
// extension. Rows grow northwards unless ?scheme=xyz is given.
func (h *Handler) Tile(c *gin.Context) {
	l := loggerFrom(c)

	srs, err := grid.ParseSRS(c.Param("srs"))
	if err != nil {
		l.Warn("invalid srs parameter", "srs", c.Param("srs"), "error", err)
		h.RespondWithError(c, http.StatusBadRequest, err)
		return
	}

	strY, ext, ok := strings.Cut(c.Param("y"), ".")
	if !ok {
		h.RespondWithError(c, http.StatusBadRequest, ErrMissingExtension)
		return
	}

	p := tileParams{Layer: c.Param("layer"), Format: ext}
	coords := []struct {
		name string
		dst  *int
		raw  string
	}{
		{"x", &p.X, c.Param("x")},
		{"y", &p.Y, strY},
		{"z", &p.Z, c.Param("z")},
	}
	for _, coord := range coords {
		v, err := strconv.Atoi(coord.raw)
		if err != nil {
			l.Warn("invalid tile coordinate", coord.name, coord.raw, "error", err)
			h.RespondWithError(c, http.StatusBadRequest, ErrInvalidTileCoordinates)
			return
		}
		*coord.dst = v
	}

	if err := h.validate.Struct(p); err != nil {
		l.Warn("invalid tile request", "error", err)
		h.RespondWithError(c, http.StatusBadRequest, ErrInvalidTileCoordinates)
		return
	}

	req := usecase.TileRequest{
		Layer:  p.Layer,
		SRS:    srs,
		Cell:   grid.Cell{X: p.X, Y: p.Y, Z: p.Z},
		Format: p.Format,
		XYZ:    c.Query("scheme") == "xyz",
	}

	res, err := h.tileUseCase.GetTile(c.Request.Context(), req)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusBadGateway {
			l.Error("failed to get tile", "layer", p.Layer, "cell", req.Cell.GridLoc(), "error", err)
			c.Error(err)
			h.RespondWithJSON(c, code, ErrBackendUnavailable.Error(), nil)
			return
		}
		h.RespondWithError(c, code, err)
		return
	}

	if maxAge, ok := res.MaxAge(); ok {
		c.Header("Cache-Control", fmt.Sprintf("max-age=%d", int64(maxAge.Seconds())))
	}
	if res.Source == usecase.SourceCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}

	c.Data(http.StatusOK, res.Format.MimeType(), res.Data)
}
