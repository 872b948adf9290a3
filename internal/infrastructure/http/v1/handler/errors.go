package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/filter"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/layer"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
)

var (
	ErrInvalidTileCoordinates = errors.New("tile coordinates should be non-negative integers")
	ErrInvalidGridLoc         = errors.New("grid location should look like x<x>y<y>z<z>")
	ErrMissingExtension       = errors.New("tile y should carry a format extension")
	ErrBackendUnavailable     = errors.New("no backend could render the tile")
)

// statusFor maps usecase errors to the response code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, layer.ErrUnknownLayer),
		errors.Is(err, grid.ErrOutsideCoverage),
		errors.Is(err, grid.ErrZoomOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, grid.ErrUnknownSRS),
		errors.Is(err, layer.ErrUnsupportedSRS),
		errors.Is(err, layer.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, filter.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, metatile.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
