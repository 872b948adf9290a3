package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/filter"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/layer"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/usecase"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUseCase struct {
	result *usecase.TileResult
	err    error

	lastReq usecase.TileRequest
	calls   int
}

func (s *stubUseCase) GetTile(_ context.Context, req usecase.TileRequest) (*usecase.TileResult, error) {
	s.calls++
	s.lastReq = req
	return s.result, s.err
}

func (s *stubUseCase) CellBBox(layerName string, srs grid.SRS, cell grid.Cell) (grid.BBox, error) {
	if layerName != "states" {
		return grid.BBox{}, layer.ErrUnknownLayer
	}
	return grid.BBox{MinX: -180, MinY: -90, MaxX: 0, MaxY: 90}, nil
}

func (s *stubUseCase) Layers() []usecase.LayerInfo {
	return []usecase.LayerInfo{{Name: "states", SRS: []string{"EPSG:4326"}}}
}

func (s *stubUseCase) RefreshFilters() error {
	return s.err
}

func newTestRouter(uc *stubUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(handler.NewHandler(validator.New(), uc), logger.NewNoOpLogger(), false)
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestTile(t *testing.T) {
	uc := &stubUseCase{result: &usecase.TileResult{
		Data:             []byte("png bytes"),
		Format:           metatile.FormatPNG,
		ClientExpiration: 600_000,
		Source:           usecase.SourceBackend,
	}}
	r := newTestRouter(uc)

	w := serve(r, http.MethodGet, "/api/v1/tile/states/EPSG:900913/3/1/2.png")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=600", w.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "png bytes", w.Body.String())
	assert.Equal(t, usecase.TileRequest{
		Layer:  "states",
		SRS:    grid.EPSG900913,
		Cell:   grid.Cell{X: 1, Y: 2, Z: 3},
		Format: "png",
	}, uc.lastReq)

	uc.result.ClientExpiration = metatile.ExpirationClientDefault
	uc.result.Source = usecase.SourceCache
	w = serve(r, http.MethodGet, "/api/v1/tile/states/900913/3/1/2.png?scheme=xyz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.True(t, uc.lastReq.XYZ)
}

func TestTileBadRequest(t *testing.T) {
	uc := &stubUseCase{}
	r := newTestRouter(uc)

	for _, target := range []string{
		"/api/v1/tile/states/EPSG:2056/1/1/1.png",
		"/api/v1/tile/states/4326/1/1/1",
		"/api/v1/tile/states/4326/a/1/1.png",
		"/api/v1/tile/states/4326/1/-1/1.png",
		"/api/v1/tile/states/4326/31/1/1.png",
	} {
		t.Run(target, func(t *testing.T) {
			w := serve(r, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Zero(t, uc.calls)
}

func TestTileErrorStatus(t *testing.T) {
	tests := map[string]struct {
		err  error
		code int
	}{
		"unknown layer":      {err: fmt.Errorf("%w: %q", layer.ErrUnknownLayer, "roads"), code: http.StatusNotFound},
		"outside coverage":   {err: grid.ErrOutsideCoverage, code: http.StatusNotFound},
		"unsupported format": {err: layer.ErrUnsupportedFormat, code: http.StatusBadRequest},
		"rejected":           {err: &filter.RejectedError{Filter: "zoom"}, code: http.StatusForbidden},
		"fetch failed":       {err: fmt.Errorf("%w: boom", metatile.ErrFetchFailed), code: http.StatusBadGateway},
		"deadline":           {err: context.DeadlineExceeded, code: http.StatusGatewayTimeout},
		"other":              {err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := newTestRouter(&stubUseCase{err: tt.err})
			w := serve(r, http.MethodGet, "/api/v1/tile/states/EPSG:4326/1/1/1.png")
			assert.Equal(t, tt.code, w.Code)

			var resp struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotContains(t, resp.Message, "boom")
		})
	}
}

func TestBBox(t *testing.T) {
	r := newTestRouter(&stubUseCase{})

	w := serve(r, http.MethodGet, "/api/v1/bbox/states/EPSG:4326/x1y0z1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			SRS      string    `json:"srs"`
			GridLoc  string    `json:"gridloc"`
			BBox     grid.BBox `json:"bbox"`
			Parent   string    `json:"parent"`
			Children []string  `json:"children"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "EPSG:4326", resp.Data.SRS)
	assert.Equal(t, "x1y0z1", resp.Data.GridLoc)
	assert.Equal(t, "x0y0z0", resp.Data.Parent)
	assert.Len(t, resp.Data.Children, 4)
	assert.Equal(t, -180.0, resp.Data.BBox.MinX)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/v1/bbox/states/EPSG:4326/x1y0").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/v1/bbox/roads/EPSG:4326/x1y0z1").Code)
}

func TestServiceEndpoints(t *testing.T) {
	r := newTestRouter(&stubUseCase{})

	w := serve(r, http.MethodGet, "/api/v1/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = serve(r, http.MethodGet, "/api/v1/layers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"states"`)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/layers/filters/refresh").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/metrics").Code)

	r = newTestRouter(&stubUseCase{err: errors.New("boom")})
	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodPost, "/api/v1/layers/filters/refresh").Code)
}
