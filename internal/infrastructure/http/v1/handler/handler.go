package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/usecase"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// TileUseCase is implemented by *usecase.TileUseCase.
type TileUseCase interface {
	GetTile(ctx context.Context, req usecase.TileRequest) (*usecase.TileResult, error)
	CellBBox(layer string, srs grid.SRS, cell grid.Cell) (grid.BBox, error)
	Layers() []usecase.LayerInfo
	RefreshFilters() error
}

type Handler struct {
	validate    *validator.Validate
	tileUseCase TileUseCase
}

func NewHandler(v *validator.Validate, uc TileUseCase) *Handler {
	return &Handler{
		validate:    v,
		tileUseCase: uc,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context, err error) {
	h.RespondWithError(c, http.StatusInternalServerError, err)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

// RespondWithError hides the cause of 5xx responses from the client and logs it.
func (h *Handler) RespondWithError(c *gin.Context, code int, err error) {
	c.Error(err)

	if code >= http.StatusInternalServerError {
		loggerFrom(c).Error("http_server error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", code,
			"user_agent", c.Request.UserAgent(),
			"ip", c.ClientIP(),
			"error", err,
		)
		h.RespondWithJSON(c, code, internalServerErrorText, nil)
		return
	}

	h.RespondWithJSON(c, code, err.Error(), nil)
}

func loggerFrom(c *gin.Context) logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if l, ok := l.(logger.Logger); ok {
			return l
		}
	}
	return logger.FromContext(c.Request.Context())
}
