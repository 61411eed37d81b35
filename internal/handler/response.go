package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/paging"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// listData wraps a page of items.
type listData struct {
	Items      any         `json:"items"`
	Pagination paging.Meta `json:"pagination"`
}

// amount renders money as a JSON number with two decimals.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(2)), nil
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondList(c *gin.Context, items any, meta paging.Meta) {
	respond(c, http.StatusOK, "", listData{Items: items, Pagination: meta})
}

// fail writes the error response for err. Uncategorized errors are logged and
// hidden behind a generic message.
func fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		zctx.From(c.Request.Context()).Error("Request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), envelope{
		Message: apperr.MessageOf(err),
		Errors:  apperr.FieldsOf(err),
	})
}

// pageOf reads page and per_page query parameters.
func pageOf(c *gin.Context) paging.Request {
	return paging.Request{
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	}.Normalize()
}
