package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/oolio-shop/internal/apperr"
	"github.com/xenking/oolio-shop/internal/domain/order"
)

func (h *Handler) getSettings(c *gin.Context) {
	values, err := h.svc.Settings.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", values)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, apperr.Validation("Settings must be an object of string values"))
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.Settings.Update(ctx, body); err != nil {
		fail(c, err)
		return
	}
	values, err := h.svc.Settings.Get(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Settings updated", values)
}

type dashboardView struct {
	OrdersByStatus   map[order.Status]int `json:"orders_by_status"`
	TotalOrders      int                  `json:"total_orders"`
	Revenue          amount               `json:"revenue"`
	LowStockProducts int                  `json:"low_stock_products"`
}

func (h *Handler) dashboard(c *gin.Context) {
	sum, err := h.svc.Dashboard.Summary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", dashboardView{
		OrdersByStatus:   sum.OrdersByStatus,
		TotalOrders:      sum.TotalOrders,
		Revenue:          amount(sum.Revenue),
		LowStockProducts: sum.LowStockProducts,
	})
}
