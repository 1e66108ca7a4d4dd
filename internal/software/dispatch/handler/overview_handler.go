package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ----- Handler: GET /overview -----

func (handler *QueryHTTPHandler) handleOverview(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	overview, err := handler.svc.Overview(ctx)
	if err != nil {
		handler.writeQueryError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, overview)
}
