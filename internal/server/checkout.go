package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/dojo/internal/checkout/domain"
)

func (s *Server) CreateCheckoutIntent(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req checkoutdomain.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("payment_type", strings.TrimSpace(req.PaymentType))

	result, err := s.checkoutSvc.CreateIntent(c.Request.Context(), principal, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
