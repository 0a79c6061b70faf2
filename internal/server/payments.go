package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
)

func (s *Server) SavePayment(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req paymentdomain.SavePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.paymentSvc.SavePayment(c.Request.Context(), paymentdomain.Payer{
		UserID: principal.ID,
		Email:  principal.Email,
	}, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("payment_type", string(record.PaymentType))

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"success": true,
		"payment": record,
	}})
}

func (s *Server) ListPayments(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, err := s.paymentSvc.ListPayments(c.Request.Context(), principal.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (s *Server) GetPayment(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	intentID := strings.TrimSpace(c.Param("intentId"))
	if intentID == "" {
		AbortWithError(c, errs.ErrNotFound)
		return
	}

	record, err := s.paymentSvc.GetPayment(c.Request.Context(), principal.ID, intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (s *Server) DownloadPaymentReceipt(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	intentID := strings.TrimSpace(c.Param("intentId"))
	if intentID == "" {
		AbortWithError(c, errs.ErrNotFound)
		return
	}

	reader, err := s.paymentSvc.RenderReceipt(c.Request.Context(), paymentdomain.Payer{
		UserID: principal.ID,
		Email:  principal.Email,
	}, intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, intentID),
	})
}
