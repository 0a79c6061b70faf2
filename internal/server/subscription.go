package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/dojo/internal/subscription/domain"
)

type setManualSubscriptionRequest struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
}

type clearManualSubscriptionRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) GetManualSubscription(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	manual, err := s.subscriptionSvc.GetManualSubscription(c.Request.Context(), principal.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"manualSubscription": manual}})
}

func (s *Server) GetEffectivePlan(c *gin.Context) {
	principal, err := principalFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	effective, err := s.subscriptionSvc.GetEffectivePlan(c.Request.Context(), principal.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": effective})
}

func (s *Server) SetManualSubscription(c *gin.Context) {
	actor, err := s.actorFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setManualSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	override, err := s.subscriptionSvc.SetOverride(c.Request.Context(), actor, req.UserID, req.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": override})
}

func (s *Server) ClearManualSubscription(c *gin.Context) {
	actor, err := s.actorFromGin(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req clearManualSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.subscriptionSvc.ClearOverride(c.Request.Context(), actor, req.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"success": true}})
}

func (s *Server) GetManualSubscriptionOverride(c *gin.Context) {
	override, err := s.subscriptionSvc.GetOverride(c.Request.Context(), strings.TrimSpace(c.Param("userId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": override})
}

func (s *Server) actorFromGin(c *gin.Context) (subscriptiondomain.Actor, error) {
	principal, err := principalFromGin(c)
	if err != nil {
		return subscriptiondomain.Actor{}, err
	}
	return subscriptiondomain.Actor{
		ID:      principal.ID,
		IsAdmin: c.GetBool(contextIsAdminKey),
	}, nil
}
