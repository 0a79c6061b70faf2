package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/dojo/pkg/db/pagination"
)

type ListAuditLogRequest struct {
	Action     string
	TargetType string
	TargetID   string
	Limit      int
	PageToken  string
}

type ListAuditLogResponse struct {
	Items    []AuditLog          `json:"items"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (*ListAuditLogResponse, error)
}

var ErrInvalidAction = errors.New("invalid_action")
