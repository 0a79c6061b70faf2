package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/dojo/internal/audit/domain"
	"github.com/smallbiznis/dojo/internal/audit/masking"
	auditcontext "github.com/smallbiznis/dojo/internal/auditcontext"
	"github.com/smallbiznis/dojo/internal/clock"
	"github.com/smallbiznis/dojo/internal/errs"
	obscontext "github.com/smallbiznis/dojo/internal/observability/context"
	"github.com/smallbiznis/dojo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 250
)

// secretKeys are masked before metadata is stored.
var secretKeys = []string{"client_secret", "token"}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}
	resolvedActorType, resolvedActorID := resolveActor(ctx, strings.TrimSpace(actorType), actorID)

	payload := masking.MaskKeys(metadata, secretKeys...)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  resolvedActorType,
		ActorID:    resolvedActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now(),
	}
	if ip := auditcontext.IPAddressFromContext(ctx); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := auditcontext.UserAgentFromContext(ctx); ua != "" {
		entry.UserAgent = &ua
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (*auditdomain.ListAuditLogResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	filter := auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Limit:      limit + 1,
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, errs.Invalid("page_token", "page_token is invalid")
	}
	if cursor != nil {
		beforeID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, errs.Invalid("page_token", "page_token is invalid")
		}
		filter.BeforeID = beforeID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.Page(items, limit, func(entry auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: entry.ID.String()}
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []auditdomain.AuditLog{}
	}
	return &auditdomain.ListAuditLogResponse{Items: items, PageInfo: pageInfo}, nil
}

func resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorID == nil || strings.TrimSpace(*actorID) == "" {
		if ctxID := obscontext.ActorIDFromContext(ctx); ctxID != "" {
			actorID = &ctxID
			if actorType == "" {
				actorType = string(auditdomain.ActorTypeUser)
			}
		}
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	return actorType, normalizePointer(actorID)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
