package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/dojo/internal/auth"
	"github.com/smallbiznis/dojo/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscriptionOverride = "subscription_override"

	ActionWrite = "write"
	ActionRead  = "read"

	roleAdmin = "role:admin"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads the policy table and seeds the admin role. Users listed in
// ADMIN_USER_IDS are bound to it on every start.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	for _, userID := range cfg.AdminUserIDs {
		if err := addGrouping(enforcer, subject(userID), roleAdmin); err != nil {
			return nil, err
		}
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) IsAdmin(ctx context.Context, principal auth.Principal) (bool, error) {
	userID := strings.TrimSpace(principal.ID)
	if userID == "" {
		return false, ErrInvalidActor
	}

	sub := subject(userID)
	if principal.HasAdminClaim() {
		if err := addGrouping(s.enforcer, sub, roleAdmin); err != nil {
			return false, err
		}
	}

	allowed, err := s.enforcer.Enforce(sub, ObjectSubscriptionOverride, ActionWrite)
	if err != nil {
		return false, err
	}
	if !allowed {
		s.log.Debug("admin check denied", zap.String("user_id", userID))
	}
	return allowed, nil
}

func (s *ServiceImpl) GrantAdmin(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidActor
	}
	return addGrouping(s.enforcer, subject(userID), roleAdmin)
}

func (s *ServiceImpl) RevokeAdmin(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidActor
	}
	_, err := s.enforcer.RemoveGroupingPolicy(subject(userID), roleAdmin)
	return err
}

func subject(userID string) string {
	return fmt.Sprintf("user:%s", strings.TrimSpace(userID))
}

func addGrouping(enforcer *casbin.SyncedEnforcer, sub, role string) error {
	has, err := enforcer.HasGroupingPolicy(sub, role)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = enforcer.AddGroupingPolicy(sub, role)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleAdmin, ObjectSubscriptionOverride, ActionWrite},
		{roleAdmin, ObjectSubscriptionOverride, ActionRead},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
