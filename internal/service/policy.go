package service

import (
	"errors"

	"github.com/d60-Lab/timeline-fanout/config"
	"github.com/d60-Lab/timeline-fanout/internal/model"
)

var ErrPolicyDenied = errors.New("mutual timeline has been disabled")

// PolicyResolver 按角色解析功能开关
type PolicyResolver struct {
	policies config.PoliciesConfig
}

func NewPolicyResolver(policies config.PoliciesConfig) *PolicyResolver {
	return &PolicyResolver{policies: policies}
}

// MutualTimeline 返回 ErrPolicyDenied 表示该用户不可用
func (r *PolicyResolver) MutualTimeline(u *model.User) error {
	role := ""
	if u != nil {
		role = u.Role
	}
	if !r.policies.For(role).MutualTimeline {
		return ErrPolicyDenied
	}
	return nil
}
