package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/d60-Lab/timeline-fanout/internal/model"
	"github.com/d60-Lab/timeline-fanout/internal/repository"
	"github.com/d60-Lab/timeline-fanout/internal/visibility"
)

// ViewerService 组装某个用户的关系快照
type ViewerService struct {
	users     repository.UserRepository
	follows   repository.FollowRepository
	relations repository.RelationRepository
}

func NewViewerService(users repository.UserRepository, follows repository.FollowRepository, relations repository.RelationRepository) *ViewerService {
	return &ViewerService{users: users, follows: follows, relations: relations}
}

// Load 读取用户及其关系快照。快照不可变，调用方按需重新加载。
func (s *ViewerService) Load(ctx context.Context, userID string) (*model.User, *visibility.Viewer, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	followees, err := s.follows.ListFolloweeIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load followees: %w", err)
	}
	followers, err := s.follows.ListFollowerIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load followers: %w", err)
	}
	muted, err := s.relations.ListMutedIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load mutings: %w", err)
	}
	renoteMuted, err := s.relations.ListRenoteMutedIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load renote mutings: %w", err)
	}
	blocked, err := s.relations.ListBlockRelatedIDs(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load blockings: %w", err)
	}

	following := visibility.NewIDSet(followees...)
	followedBy := visibility.NewIDSet(followers...)
	mutual := make(visibility.IDSet)
	for id := range following {
		if followedBy.Has(id) {
			mutual[id] = struct{}{}
		}
	}

	words := make([][]string, 0, len(user.MutedWords))
	for _, group := range user.MutedWords {
		g := make([]string, len(group))
		for i, kw := range group {
			g[i] = strings.ToLower(kw)
		}
		words = append(words, g)
	}

	v := &visibility.Viewer{
		ID:             user.ID,
		Following:      following,
		Mutual:         mutual,
		Muted:          visibility.NewIDSet(muted...),
		RenoteMuted:    visibility.NewIDSet(renoteMuted...),
		Blocked:        visibility.NewIDSet(blocked...),
		MutedInstances: visibility.NewIDSet(user.MutedInstances...),
		MutedWords:     words,
	}
	return user, v, nil
}
