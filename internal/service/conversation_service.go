package service

import (
	"context"
	"sort"

	"parley/internal/cache"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ConversationService builds a user's ranked conversation list.
type ConversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.DirectMessageRepository
	userRepo repository.UserRepository
	relRepo  repository.RelationshipRepository
	infra    Infra
}

// NewConversationService returns a new ConversationService.
func NewConversationService(
	convRepo repository.ConversationRepository,
	msgRepo repository.DirectMessageRepository,
	userRepo repository.UserRepository,
	relRepo repository.RelationshipRepository,
	infra Infra,
) *ConversationService {
	return &ConversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		relRepo:  relRepo,
		infra:    infra,
	}
}

// ListConversations returns every visible direct conversation and every accepted group
// of userID, newest activity first. Entries without messages come last.
func (s *ConversationService) ListConversations(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	defer observability.TrackLatency(observability.ConversationListLatency, "total")()

	span, ctx := observability.StartOperation(ctx, "conversations.list", userID)
	defer span.End()

	var list []models.ConversationSummary
	err := s.infra.Cache.Aside(ctx, cache.ConversationListKey(userID), &list, s.infra.ListCacheTTL, func() error {
		defer observability.TrackLatency(observability.ConversationListLatency, "database")()
		built, err := s.build(ctx, userID)
		if err != nil {
			return err
		}
		list = built
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	span.AddAttributes(attribute.Int("conversations.count", len(list)))
	return list, nil
}

func (s *ConversationService) build(ctx context.Context, userID uint) ([]models.ConversationSummary, error) {
	var (
		directThreads []repository.DirectThread
		groupThreads  []repository.GroupThread
		memberships   []models.GroupMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		directThreads, err = s.convRepo.DirectThreads(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		groupThreads, err = s.convRepo.GroupThreads(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		memberships, err = s.convRepo.AcceptedMemberships(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	direct, err := s.directSummaries(ctx, userID, directThreads)
	if err != nil {
		return nil, err
	}
	groups, err := s.groupSummaries(ctx, groupThreads, memberships)
	if err != nil {
		return nil, err
	}

	list := make([]models.ConversationSummary, 0, len(direct)+len(groups))
	list = append(list, direct...)
	list = append(list, groups...)
	sortConversations(list)
	return list, nil
}

func (s *ConversationService) directSummaries(ctx context.Context, userID uint, threads []repository.DirectThread) ([]models.ConversationSummary, error) {
	if len(threads) == 0 {
		return nil, nil
	}

	counterpartIDs := make([]uint, 0, len(threads))
	messageIDs := make([]uint, 0, len(threads))
	for _, t := range threads {
		counterpartIDs = append(counterpartIDs, t.CounterpartID)
		messageIDs = append(messageIDs, t.LastMessageID)
	}

	var (
		users    []models.User
		messages []models.DirectMessage
		contacts []uint
		blocks   []models.Block
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.userRepo.GetByIDs(gctx, append([]uint{userID}, counterpartIDs...))
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = s.msgRepo.GetByIDs(gctx, messageIDs)
		return err
	})
	g.Go(func() error {
		var err error
		contacts, err = s.relRepo.ContactIDsAmong(gctx, userID, counterpartIDs)
		return err
	})
	g.Go(func() error {
		var err error
		blocks, err = s.relRepo.BlockEdgesAmong(gctx, userID, counterpartIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	usersByID := make(map[uint]models.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}
	messagesByID := make(map[uint]models.DirectMessage, len(messages))
	for _, m := range messages {
		messagesByID[m.ID] = m
	}
	contactSet := make(map[uint]bool, len(contacts))
	for _, id := range contacts {
		contactSet[id] = true
	}
	blockedByYou := map[uint]bool{}
	hasBlockedYou := map[uint]bool{}
	for _, b := range blocks {
		if b.BlockerID == userID {
			blockedByYou[b.BlockedID] = true
		} else {
			hasBlockedYou[b.BlockerID] = true
		}
	}

	out := make([]models.ConversationSummary, 0, len(threads))
	for _, t := range threads {
		counterpart := usersByID[t.CounterpartID]
		summary := models.ConversationSummary{
			Kind:          models.ConversationDirect,
			ID:            t.CounterpartID,
			DisplayName:   counterpart.Name,
			AvatarRef:     counterpart.AvatarPath,
			UnreadCount:   t.UnreadCount,
			IsContact:     contactSet[t.CounterpartID],
			BlockedByYou:  blockedByYou[t.CounterpartID],
			HasBlockedYou: hasBlockedYou[t.CounterpartID],
		}
		if msg, ok := messagesByID[t.LastMessageID]; ok {
			createdAt := msg.CreatedAt
			summary.LastMessageID = msg.ID
			summary.LastMessagePreview = models.Preview(msg.Content, msg.MessageType, msg.OriginalFilename)
			summary.LastMessageAt = &createdAt
			summary.LastSenderID = msg.SenderID
			summary.LastSenderName = usersByID[msg.SenderID].Name
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *ConversationService) groupSummaries(ctx context.Context, threads []repository.GroupThread, memberships []models.GroupMember) ([]models.ConversationSummary, error) {
	if len(threads) == 0 {
		return nil, nil
	}

	messageIDs := make([]uint, 0, len(threads))
	for _, t := range threads {
		if t.LastMessageID > 0 {
			messageIDs = append(messageIDs, t.LastMessageID)
		}
	}
	messages, err := s.convRepo.GroupMessagesByIDs(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	messagesByID := make(map[uint]models.GroupMessage, len(messages))
	for _, m := range messages {
		messagesByID[m.ID] = m
	}
	membershipByGroup := make(map[uint]models.GroupMember, len(memberships))
	for _, m := range memberships {
		membershipByGroup[m.GroupID] = m
	}

	out := make([]models.ConversationSummary, 0, len(threads))
	for _, t := range threads {
		membership, ok := membershipByGroup[t.GroupID]
		if !ok || membership.Group == nil {
			continue
		}
		summary := models.ConversationSummary{
			Kind:        models.ConversationGroup,
			ID:          t.GroupID,
			DisplayName: membership.Group.Name,
			AvatarRef:   membership.Group.AvatarPath,
			UnreadCount: t.UnreadCount,
			MemberCount: t.MemberCount,
			IsAdmin:     membership.Role == models.GroupRoleAdmin,
		}
		if msg, ok := messagesByID[t.LastMessageID]; ok {
			createdAt := msg.CreatedAt
			summary.LastMessageID = msg.ID
			summary.LastMessagePreview = models.Preview(msg.Content, msg.MessageType, msg.OriginalFilename)
			summary.LastMessageAt = &createdAt
			summary.LastSenderID = msg.SenderID
			if msg.Sender != nil {
				summary.LastSenderName = msg.Sender.Name
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// sortConversations orders by last activity descending with empty conversations last.
// Equal timestamps fall back to kind and id so the order is stable across calls.
func sortConversations(list []models.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.LastMessageAt == nil && b.LastMessageAt == nil:
		case a.LastMessageAt == nil:
			return false
		case b.LastMessageAt == nil:
			return true
		case !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
}
