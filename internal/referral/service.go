package referral

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"pix-settlement-go/internal/clock"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterParams identifies a new account and, optionally, who referred it.
// Referrer may be a user id or a referral code.
type RegisterParams struct {
	Name     string
	Email    string
	Cpf      string
	Referrer string
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type Service struct {
	users store.UserStore
	clock clock.Clock
}

func NewService(users store.UserStore, clk clock.Clock) *Service {
	return &Service{users: users, clock: clk}
}

// Register creates the user together with its ancestor chain, derived from the referrer's own chain.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	name := strings.TrimSpace(params.Name)
	if len(name) < 2 {
		return nil, models.NewSettlementError(models.CodeValidation, "name must be at least 2 characters")
	}
	if !emailRegex.MatchString(strings.TrimSpace(params.Email)) {
		return nil, models.NewSettlementError(models.CodeValidation, fmt.Sprintf("invalid email format: %s", params.Email))
	}

	var ancestors []string
	referredBy := ""
	if params.Referrer != "" {
		parent, err := s.resolveReferrer(ctx, params.Referrer)
		if err != nil {
			return nil, err
		}
		chain, err := s.users.GetAncestors(ctx, parent.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to load referrer chain: %w", err)
		}

		referredBy = parent.Id
		ancestors = chainFor(parent.Id, chain)
	}

	user, err := s.users.CreateUser(ctx, store.CreateUserParams{
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(params.Email)),
		Cpf:          params.Cpf,
		ReferralCode: NewReferralCode(),
		ReferredBy:   referredBy,
		Ancestors:    ancestors,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return nil, models.NewSettlementError(models.CodeValidation, "email already registered")
		}
		return nil, err
	}

	zap.L().Info("User registered",
		zap.String("user_id", user.Id),
		zap.String("referred_by", referredBy),
		zap.Int("levels", len(ancestors)))
	return user, nil
}

// chainFor builds a new user's ancestors: the parent, then the parent's own ancestors, capped at three levels.
func chainFor(parentId string, parentChain []models.Referral) []string {
	ancestors := []string{parentId}
	for _, r := range parentChain {
		if len(ancestors) == models.MaxReferralDepth {
			break
		}
		ancestors = append(ancestors, r.UserId)
	}
	return ancestors
}

func (s *Service) resolveReferrer(ctx context.Context, referrer string) (*models.User, error) {
	if user, err := s.users.GetUserById(ctx, referrer); err == nil {
		return user, nil
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	user, err := s.users.GetUserByReferralCode(ctx, strings.ToUpper(referrer))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, models.NewSettlementError(models.CodeNotFound, fmt.Sprintf("referrer %s not found", referrer))
		}
		return nil, err
	}
	return user, nil
}

// LoadGraph builds the in-memory graph from every stored user.
func (s *Service) LoadGraph(ctx context.Context) (*Graph, error) {
	edges, err := s.users.GetReferralEdges(ctx)
	if err != nil {
		return nil, err
	}
	return BuildGraph(edges)
}

// NewReferralCode returns an 8 character upper-case code.
func NewReferralCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:8])
}
