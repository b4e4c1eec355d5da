package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.Id, &user.Name, &user.Email, &user.Cpf, &user.ReferralCode, &user.ReferredBy,
		&user.TotalInvested, &user.TotalEarned, &user.TotalWithdrawn, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUsers(ctx context.Context) ([]models.User, error) {
	zap.L().Debug("Querying users")

	rows, err := s.db.QueryContext(ctx, queryGetUsers)
	if err != nil {
		zap.L().Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("unable to query users: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			zap.L().Error("Failed to scan user row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan user row: %w", err)
		}
		users = append(users, *user)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during user row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	zap.L().Info("Retrieved users", zap.Int("count", len(users)))
	return users, nil
}

func (s *Service) getUser(ctx context.Context, query, key, value string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", store.ErrUserNotFound, key, value)
		}
		zap.L().Error("Failed to query user", zap.String(key, value), zap.Error(err))
		return nil, fmt.Errorf("unable to query user by %s: %w", key, err)
	}

	zap.L().Debug("Retrieved user", zap.String(key, value), zap.String("name", user.Name))
	return user, nil
}

func (s *Service) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserById, "user_id", userId)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserByEmail, "email", email)
}

func (s *Service) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.getUser(ctx, queryGetUserByReferralCode, "referral_code", code)
}

// CreateUser inserts the account and its materialized ancestor edges in one transaction.
func (s *Service) CreateUser(ctx context.Context, params store.CreateUserParams) (*models.User, error) {
	if len(params.Ancestors) > models.MaxReferralDepth {
		return nil, fmt.Errorf("ancestor chain longer than %d levels", models.MaxReferralDepth)
	}
	if len(params.Ancestors) > 0 && params.Ancestors[0] != params.ReferredBy {
		return nil, fmt.Errorf("level 1 ancestor %s does not match referrer %s", params.Ancestors[0], params.ReferredBy)
	}

	userId := uuid.New().String()
	zap.L().Info("Creating user",
		zap.String("id", userId),
		zap.String("name", params.Name),
		zap.String("email", params.Email),
		zap.String("referred_by", params.ReferredBy))

	err := s.withTx(ctx, func(ltx *ledgerTx) error {
		_, err := ltx.tx.ExecContext(ctx, queryInsertUser, userId, params.Name, params.Email, params.Cpf,
			params.ReferralCode, params.ReferredBy, params.CreatedAt, params.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: user with email %s or referral code %s already exists",
					store.ErrDuplicateTransaction, params.Email, params.ReferralCode)
			}
			return fmt.Errorf("unable to insert user: %w", err)
		}

		for i, ancestor := range params.Ancestors {
			if ancestor == userId {
				return fmt.Errorf("user %s cannot be its own ancestor", userId)
			}
			_, err := ltx.tx.ExecContext(ctx, queryInsertReferral, uuid.New().String(), ancestor, userId, i+1, params.CreatedAt)
			if err != nil {
				return fmt.Errorf("unable to insert referral level %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Error("Failed to create user", zap.String("email", params.Email), zap.Error(err))
		return nil, err
	}

	zap.L().Info("User created successfully", zap.String("id", userId), zap.Int("ancestors", len(params.Ancestors)))
	return s.GetUserById(ctx, userId)
}

// GetAncestors returns the stored referral chain of userId, level 1 first.
func (s *Service) GetAncestors(ctx context.Context, userId string) ([]models.Referral, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAncestors, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query ancestors: %w", err)
	}
	defer closeRows(rows)

	var referrals []models.Referral
	for rows.Next() {
		var r models.Referral
		if err := rows.Scan(&r.Id, &r.UserId, &r.ReferredUserId, &r.Level, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan referral row: %w", err)
		}
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral rows: %w", err)
	}

	return referrals, nil
}

// GetReferralEdges returns user id to direct referrer id for every user.
func (s *Service) GetReferralEdges(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, queryGetReferralEdges)
	if err != nil {
		return nil, fmt.Errorf("unable to query referral edges: %w", err)
	}
	defer closeRows(rows)

	edges := make(map[string]string)
	for rows.Next() {
		var id, referredBy string
		if err := rows.Scan(&id, &referredBy); err != nil {
			return nil, fmt.Errorf("unable to scan referral edge: %w", err)
		}
		edges[id] = referredBy
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral edges: %w", err)
	}

	zap.L().Debug("Retrieved referral edges", zap.Int("count", len(edges)))
	return edges, nil
}
