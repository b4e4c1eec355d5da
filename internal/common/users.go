/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"go.uber.org/zap"
)

// UserInfo is the slice of a user the report commands print.
type UserInfo struct {
	Id           string
	Name         string
	Email        string
	ReferralCode string
	ReferredBy   string
}

func toUserInfo(u *models.User) UserInfo {
	return UserInfo{Id: u.Id, Name: u.Name, Email: u.Email, ReferralCode: u.ReferralCode, ReferredBy: u.ReferredBy}
}

// SelectUsers returns every user when selector is empty. Otherwise selector
// may be an email, a referral code or a user id, tried in that order.
func SelectUsers(ctx context.Context, users store.UserStore, selector string) ([]UserInfo, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		all, err := users.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		infos := make([]UserInfo, 0, len(all))
		for i := range all {
			infos = append(infos, toUserInfo(&all[i]))
		}
		zap.L().Debug("Selected all users", zap.Int("count", len(infos)))
		return infos, nil
	}

	user, err := findUser(ctx, users, selector)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("Selected user", zap.String("selector", selector), zap.String("user_id", user.Id))
	return []UserInfo{toUserInfo(user)}, nil
}

func findUser(ctx context.Context, users store.UserStore, selector string) (*models.User, error) {
	lookups := []func() (*models.User, error){
		func() (*models.User, error) { return users.GetUserByReferralCode(ctx, strings.ToUpper(selector)) },
		func() (*models.User, error) { return users.GetUserById(ctx, selector) },
	}
	if strings.Contains(selector, "@") {
		lookups = []func() (*models.User, error){
			func() (*models.User, error) { return users.GetUserByEmail(ctx, strings.ToLower(selector)) },
		}
	}

	for _, lookup := range lookups {
		user, err := lookup()
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUserNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no user matches %q: %w", selector, store.ErrUserNotFound)
}
