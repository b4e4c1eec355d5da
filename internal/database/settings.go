package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PutSetting appends a new version of key. Earlier versions stay readable for past timestamps.
func (s *Service) PutSetting(ctx context.Context, key string, value any, effectiveFrom time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to encode setting %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, queryInsertSetting, uuid.New().String(), key, string(raw), effectiveFrom, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unable to store setting %s: %w", key, err)
	}

	zap.L().Info("Setting stored", zap.String("key", key), zap.Time("effective_from", effectiveFrom))
	return nil
}

// GetSetting decodes into out the version of key in effect at time at.
// The latest effective_from not after at wins; ties go to the most recently written row.
func (s *Service) GetSetting(ctx context.Context, key string, at time.Time, out any) (bool, error) {
	rows, err := s.db.QueryContext(ctx, queryGetSettingVersions, key)
	if err != nil {
		return false, fmt.Errorf("unable to query setting %s: %w", key, err)
	}
	defer closeRows(rows)

	var chosen string
	var chosenFrom, chosenCreated time.Time
	found := false
	for rows.Next() {
		var value string
		var from, created time.Time
		if err := rows.Scan(&value, &from, &created); err != nil {
			return false, fmt.Errorf("unable to scan setting row: %w", err)
		}
		if from.After(at) {
			continue
		}
		if !found || from.After(chosenFrom) || (from.Equal(chosenFrom) && !created.Before(chosenCreated)) {
			chosen, chosenFrom, chosenCreated, found = value, from, created, true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("error iterating setting rows: %w", err)
	}
	if !found {
		return false, nil
	}

	if err := json.Unmarshal([]byte(chosen), out); err != nil {
		return false, fmt.Errorf("unable to decode setting %s: %w", key, err)
	}
	return true, nil
}
