package formance

import (
	"context"
	"fmt"
	"strings"

	"pix-settlement-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

const numscriptLedgerEntry = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $entry_type
  string $reference_type
  string $reference_id
  string $balance_after
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("entry_type", $entry_type)
set_tx_meta("reference_type", $reference_type)
set_tx_meta("reference_id", $reference_id)
set_tx_meta("balance_after", $balance_after)
`

// userAccount is where one balance of a user lives, e.g. users:<id>:withdrawable.
func userAccount(userId string, balanceType models.BalanceType) string {
	return fmt.Sprintf("users:%s:%s", userId, balanceType)
}

// platformAccount is the counterparty of every entry of one type, e.g. platform:commission_residual.
func platformAccount(entryType models.LedgerType) string {
	return "platform:" + strings.ToLower(string(entryType))
}

// route orders the two accounts by direction: credits flow from the platform to the user.
func route(entry *models.LedgerEntry) (source, destination string) {
	user := userAccount(entry.UserId, entry.BalanceType)
	platform := platformAccount(entry.Type)
	if entry.Operation == models.OperationCredit {
		return platform, user
	}
	return user, platform
}

func postingVars(entry *models.LedgerEntry) map[string]string {
	source, destination := route(entry)
	return map[string]string{
		"asset":          fmt.Sprintf("%s/%d", assetSymbol, assetPrecision),
		"amount":         entry.Amount.Shift(assetPrecision).BigInt().String(),
		"source":         source,
		"destination":    destination,
		"entry_type":     string(entry.Type),
		"reference_type": string(entry.ReferenceType),
		"reference_id":   entry.ReferenceId,
		"balance_after":  entry.BalanceAfter.StringFixed(assetPrecision),
	}
}

// Post records one ledger entry. A CONFLICT means it was already mirrored.
func (m *Mirror) Post(ctx context.Context, entry *models.LedgerEntry) error {
	if !entry.Amount.IsPositive() {
		return nil
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(entry.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptLedgerEntry,
			Vars:  postingVars(entry),
		},
	}
	if !entry.CreatedAt.IsZero() {
		ts := entry.CreatedAt
		postTx.Timestamp = &ts
	}

	_, err := m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            m.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil
		}
		return fmt.Errorf("error mirroring ledger entry %s: %w", entry.Id, err)
	}

	zap.L().Debug("Ledger entry mirrored in Formance",
		zap.String("entry_id", entry.Id),
		zap.String("type", string(entry.Type)),
		zap.String("amount", entry.Amount.String()))
	return nil
}
