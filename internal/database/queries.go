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

package database

const userColumns = `id, name, email, cpf, referral_code, referred_by,
		       total_invested, total_earned, total_withdrawn, created_at, updated_at`

const cycleColumns = `id, user_id, plan_id, amount, type, duration_days, daily_income, total_return,
		       started_at, ends_at, status, days_paid, total_paid, is_first_purchase, last_paid_at, finished_at`

const depositColumns = `id, user_id, amount, status, transaction_id, order_id, identifier,
		       qr_code, qr_code_base64, qr_code_image, order_url, error_message, expires_at, paid_at, created_at`

const withdrawalColumns = `id, user_id, amount, fee_amount, net_amount, pix_key, pix_key_type, cpf, status,
		       transaction_id, error_message, provider_response, requested_date, requested_at,
		       approved_at, paid_at, rejected_at`

const webhookColumns = `id, hash, payload, external_id, event_name, status, deposit_id, withdrawal_id,
		       error_message, received_at, processed_at`

const commissionColumns = `id, user_id, from_user_id, cycle_id, source_type, source_id, level, amount,
		       purchase_amount, percentage, type, description, created_at`

const ledgerColumns = `id, user_id, balance_type, type, operation, amount, balance_before, balance_after,
		       reference_type, reference_id, description, created_at`

const (
	// User queries
	queryGetUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, cpf, referral_code, referred_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?`

	queryGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ?`

	queryGetUserByReferralCode = `
		SELECT ` + userColumns + `
		FROM users
		WHERE referral_code = ?`

	queryAddUserTotals = `
		UPDATE users
		SET total_invested = ?, total_earned = ?, total_withdrawn = ?, updated_at = ?
		WHERE id = ?`

	queryGetUserTotals = `
		SELECT total_invested, total_earned, total_withdrawn
		FROM users
		WHERE id = ?`

	// Referral queries
	queryInsertReferral = `
		INSERT INTO referrals (id, user_id, referred_user_id, level, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetAncestors = `
		SELECT id, user_id, referred_user_id, level, created_at
		FROM referrals
		WHERE referred_user_id = ?
		ORDER BY level`

	queryGetReferralEdges = `
		SELECT id, referred_by
		FROM users
		ORDER BY created_at`

	// Balance queries
	queryGetBalance = `
		SELECT balance
		FROM account_balances
		WHERE user_id = ? AND balance_type = ?`

	queryGetAllUserBalances = `
		SELECT id, user_id, balance_type, balance, last_entry_id, version, updated_at
		FROM account_balances
		WHERE user_id = ?
		ORDER BY balance_type`

	queryGetAccountBalance = `
		SELECT id, balance, version
		FROM account_balances
		WHERE user_id = ? AND balance_type = ?`

	queryInsertAccountBalance = `
		INSERT INTO account_balances (id, user_id, balance_type, balance, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryUpdateAccountBalance = `
		UPDATE account_balances
		SET balance = ?, last_entry_id = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND balance_type = ? AND version = ?`

	// Ledger queries
	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, ledger_entry_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetLedgerHistory = `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	queryGetLedgerForBalance = `
		SELECT operation, amount
		FROM ledger_entries
		WHERE user_id = ? AND balance_type = ?`

	queryGetLedgerTypeSums = `
		SELECT balance_type, type, operation, amount
		FROM ledger_entries
		WHERE user_id = ?`

	queryCountLedgerByReference = `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE reference_type = ? AND reference_id = ?`

	// Plan queries
	queryUpsertPlan = `
		INSERT INTO plans (id, name, price, type, duration_days, daily_income, total_return, max_purchases, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			type = excluded.type,
			duration_days = excluded.duration_days,
			daily_income = excluded.daily_income,
			total_return = excluded.total_return,
			max_purchases = excluded.max_purchases,
			active = excluded.active`

	queryGetPlan = `
		SELECT id, name, price, type, duration_days, daily_income, total_return, max_purchases, active, created_at
		FROM plans
		WHERE id = ?`

	queryListPlans = `
		SELECT id, name, price, type, duration_days, daily_income, total_return, max_purchases, active, created_at
		FROM plans
		ORDER BY CAST(price AS REAL), id`

	// Cycle queries
	queryInsertCycle = `
		INSERT INTO cycles (` + cycleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetCycle = `
		SELECT ` + cycleColumns + `
		FROM cycles
		WHERE id = ?`

	queryListActiveCycles = `
		SELECT ` + cycleColumns + `
		FROM cycles
		WHERE status = 'ACTIVE'
		ORDER BY started_at`

	queryListUserCycles = `
		SELECT ` + cycleColumns + `
		FROM cycles
		WHERE user_id = ?
		ORDER BY started_at`

	queryCountUserCycles = `
		SELECT COUNT(*)
		FROM cycles
		WHERE user_id = ?`

	queryCountActivePlanCycles = `
		SELECT COUNT(*)
		FROM cycles
		WHERE user_id = ? AND plan_id = ? AND status = 'ACTIVE'`

	queryRecordCyclePayment = `
		UPDATE cycles
		SET days_paid = days_paid + 1, total_paid = ?, last_paid_at = ?
		WHERE id = ? AND status = 'ACTIVE' AND days_paid = ?`

	queryFinishCycle = `
		UPDATE cycles
		SET status = 'FINISHED', total_paid = ?, finished_at = ?
		WHERE id = ? AND status = 'ACTIVE'`

	// Earning queries
	queryInsertEarning = `
		INSERT INTO earnings (id, cycle_id, user_id, amount, reference_date, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryHasEarningForDate = `
		SELECT COUNT(*)
		FROM earnings
		WHERE cycle_id = ? AND reference_date = ?`

	queryGetEarning = `
		SELECT id, cycle_id, user_id, amount, reference_date, type, created_at
		FROM earnings
		WHERE id = ?`

	queryListCycleEarnings = `
		SELECT id, cycle_id, user_id, amount, reference_date, type, created_at
		FROM earnings
		WHERE cycle_id = ?
		ORDER BY reference_date`

	// Commission queries
	queryInsertCommission = `
		INSERT INTO commissions (` + commissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryListCommissionsBySource = `
		SELECT ` + commissionColumns + `
		FROM commissions
		WHERE source_type = ? AND source_id = ?
		ORDER BY level`

	queryListUserCommissions = `
		SELECT ` + commissionColumns + `
		FROM commissions
		WHERE user_id = ?
		ORDER BY created_at DESC`

	queryCyclesMissingCommissions = `
		SELECT ` + cycleColumns + `
		FROM cycles c
		WHERE EXISTS (SELECT 1 FROM referrals r WHERE r.referred_user_id = c.user_id)
		  AND NOT EXISTS (SELECT 1 FROM commissions m WHERE m.source_type = 'CYCLE' AND m.source_id = c.id)
		ORDER BY c.started_at`

	queryEarningsMissingResidual = `
		SELECT e.id, e.cycle_id, e.user_id, e.amount, e.reference_date, e.type, e.created_at
		FROM earnings e
		WHERE EXISTS (SELECT 1 FROM referrals r WHERE r.referred_user_id = e.user_id)
		  AND NOT EXISTS (SELECT 1 FROM commissions m WHERE m.source_type = 'EARNING' AND m.source_id = e.id)
		ORDER BY e.created_at`

	// Deposit queries
	queryInsertDeposit = `
		INSERT INTO deposits (` + depositColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDeposit = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE id = ?`

	queryGetDepositByTransactionId = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE transaction_id = ? AND transaction_id != ''`

	queryGetDepositByOrderId = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE order_id = ? AND order_id != ''`

	queryGetDepositByIdentifier = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE identifier = ? AND identifier != ''`

	queryUpdateDepositGateway = `
		UPDATE deposits
		SET transaction_id = ?, order_id = ?, qr_code = ?, qr_code_base64 = ?, qr_code_image = ?,
		    order_url = ?, raw_response = ?
		WHERE id = ?`

	querySetDepositStatus = `
		UPDATE deposits
		SET status = ?, error_message = ?
		WHERE id = ? AND status != 'PAID'`

	queryMarkDepositPaid = `
		UPDATE deposits
		SET status = 'PAID', paid_at = ?
		WHERE id = ? AND status != 'PAID'`

	queryListPendingDeposits = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = 'PENDING'
		ORDER BY expires_at`

	// Webhook queries
	queryInsertWebhookEvent = `
		INSERT INTO webhook_events (` + webhookColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`

	queryGetWebhookEventByHash = `
		SELECT ` + webhookColumns + `
		FROM webhook_events
		WHERE hash = ?`

	queryGetWebhookEvent = `
		SELECT ` + webhookColumns + `
		FROM webhook_events
		WHERE id = ?`

	queryListWebhookEventsByStatus = `
		SELECT ` + webhookColumns + `
		FROM webhook_events
		WHERE status = ?
		ORDER BY received_at`

	queryUpdateWebhookEvent = `
		UPDATE webhook_events
		SET status = ?, deposit_id = ?, withdrawal_id = ?, error_message = ?, processed_at = ?
		WHERE id = ?`

	// Withdrawal queries
	queryInsertWithdrawal = `
		INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetWithdrawal = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE id = ?`

	queryGetWithdrawalByTransactionId = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE transaction_id = ? AND transaction_id != ''`

	queryListUserWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = ?
		ORDER BY requested_at DESC`

	queryCountWithdrawalsForDate = `
		SELECT COUNT(*)
		FROM withdrawals
		WHERE user_id = ? AND requested_date = ? AND status NOT IN ('REJECTED', 'CANCELLED')`

	queryUpdateWithdrawalHandoff = `
		UPDATE withdrawals
		SET status = ?, transaction_id = ?, error_message = ?, provider_response = ?
		WHERE id = ?`

	queryUpdateWithdrawalStatus = `
		UPDATE withdrawals
		SET status = ?, transaction_id = ?, error_message = ?, approved_at = ?, paid_at = ?, rejected_at = ?
		WHERE id = ? AND status = ?`

	queryWithdrawalStats = `
		SELECT status, amount
		FROM withdrawals`

	// Daily reward queries
	queryInsertDailyReward = `
		INSERT INTO daily_rewards (id, user_id, amount, claim_date, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryListRewardDates = `
		SELECT claim_date
		FROM daily_rewards
		WHERE user_id = ?
		ORDER BY claim_date DESC
		LIMIT ?`

	// Settings queries
	queryInsertSetting = `
		INSERT INTO settings (id, key, value, effective_from, created_at)
		VALUES (?, ?, ?, ?, ?)`

	queryGetSettingVersions = `
		SELECT value, effective_from, created_at
		FROM settings
		WHERE key = ?`
)
