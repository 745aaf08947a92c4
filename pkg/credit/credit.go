// Package credit implements DocRouter's SPU (Service Processing Unit)
// credit ledger: a three-bucket balance per organization (subscription,
// purchased, granted) debited in that fixed order, and usage reporting
// bucketed by IANA timezone.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// Bucket identifies one of the three SPU balances an organization holds.
// Debits are always applied in this order: Subscription first, then
// Purchased, then Granted.
type Bucket string

const (
	BucketSubscription Bucket = "subscription"
	BucketPurchased    Bucket = "purchased"
	BucketGranted      Bucket = "granted"
)

// debitOrder is the fixed sequence balances are drawn down in.
var debitOrder = []Bucket{BucketSubscription, BucketPurchased, BucketGranted}

// Operation identifies what an SPU debit paid for.
type Operation string

const (
	OperationOCR             Operation = "ocr"
	OperationLLM             Operation = "llm"
	OperationClaudeLog       Operation = "claude_log"
	OperationClaudeHook      Operation = "claude_hook"
	OperationTelemetryTrace  Operation = "telemetry_trace"
	OperationTelemetryMetric Operation = "telemetry_metric"
	OperationTelemetryLog    Operation = "telemetry_log"
)

// Balance is an organization's current SPU balance across all three buckets.
type Balance struct {
	OrganizationID string
	Subscription   float64
	Purchased      float64
	Granted        float64
}

// Total returns the sum of all three buckets.
func (b Balance) Total() float64 {
	return b.Subscription + b.Purchased + b.Granted
}

// DebitResult describes how a debit was satisfied across buckets.
type DebitResult struct {
	PerBucket map[Bucket]float64
	Balance   Balance
}

const balanceColumns = `organization_id, subscription_spu, purchased_spu, granted_spu`

func scanBalance(row interface{ Scan(...any) error }) (Balance, error) {
	var b Balance
	err := row.Scan(&b.OrganizationID, &b.Subscription, &b.Purchased, &b.Granted)
	return b, err
}

// Store persists SPU balances and the debit ledger.
type Store struct {
	dbtx storage.DBTX
}

// NewStore creates a Store backed by the given database connection.
func NewStore(dbtx storage.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// GetBalance returns an organization's current SPU balance, creating a
// zeroed row if none exists yet.
func (s *Store) GetBalance(ctx context.Context, organizationID string) (Balance, error) {
	row := s.dbtx.QueryRow(ctx, `SELECT `+balanceColumns+` FROM credit_balances WHERE organization_id = $1`, organizationID)
	b, err := scanBalance(row)
	if err == nil {
		return b, nil
	}

	// No row yet: insert a zeroed balance and return it.
	row = s.dbtx.QueryRow(ctx, `
		INSERT INTO credit_balances (organization_id, subscription_spu, purchased_spu, granted_spu)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (organization_id) DO UPDATE SET organization_id = EXCLUDED.organization_id
		RETURNING `+balanceColumns, organizationID)
	return scanBalance(row)
}

// Grant adds amount SPU to the given bucket (used for top-ups, subscription
// renewal, and manual grants).
func (s *Store) Grant(ctx context.Context, organizationID string, bucket Bucket, amount float64) (Balance, error) {
	if amount < 0 {
		return Balance{}, apperr.New(apperr.Validation, "grant amount must be non-negative")
	}
	col, err := bucketColumn(bucket)
	if err != nil {
		return Balance{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO credit_balances (organization_id, subscription_spu, purchased_spu, granted_spu)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (organization_id) DO UPDATE SET %s = credit_balances.%s + $2
		RETURNING `+balanceColumns, col, col)
	row := s.dbtx.QueryRow(ctx, query, organizationID, amount)
	return scanBalance(row)
}

// Debit withdraws amount SPU from organizationID's balance, drawing down
// subscription → purchased → granted in that order, and records a ledger
// entry. Returns apperr.CreditExhausted if the total balance is
// insufficient; no partial debit is ever applied.
func (s *Store) Debit(ctx context.Context, organizationID string, operation Operation, referenceID string, amount float64) (DebitResult, error) {
	if amount < 0 {
		return DebitResult{}, apperr.New(apperr.Validation, "debit amount must be non-negative")
	}

	bal, err := s.GetBalance(ctx, organizationID)
	if err != nil {
		return DebitResult{}, fmt.Errorf("reading balance: %w", err)
	}
	if bal.Total() < amount {
		return DebitResult{}, apperr.New(apperr.CreditExhausted,
			fmt.Sprintf("insufficient SPU balance: have %.4f, need %.4f", bal.Total(), amount))
	}

	perBucket := allocateDebit(bal, amount)

	for bucket, take := range perBucket {
		col, err := bucketColumn(bucket)
		if err != nil {
			return DebitResult{}, err
		}
		tag, err := s.dbtx.Exec(ctx, fmt.Sprintf(
			`UPDATE credit_balances SET %s = %s - $2 WHERE organization_id = $1 AND %s >= $2`,
			col, col, col,
		), organizationID, take)
		if err != nil {
			return DebitResult{}, fmt.Errorf("debiting %s bucket: %w", bucket, err)
		}
		if tag.RowsAffected() == 0 {
			return DebitResult{}, apperr.New(apperr.Conflict, "balance changed concurrently, retry debit")
		}
	}

	if _, err := s.dbtx.Exec(ctx, `
		INSERT INTO credit_ledger (organization_id, operation, reference_id, amount_spu, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, organizationID, string(operation), referenceID, amount); err != nil {
		return DebitResult{}, fmt.Errorf("recording ledger entry: %w", err)
	}

	newBalance, err := s.GetBalance(ctx, organizationID)
	if err != nil {
		return DebitResult{}, fmt.Errorf("reading updated balance: %w", err)
	}

	return DebitResult{PerBucket: perBucket, Balance: newBalance}, nil
}

// allocateDebit determines how much to draw from each bucket to satisfy
// amount, always exhausting subscription before purchased before granted.
// Callers must already have verified bal.Total() >= amount.
func allocateDebit(bal Balance, amount float64) map[Bucket]float64 {
	remaining := amount
	perBucket := make(map[Bucket]float64)
	available := map[Bucket]float64{
		BucketSubscription: bal.Subscription,
		BucketPurchased:    bal.Purchased,
		BucketGranted:      bal.Granted,
	}

	for _, bucket := range debitOrder {
		if remaining <= 0 {
			break
		}
		take := min(available[bucket], remaining)
		if take <= 0 {
			continue
		}
		perBucket[bucket] = take
		remaining -= take
	}

	return perBucket
}

func bucketColumn(b Bucket) (string, error) {
	switch b {
	case BucketSubscription:
		return "subscription_spu", nil
	case BucketPurchased:
		return "purchased_spu", nil
	case BucketGranted:
		return "granted_spu", nil
	default:
		return "", apperr.New(apperr.Validation, fmt.Sprintf("unknown credit bucket %q", b))
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DataPoint is one calendar day's (optionally per-operation) SPU total, as
// returned by UsageRange.
type DataPoint struct {
	Date      string    `json:"date"` // YYYY-MM-DD, in the caller's requested timezone
	SPUs      float64   `json:"spus"`
	Operation Operation `json:"operation,omitempty"`
}

// UsageReport is the aggregated result of UsageRange.
type UsageReport struct {
	DataPoints []DataPoint `json:"data_points"`
	TotalSPUs  float64     `json:"total_spus"`
}

// dayKey groups a DataPoint by calendar day and, when perOperation is set,
// also by operation.
type dayKey struct {
	date      string
	operation Operation
}

// usageRow is one credit_ledger row as read by UsageRange, before
// timezone bucketing.
type usageRow struct {
	operation Operation
	amountSPU float64
	createdAt time.Time
}

// bucketUsage aggregates rows into calendar-day buckets in loc,
// optionally split further by operation. Extracted as a pure function,
// the same way allocateDebit is, so the day-bucketing arithmetic spec
// §8.5 describes is unit-testable without a database.
func bucketUsage(rows []usageRow, loc *time.Location, perOperation bool) UsageReport {
	totals := make(map[dayKey]float64)
	var order []dayKey
	var total float64

	for _, r := range rows {
		key := dayKey{date: r.createdAt.In(loc).Format("2006-01-02")}
		if perOperation {
			key.operation = r.operation
		}
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += r.amountSPU
		total += r.amountSPU
	}

	dataPoints := make([]DataPoint, 0, len(order))
	for _, key := range order {
		dataPoints = append(dataPoints, DataPoint{Date: key.date, SPUs: totals[key], Operation: key.operation})
	}

	return UsageReport{DataPoints: dataPoints, TotalSPUs: total}
}

// UsageRange aggregates credit_ledger entries for organizationID between
// from and to (inclusive) into calendar-day buckets in the given IANA
// timezone, optionally grouped by operation.
func (s *Store) UsageRange(ctx context.Context, organizationID string, from, to time.Time, tz string, perOperation bool) (UsageReport, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return UsageReport{}, apperr.Wrap(apperr.Validation, fmt.Sprintf("unknown timezone %q", tz), err)
	}

	rows, err := s.dbtx.Query(ctx, `
		SELECT operation, amount_spu, created_at
		FROM credit_ledger
		WHERE organization_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
	`, organizationID, from, to)
	if err != nil {
		return UsageReport{}, fmt.Errorf("querying usage range: %w", err)
	}
	defer rows.Close()

	var usageRows []usageRow
	for rows.Next() {
		var op string
		var amount float64
		var createdAt time.Time
		if err := rows.Scan(&op, &amount, &createdAt); err != nil {
			return UsageReport{}, fmt.Errorf("scanning usage row: %w", err)
		}
		usageRows = append(usageRows, usageRow{operation: Operation(op), amountSPU: amount, createdAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return UsageReport{}, fmt.Errorf("iterating usage rows: %w", err)
	}

	return bucketUsage(usageRows, loc, perOperation), nil
}
