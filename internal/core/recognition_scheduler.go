package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StraightLineScheduler is the built-in RecognitionScheduler. It prorates
// each line's base amount across the calendar months of its recognition
// window, carrying rounding remainders into the final period so the schedule
// always sums to the line amount. One ACTIVE schedule exists per contract;
// re-triggering an already scheduled contract is a replay, not an error.
type StraightLineScheduler struct {
	pool    *pgxpool.Pool
	amounts AmountPolicy
}

func NewStraightLineScheduler(pool *pgxpool.Pool, amounts AmountPolicy) *StraightLineScheduler {
	return &StraightLineScheduler{pool: pool, amounts: amounts}
}

func (s *StraightLineScheduler) GenerateSchedules(ctx context.Context, req ScheduleRequest) (*RecognitionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM recognition_schedules
		WHERE contract_id = $1 AND tenant_id = $2 AND status = 'ACTIVE'
		FOR UPDATE`,
		req.ContractID, req.TenantID,
	).Scan(&existingID)
	if err == nil {
		return &RecognitionResult{IdempotentReplay: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing schedule: %w", err)
	}

	var scheduleID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO recognition_schedules (tenant_id, contract_id, status)
		VALUES ($1, $2, 'ACTIVE')
		RETURNING id`,
		req.TenantID, req.ContractID,
	).Scan(&scheduleID)
	if err != nil {
		return nil, fmt.Errorf("insert recognition schedule: %w", err)
	}

	result := &RecognitionResult{SchedulesGenerated: 1}
	for _, lineID := range req.LineIDs {
		line, err := fetchLine(ctx, tx, req.ContractID, lineID)
		if err != nil {
			return nil, err
		}
		periods := s.periodsFor(line)
		if len(periods) == 0 {
			result.LinesSkipped++
			continue
		}
		if err := s.insertScheduleLines(ctx, tx, scheduleID, line, periods); err != nil {
			return nil, err
		}
		result.LinesGenerated += len(periods)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit recognition schedules: %w", err)
	}
	return result, nil
}

// periodsFor returns the fiscal periods of the line's recognition window.
// STRAIGHT_LINE spreads over every month from start to end; MILESTONE and
// MANUAL recognize in the single starting period. Lines without a start date
// cannot be scheduled.
func (s *StraightLineScheduler) periodsFor(line *ContractLine) []string {
	if line.RecognitionStart == nil {
		return nil
	}
	start, err := time.Parse("2006-01-02", *line.RecognitionStart)
	if err != nil {
		return nil
	}
	if line.RecognitionMethod != RecognitionStraightLine || line.RecognitionEnd == nil {
		return []string{start.Format("2006-01")}
	}
	end, err := time.Parse("2006-01-02", *line.RecognitionEnd)
	if err != nil || end.Before(start) {
		return nil
	}

	var periods []string
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		periods = append(periods, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return periods
}

func (s *StraightLineScheduler) insertScheduleLines(ctx context.Context, tx pgx.Tx, scheduleID int64, line *ContractLine, periods []string) error {
	n := int64(len(periods))
	perTxn := s.amounts.Normalize(line.AmountTxn.Div(decimal.NewFromInt(n)))
	perBase := s.amounts.Normalize(line.AmountBase.Div(decimal.NewFromInt(n)))

	for i, period := range periods {
		txn, base := perTxn, perBase
		if i == len(periods)-1 {
			txn = line.AmountTxn.Sub(perTxn.Mul(decimal.NewFromInt(n - 1)))
			base = line.AmountBase.Sub(perBase.Mul(decimal.NewFromInt(n - 1)))
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO recognition_schedule_lines (schedule_id, contract_line_id, fiscal_period, amount_txn, amount_base)
			VALUES ($1, $2, $3, $4, $5)`,
			scheduleID, line.ID, period, txn, base,
		); err != nil {
			return fmt.Errorf("insert schedule line for contract line %d: %w", line.ID, err)
		}
	}
	return nil
}

func fetchLine(ctx context.Context, tx pgx.Tx, contractID, lineID int64) (*ContractLine, error) {
	l := &ContractLine{}
	err := tx.QueryRow(ctx, `
		SELECT id, contract_id, line_number, description, amount_txn, amount_base,
		       recognition_method, recognition_start::text, recognition_end::text,
		       deferred_account_id, revenue_account_id, status
		FROM contract_lines
		WHERE id = $1 AND contract_id = $2`,
		lineID, contractID,
	).Scan(
		&l.ID, &l.ContractID, &l.LineNumber, &l.Description, &l.AmountTxn, &l.AmountBase,
		&l.RecognitionMethod, &l.RecognitionStart, &l.RecognitionEnd,
		&l.DeferredAccountID, &l.RevenueAccountID, &l.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract line %d: %w", lineID, ErrNotFound)
		}
		return nil, fmt.Errorf("read contract line %d: %w", lineID, err)
	}
	return l, nil
}
