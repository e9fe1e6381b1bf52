package app

import (
	"contract-ledger/internal/core"
)

// ContractResult wraps a contract with its lines.
type ContractResult struct {
	Contract *core.Contract `json:"contract"`
}

// ContractLineResult is returned by line patches: the updated line plus the
// recomputed contract.
type ContractLineResult struct {
	Contract *core.Contract     `json:"contract"`
	Line     *core.ContractLine `json:"line"`
}

// LinkResult wraps a link with its materialized amounts and event history.
type LinkResult struct {
	Link *core.Link `json:"link"`
}

type LinkListResult struct {
	ContractID int64       `json:"contract_id"`
	Links      []core.Link `json:"links"`
}

// BillingResult carries the generated or replayed billing artifacts.
type BillingResult struct {
	Document         *core.CariDocument `json:"document"`
	Link             *core.Link         `json:"link"`
	Batch            *core.BillingBatch `json:"billing_batch"`
	IdempotentReplay bool               `json:"idempotent_replay"`
}

type RollupResult struct {
	Rollup *core.RollupSnapshot `json:"rollup"`
}

type RecognitionResult struct {
	SchedulesGenerated int  `json:"schedules_generated"`
	LinesGenerated     int  `json:"lines_generated"`
	LinesSkipped       int  `json:"lines_skipped"`
	IdempotentReplay   bool `json:"idempotent_replay"`
}
