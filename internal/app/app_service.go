package app

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"contract-ledger/internal/core"
)

type appService struct {
	pool      *pgxpool.Pool
	contracts *core.ContractService
	links     *core.LinkService
	billing   *core.BillingService
	rollups   *core.RollupService
	revrec    *core.RevRecService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	contracts *core.ContractService,
	links *core.LinkService,
	billing *core.BillingService,
	rollups *core.RollupService,
	revrec *core.RevRecService,
) ApplicationService {
	return &appService{
		pool:      pool,
		contracts: contracts,
		links:     links,
		billing:   billing,
		rollups:   rollups,
		revrec:    revrec,
	}
}

func (s *appService) CreateContract(ctx context.Context, scope core.Scope, req ContractRequest) (*ContractResult, error) {
	contract, err := s.contracts.Create(ctx, scope, toContractInput(req))
	if err != nil {
		return nil, err
	}
	return &ContractResult{Contract: contract}, nil
}

func (s *appService) UpdateContract(ctx context.Context, scope core.Scope, contractID int64, req ContractRequest) (*ContractResult, error) {
	contract, err := s.contracts.Update(ctx, scope, contractID, toContractInput(req))
	if err != nil {
		return nil, err
	}
	return &ContractResult{Contract: contract}, nil
}

func (s *appService) AmendContract(ctx context.Context, scope core.Scope, contractID int64, req AmendContractRequest) (*ContractResult, error) {
	contract, err := s.contracts.Amend(ctx, scope, contractID, toContractInput(req.ContractRequest), req.Reason)
	if err != nil {
		return nil, err
	}
	return &ContractResult{Contract: contract}, nil
}

func (s *appService) PatchContractLine(ctx context.Context, scope core.Scope, contractID, lineID int64, req PatchLineRequest) (*ContractLineResult, error) {
	contract, line, err := s.contracts.PatchLine(ctx, scope, contractID, lineID, req.Patch)
	if err != nil {
		return nil, err
	}
	return &ContractLineResult{Contract: contract, Line: line}, nil
}

func (s *appService) TransitionContract(ctx context.Context, scope core.Scope, contractID int64, action string) (*ContractResult, error) {
	parsed, err := parseLifecycleAction(action)
	if err != nil {
		return nil, err
	}
	contract, err := s.contracts.Transition(ctx, scope, contractID, parsed)
	if err != nil {
		return nil, err
	}
	return &ContractResult{Contract: contract}, nil
}

func (s *appService) GetContract(ctx context.Context, scope core.Scope, contractID int64) (*ContractResult, error) {
	contract, err := s.contracts.Get(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	return &ContractResult{Contract: contract}, nil
}

func (s *appService) LinkDocument(ctx context.Context, scope core.Scope, req LinkDocumentRequest) (*LinkResult, error) {
	link, err := s.links.Create(ctx, scope, core.CreateLinkInput{
		ContractID: req.ContractID,
		DocumentID: req.DocumentID,
		LinkType:   core.LinkType(strings.ToUpper(req.LinkType)),
		AmountTxn:  req.AmountTxn,
		AmountBase: req.AmountBase,
		FxRate:     req.FxRate,
	})
	if err != nil {
		return nil, err
	}
	return &LinkResult{Link: link}, nil
}

func (s *appService) AdjustLink(ctx context.Context, scope core.Scope, linkID int64, req AdjustLinkRequest) (*LinkResult, error) {
	link, err := s.links.Adjust(ctx, scope, linkID, req.AmountTxn, req.AmountBase, req.Reason)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Link: link}, nil
}

func (s *appService) UnlinkDocument(ctx context.Context, scope core.Scope, linkID int64, reason string) (*LinkResult, error) {
	link, err := s.links.Unlink(ctx, scope, linkID, reason)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Link: link}, nil
}

func (s *appService) GetLink(ctx context.Context, scope core.Scope, linkID int64) (*LinkResult, error) {
	link, err := s.links.Get(ctx, scope, linkID)
	if err != nil {
		return nil, err
	}
	return &LinkResult{Link: link}, nil
}

func (s *appService) ListContractLinks(ctx context.Context, scope core.Scope, contractID int64) (*LinkListResult, error) {
	links, err := s.links.ListByContract(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	return &LinkListResult{ContractID: contractID, Links: links}, nil
}

func (s *appService) GenerateBilling(ctx context.Context, scope core.Scope, req GenerateBillingRequest) (*BillingResult, error) {
	result, err := s.billing.Generate(ctx, scope, core.GenerateBillingInput{
		ContractID:          req.ContractID,
		DocType:             core.DocumentType(strings.ToUpper(req.DocType)),
		AmountStrategy:      core.AmountStrategy(strings.ToUpper(req.AmountStrategy)),
		BillingDate:         req.BillingDate,
		DueDate:             req.DueDate,
		AmountTxn:           req.AmountTxn,
		SelectedLineIDs:     req.SelectedLineIDs,
		IdempotencyKey:      req.IdempotencyKey,
		IntegrationEventUID: req.IntegrationEventUID,
	})
	if err != nil {
		return nil, err
	}
	return &BillingResult{
		Document:         result.Document,
		Link:             result.Link,
		Batch:            result.Batch,
		IdempotentReplay: result.IdempotentReplay,
	}, nil
}

func (s *appService) GetContractRollup(ctx context.Context, scope core.Scope, contractID int64) (*RollupResult, error) {
	rollup, err := s.rollups.Snapshot(ctx, scope, contractID)
	if err != nil {
		return nil, err
	}
	return &RollupResult{Rollup: rollup}, nil
}

func (s *appService) TriggerRecognition(ctx context.Context, scope core.Scope, req TriggerRecognitionRequest) (*RecognitionResult, error) {
	result, err := s.revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:       req.ContractID,
		FiscalPeriod:     req.FiscalPeriod,
		Mode:             core.GenerationMode(strings.ToUpper(req.Mode)),
		SourceDocumentID: req.SourceDocumentID,
		LineIDs:          req.LineIDs,
	})
	if err != nil {
		return nil, err
	}
	return &RecognitionResult{
		SchedulesGenerated: result.SchedulesGenerated,
		LinesGenerated:     result.LinesGenerated,
		LinesSkipped:       result.LinesSkipped,
		IdempotentReplay:   result.IdempotentReplay,
	}, nil
}

func toContractInput(req ContractRequest) core.ContractInput {
	lines := make([]core.ContractLineInput, len(req.Lines))
	for i, l := range req.Lines {
		status := core.LineStatus(strings.ToUpper(l.Status))
		if l.Status == "" {
			status = core.LineActive
		}
		lines[i] = core.ContractLineInput{
			Description:       l.Description,
			AmountTxn:         l.AmountTxn,
			AmountBase:        l.AmountBase,
			RecognitionMethod: core.RecognitionMethod(strings.ToUpper(l.RecognitionMethod)),
			RecognitionStart:  l.RecognitionStart,
			RecognitionEnd:    l.RecognitionEnd,
			DeferredAccountID: l.DeferredAccountID,
			RevenueAccountID:  l.RevenueAccountID,
			Status:            status,
		}
	}
	return core.ContractInput{
		CounterpartyID: req.CounterpartyID,
		ContractNumber: req.ContractNumber,
		Type:           core.ContractType(strings.ToUpper(req.ContractType)),
		Currency:       strings.ToUpper(req.Currency),
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Notes:          req.Notes,
		Lines:          lines,
	}
}

// parseLifecycleAction maps a request verb onto the lifecycle table; unknown
// verbs fail validation here rather than reaching the state machine.
func parseLifecycleAction(action string) (core.LifecycleAction, error) {
	switch strings.ToLower(action) {
	case "activate":
		return core.ActionActivate, nil
	case "suspend":
		return core.ActionSuspend, nil
	case "close":
		return core.ActionClose, nil
	case "cancel":
		return core.ActionCancel, nil
	default:
		return "", &core.ValidationError{Field: "action", Message: "unknown lifecycle action " + action}
	}
}
