package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

// RuleLister reads the current suggestion rules.
type RuleLister interface {
	ListSuggestionRules(ctx context.Context) ([]entity.SuggestionRule, error)
}

// Snapshotter produces a backlog snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (entity.BacklogSnapshot, error)
}

// Service produces XLSX bytes for exports.
type Service struct {
	rules   RuleLister
	backlog Snapshotter
	logger  *slog.Logger
}

func NewService(rules RuleLister, backlog Snapshotter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{rules: rules, backlog: backlog, logger: logger}
}

const (
	rulesSheet   = "Rules"
	backlogSheet = "Backlog"
	timeLayout   = "2006-01-02 15:04:05"
)

// RulesXLSX returns a workbook with one row per suggestion rule.
func (s *Service) RulesXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	rules, err := s.rules.ListSuggestionRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}

	f, err := newWorkbook(rulesSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	writeRow(f, rulesSheet, 1, "Seller", "Purpose Account", "Posting Account", "Occurrences", "Created", "Last Updated")
	for i, r := range rules {
		writeRow(f, rulesSheet, i+2,
			r.SellerName,
			r.PurposeAccountID.String(),
			r.PostingAccountID.String(),
			r.OccurrenceCount,
			r.CreatedAt.UTC().Format(timeLayout),
			r.LastUpdatedAt.UTC().Format(timeLayout),
		)
	}

	_ = f.SetColWidth(rulesSheet, "A", "A", 32) // seller
	_ = f.SetColWidth(rulesSheet, "B", "C", 38) // account ids
	_ = f.SetColWidth(rulesSheet, "D", "D", 12)
	_ = f.SetColWidth(rulesSheet, "E", "F", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"kind", "rules",
		"rows", len(rules),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// BacklogXLSX returns a workbook describing one backlog snapshot as
// metric/value rows.
func (s *Service) BacklogXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	snap, err := s.backlog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("backlog snapshot: %w", err)
	}

	f, err := newWorkbook(backlogSheet)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows := [][]any{{"Metric", "Value"}, {"Taken At", snap.TakenAt.UTC().Format(timeLayout)}}
	for _, st := range constants.ReceiptStatuses {
		rows = append(rows, []any{"Receipts " + string(st), snap.Receipts[st]})
	}
	for _, st := range constants.JobStatuses {
		rows = append(rows, []any{"Jobs " + string(st), snap.Jobs[st]})
	}
	rows = append(rows,
		[]any{"Awaiting Review", snap.AwaitingReview},
		[]any{"Oldest Pending Receipt (min)", ageMinutes(snap.OldestPendingReceiptAge)},
		[]any{"Oldest Pending Job (min)", ageMinutes(snap.OldestPendingJobAge)},
		[]any{"Oldest Processing Job (min)", ageMinutes(snap.OldestProcessingJobAge)},
		[]any{"Pending Receipt Alert", snap.PendingReceiptAlert},
		[]any{"Pending Job Alert", snap.PendingJobAlert},
		[]any{"Processing Job Alert", snap.ProcessingJobAlert},
		[]any{"Has Alert", snap.HasAlert},
	)
	for i, r := range rows {
		writeRow(f, backlogSheet, i+1, r...)
	}
	_ = f.SetColWidth(backlogSheet, "A", "A", 32)
	_ = f.SetColWidth(backlogSheet, "B", "B", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"kind", "backlog",
		"has_alert", snap.HasAlert,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// newWorkbook returns a file whose only sheet is named sheet.
func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

// ageMinutes renders an optional age; empty when nothing qualifies.
func ageMinutes(d *time.Duration) any {
	if d == nil {
		return ""
	}
	return int64(d.Minutes())
}
