// Package export renders final results as Excel workbooks for the owner or
// an authorized activator, after the live session is over.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/session-engine/internal/identity"
	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store"
)

type Exporter struct {
	store    store.AttemptStore
	resolver identity.Resolver
	authz    identity.Authorizer
	logger   *slog.Logger
}

func NewExporter(st store.AttemptStore, resolver identity.Resolver, authz identity.Authorizer, logger *slog.Logger) *Exporter {
	if authz == nil {
		authz = identity.StaticAuthorizer{}
	}
	return &Exporter{
		store:    st,
		resolver: resolver,
		authz:    authz,
		logger:   logger,
	}
}

// ExportLeaderboard writes the ranked leaderboard of a definition to an xlsx
// workbook. Only the owner or an authorized activator may export.
func (e *Exporter) ExportLeaderboard(ctx context.Context, definitionID string, actor models.Identity) ([]byte, error) {
	def, attempts, err := e.load(ctx, definitionID, actor)
	if err != nil {
		return nil, err
	}

	entries := scoring.Rank(def, attempts, e.displayNames(ctx, attempts))

	f := excelize.NewFile()
	sheetName := "Leaderboard"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Rank", "Participant ID", "Participant Name", "Score", "Percentage",
		"Time Taken (seconds)", "Submitted At",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, entry := range entries {
		row := []interface{}{
			entry.Rank,
			entry.OwnerID,
			entry.DisplayName,
			entry.Score,
			entry.Percentage,
			entry.TimeTakenSeconds,
			entry.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportResults writes one row per submitted attempt with its raw score
// fields, for grading review outside the engine.
func (e *Exporter) ExportResults(ctx context.Context, definitionID string, actor models.Identity) ([]byte, error) {
	def, attempts, err := e.load(ctx, definitionID, actor)
	if err != nil {
		return nil, err
	}

	names := e.displayNames(ctx, attempts)

	f := excelize.NewFile()
	sheetName := "Results"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Participant ID", "Participant Name", "Status", "Started At", "Submitted At",
		"Score", "Total Points", "Percentage", "Time Taken (seconds)", "Answered Questions",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, attempt := range attempts {
		row := []interface{}{
			attempt.OwnerID,
			names[attempt.OwnerID],
			string(attempt.Status),
			attempt.StartedAt.Format("2006-01-02 15:04:05"),
			formatTimePtr(attempt.SubmittedAt),
			attempt.Score,
			attempt.TotalPoints,
			attempt.Percentage,
			attempt.TimeTakenSeconds(def),
			len(attempt.Answers),
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Exporter) load(ctx context.Context, definitionID string, actor models.Identity) (*models.AssessmentDefinition, []*models.Attempt, error) {
	def, err := e.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get definition: %w", err)
	}

	allowed, err := e.authz.CanActivate(ctx, actor, def)
	if err != nil {
		return nil, nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !allowed {
		return nil, nil, fmt.Errorf("export of definition %s by %s: %w", definitionID, actor.ID, store.ErrNotAuthorized)
	}

	attempts, err := e.store.ListSubmittedAttempts(ctx, definitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list submitted attempts: %w", err)
	}
	return def, attempts, nil
}

// displayNames resolves participant names best-effort. A failed lookup leaves
// the name blank rather than failing the whole export.
func (e *Exporter) displayNames(ctx context.Context, attempts []*models.Attempt) map[string]string {
	names := make(map[string]string, len(attempts))
	if e.resolver == nil {
		return names
	}
	for _, a := range attempts {
		if _, ok := names[a.OwnerID]; ok {
			continue
		}
		ident, err := e.resolver.Resolve(ctx, a.OwnerID)
		if err != nil {
			e.logger.Warn("Failed to resolve participant name",
				"owner_id", a.OwnerID,
				"error", err)
			continue
		}
		names[a.OwnerID] = ident.DisplayName
	}
	return names
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
