package excel

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/haithamq/visaflow/internal/core/domain"
	"github.com/haithamq/visaflow/internal/core/ports"
)

// Renderer emits the finished package as two workbooks: an application
// summary and a per-requirement checklist. Artifact paths returned in the
// state are object-storage keys.
type Renderer struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Renderer {
	return &Renderer{storage: storage}
}

func (r *Renderer) Render(ctx context.Context, state *domain.PipelineState) (domain.Artifacts, error) {
	applicationKey := fmt.Sprintf("%s_application.xlsx", state.RequestID)
	checklistKey := fmt.Sprintf("%s_checklist.xlsx", state.RequestID)

	if err := r.writeWorkbook(ctx, applicationKey, buildApplication, state); err != nil {
		return domain.Artifacts{}, fmt.Errorf("render application workbook: %w", err)
	}
	if err := r.writeWorkbook(ctx, checklistKey, buildChecklist, state); err != nil {
		return domain.Artifacts{}, fmt.Errorf("render checklist workbook: %w", err)
	}

	return domain.Artifacts{
		ApplicationPath: applicationKey,
		ChecklistPath:   checklistKey,
	}, nil
}

func (r *Renderer) writeWorkbook(ctx context.Context, key string, build func(*excelize.File, *domain.PipelineState) error, state *domain.PipelineState) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := build(f, state); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("serialize workbook: %w", err)
	}
	if err := r.storage.Save(ctx, key, buf); err != nil {
		return fmt.Errorf("store workbook: %w", err)
	}
	return nil
}

func buildApplication(f *excelize.File, state *domain.PipelineState) error {
	const sheet = "Application"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	rows := [][]any{
		{"Request", state.RequestID},
		{"Country", state.CountryID},
		{"Country (local)", state.CountryNameLocal},
		{"Visa type", state.VisaType},
		{"Requirements source", state.RequirementsSource},
		{"Coverage", fmt.Sprintf("%.0f%%", state.CoverageScore*100)},
		{"Started", state.StartedAt.Format("2006-01-02 15:04")},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	travelerSheet := "Travelers"
	if _, err := f.NewSheet(travelerSheet); err != nil {
		return err
	}
	header := []any{"Name", "Name (local)", "Relationship", "ID number", "Passport expiry"}
	if err := f.SetSheetRow(travelerSheet, "A1", &header); err != nil {
		return err
	}
	for i, t := range state.Travelers {
		row := []any{t.Name, t.NameLocal, t.Relationship, t.IDNumber, t.PassportExpiry}
		if err := f.SetSheetRow(travelerSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func buildChecklist(f *excelize.File, state *domain.PipelineState) error {
	const sheet = "Checklist"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	resultByRequirement := make(map[string]domain.MatchResult, len(state.MatchResults))
	for _, result := range state.MatchResults {
		resultByRequirement[result.RequirementID] = result
	}
	docByID := make(map[string]domain.Document, len(state.Documents))
	for _, doc := range state.Documents {
		docByID[doc.ID] = doc
	}

	header := []any{"Requirement", "Description (local)", "Category", "Mandatory", "Status", "Document", "Score", "Notes"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, req := range state.Requirements {
		result := resultByRequirement[req.ID]
		docLabel := ""
		if doc, ok := docByID[result.DocumentID]; ok && result.DocumentID != "" {
			docLabel = doc.Type
		}
		mandatory := "No"
		if req.IsMandatory {
			mandatory = "Yes"
		}

		row := []any{
			req.DescriptionPrimary,
			req.DescriptionSecondary,
			req.Category,
			mandatory,
			string(result.Status),
			docLabel,
			result.Score,
			strings.Join(result.Notes, "; "),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}
