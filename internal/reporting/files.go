package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"morpho-market-indexer/internal/domain"
)

// File names written by WriteFiles into the output directory.
const (
	ReportFileName        = "MARKET_REPORT.md"
	SuppliersCSVFileName  = "top_suppliers.csv"
	BorrowersCSVFileName  = "top_borrowers.csv"
	ActivitiesCSVFileName = "activities.csv"
)

// WriteFiles generates the market report and writes MARKET_REPORT.md plus
// the CSV exports into outputDir. The activities CSV carries the complete
// history, not just the recent rows shown in the Markdown report.
func (g *Generator) WriteFiles(ctx context.Context, outputDir string) (*Report, error) {
	report, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}

	activities, err := g.activityStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activities for csv: %w", err)
	}
	allRows := make([]ActivityRow, len(activities))
	for i, a := range activities {
		allRows[i] = activityRow(a)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{ReportFileName, RenderMarkdown(report)},
		{SuppliersCSVFileName, RenderSuppliersCSV(report.TopSuppliers)},
		{BorrowersCSVFileName, RenderBorrowersCSV(report.TopBorrowers)},
		{ActivitiesCSVFileName, RenderActivitiesCSV(allRows)},
	}
	for _, f := range files {
		path := filepath.Join(outputDir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}

	return report, nil
}

func activityRow(a *domain.Activity) ActivityRow {
	return ActivityRow{
		Kind:            string(a.Kind),
		ActorAddress:    a.ActorAddress,
		AmountFormatted: a.AmountFormatted,
		TransactionHash: a.TransactionHash,
		BlockNumber:     a.BlockNumber,
		Timestamp:       a.Timestamp,
	}
}
