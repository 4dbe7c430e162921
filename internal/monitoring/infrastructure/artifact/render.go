package artifact

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	monitoring "store-monitoring/internal/monitoring/domain"
)

const summaryTopStores = 25

// BuildReportXLSX renders the report rows and a totals sheet.
func BuildReportXLSX(rows []monitoring.ReportRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	reportSheet := "report"
	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	header := make([]any, 0, len(monitoring.ReportColumns))
	for _, column := range monitoring.ReportColumns {
		header = append(header, column)
	}
	if err := f.SetSheetRow(reportSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			row.StoreID,
			row.UptimeLastHour,
			row.UptimeLastDay,
			row.UptimeLastWeek,
			row.DowntimeLastHour,
			row.DowntimeLastDay,
			row.DowntimeLastWeek,
		}
		if err := f.SetSheetRow(reportSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	totals := summarize(rows)
	_ = f.SetCellValue(summarySheet, "A1", "Stores")
	_ = f.SetCellValue(summarySheet, "B1", len(rows))
	_ = f.SetCellValue(summarySheet, "A2", "Uptime last day (h)")
	_ = f.SetCellValue(summarySheet, "B2", totals.uptimeDay)
	_ = f.SetCellValue(summarySheet, "A3", "Downtime last day (h)")
	_ = f.SetCellValue(summarySheet, "B3", totals.downtimeDay)
	_ = f.SetCellValue(summarySheet, "A4", "Uptime last week (h)")
	_ = f.SetCellValue(summarySheet, "B4", totals.uptimeWeek)
	_ = f.SetCellValue(summarySheet, "A5", "Downtime last week (h)")
	_ = f.SetCellValue(summarySheet, "B5", totals.downtimeWeek)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryPDF renders totals and the stores with the most downtime last week.
func BuildSummaryPDF(reportID string, generatedAt time.Time, rows []monitoring.ReportRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Store Monitoring Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Report: %s", reportID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stores: %d", len(rows)))
	pdf.Ln(5)

	totals := summarize(rows)
	pdf.Cell(0, 6, fmt.Sprintf("Uptime / downtime last day (h): %.2f / %.2f", totals.uptimeDay, totals.downtimeDay))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Uptime / downtime last week (h): %.2f / %.2f", totals.uptimeWeek, totals.downtimeWeek))
	pdf.Ln(8)

	worst := append([]monitoring.ReportRow(nil), rows...)
	sort.SliceStable(worst, func(i, j int) bool { return worst[i].DowntimeLastWeek > worst[j].DowntimeLastWeek })
	if len(worst) > summaryTopStores {
		worst = worst[:summaryTopStores]
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(80, 6, "Store", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Down hour (min)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Down day (h)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Down week (h)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, row := range worst {
		pdf.CellFormat(80, 6, row.StoreID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", row.DowntimeLastHour), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", row.DowntimeLastDay), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", row.DowntimeLastWeek), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type reportTotals struct {
	uptimeDay    float64
	downtimeDay  float64
	uptimeWeek   float64
	downtimeWeek float64
}

func summarize(rows []monitoring.ReportRow) reportTotals {
	var totals reportTotals
	for _, row := range rows {
		totals.uptimeDay += row.UptimeLastDay
		totals.downtimeDay += row.DowntimeLastDay
		totals.uptimeWeek += row.UptimeLastWeek
		totals.downtimeWeek += row.DowntimeLastWeek
	}
	return totals
}
