// Package report 重标注结果导出为 Excel
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/hoanvar/LTN/internal/models"
	"github.com/hoanvar/LTN/internal/reconciler"

	"github.com/xuri/excelize/v2"
)

const (
	SessionsSheet = "Sessions"
	SummarySheet  = "Summary"
)

// SessionsHeader 会话明细表头
var SessionsHeader = []string{
	"Session ID",
	"Start Time",
	"End Time",
	"Samples",
	"Hours",
	"Before",
	"After",
	"Score",
	"Strategy",
	"Changed",
}

var sessionsColumnWidths = []float64{38, 20, 20, 10, 8, 10, 10, 8, 12, 10}

const timeLayout = "2006-01-02 15:04:05"

// WriteXLSX 写出重标注报告；loc 为时间显示时区（nil 为 UTC）
func WriteXLSX(rep *reconciler.Report, w io.Writer, loc *time.Location) (err error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	index, err := f.NewSheet(SessionsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, SessionsSheet, 1, toAny(SessionsHeader)); err != nil {
		return err
	}
	if err := f.SetCellStyle(SessionsSheet, "A1", lastCell(len(SessionsHeader), 1), headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	for i, width := range sessionsColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SessionsSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range rep.Entries {
		end := ""
		if e.EndTime != nil {
			end = e.EndTime.In(loc).Format(timeLayout)
		}
		before := ""
		if e.Before != nil {
			before = string(*e.Before)
		}
		changed := "No"
		if e.Changed() {
			changed = "Yes"
		}
		row := []any{
			e.SessionID,
			e.StartTime.In(loc).Format(timeLayout),
			end,
			e.Samples,
			e.Hours,
			before,
			string(e.After),
			e.Score,
			e.Strategy,
			changed,
		}
		if err := writeRow(f, SessionsSheet, i+2, row); err != nil {
			return err
		}
	}

	// 冻结表头
	if err := f.SetPanes(SessionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := writeSummary(f, rep, loc, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, rep *reconciler.Report, loc *time.Location, headerStyle int) error {
	rows := [][]any{
		{"Metric", "Value"},
		{"Started At", rep.StartedAt.In(loc).Format(timeLayout)},
		{"Duration", rep.Duration.String()},
		{"Strategy", rep.Strategy},
		{"Relabeled", len(rep.Entries)},
		{"Changed", rep.Changed},
		{"Skipped", len(rep.Skipped)},
		{"Interrupted", rep.Interrupted},
	}
	for _, q := range models.AllQualities {
		rows = append(rows, []any{string(q), rep.Counts[q]})
	}

	for i, r := range rows {
		if err := writeRow(f, SummarySheet, i+1, r); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(SummarySheet, "A", "B", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if len(rep.Skipped) == 0 {
		return nil
	}
	start := len(rows) + 2
	if err := writeRow(f, SummarySheet, start, []any{"Skipped Session", "Reason"}); err != nil {
		return err
	}
	for i, s := range rep.Skipped {
		if err := writeRow(f, SummarySheet, start+i+1, []any{s.SessionID, s.Reason}); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func lastCell(col, row int) string {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	return cell
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
