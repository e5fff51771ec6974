package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	sheetDaily   = "Harian"
	sheetMonthly = "Bulanan"
	tableTopRow  = 5
)

type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func newSheet(name string) *sheetWriter {
	f := excelize.NewFile()
	sw := &sheetWriter{f: f, sheet: name}
	sw.err = f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), name)
	return sw
}

// set は最初のエラーだけを保持する。
func (s *sheetWriter) set(col, row int, v any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetCellValue(s.sheet, cell, v)
}

func (s *sheetWriter) styleRange(col1, row1, col2, row2 int, style *excelize.Style) {
	if s.err != nil {
		return
	}
	id, err := s.f.NewStyle(style)
	if err != nil {
		s.err = err
		return
	}
	from, _ := excelize.CoordinatesToCellName(col1, row1)
	to, _ := excelize.CoordinatesToCellName(col2, row2)
	s.err = s.f.SetCellStyle(s.sheet, from, to, id)
}

func (s *sheetWriter) title(lastCol int, lines ...string) {
	for i, l := range lines {
		row := i + 1
		s.set(1, row, l)
		if s.err != nil {
			return
		}
		from, _ := excelize.CoordinatesToCellName(1, row)
		to, _ := excelize.CoordinatesToCellName(lastCol, row)
		s.err = s.f.MergeCell(s.sheet, from, to)
	}
	s.styleRange(1, 1, lastCol, len(lines), &excelize.Style{
		Font:      &excelize.Font{Bold: true, Family: "Times New Roman", Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}

func (s *sheetWriter) header(labels []string) {
	for i, l := range labels {
		s.set(i+1, tableTopRow, l)
	}
	s.styleRange(1, tableTopRow, len(labels), tableTopRow, &excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"87CEEB"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
}

func (s *sheetWriter) write(w io.Writer) error {
	defer s.f.Close()
	if s.err != nil {
		return fmt.Errorf("build sheet %s: %w", s.sheet, s.err)
	}
	return s.f.Write(w)
}

func WriteDailyXLSX(w io.Writer, r DailyReport, lh Letterhead) error {
	s := newSheet(sheetDaily)
	labels := []string{"NO", "NAMA SISWA", "NIS", "STATUS", "KETERANGAN"}
	s.title(len(labels), Title, upper(lh.School), r.Period())
	s.header(labels)

	for i, row := range r.Rows {
		y := tableTopRow + 1 + i
		s.set(1, y, row.No)
		s.set(2, y, upper(row.Name))
		s.set(3, y, row.NIS)
		s.set(4, y, row.Status)
		s.set(5, y, row.Note)
	}
	if s.err == nil {
		s.err = s.f.SetColWidth(s.sheet, "B", "B", 32)
	}
	if s.err == nil {
		s.err = s.f.SetColWidth(s.sheet, "E", "E", 30)
	}
	return s.write(w)
}

func WriteMonthlyXLSX(w io.Writer, r MonthlyReport, lh Letterhead) error {
	s := newSheet(sheetMonthly)
	labels := []string{"NO", "NAMA SISWA"}
	for day := 1; day <= r.DaysInMonth; day++ {
		labels = append(labels, strconv.Itoa(day))
	}
	labels = append(labels, "H", "S", "I", "A")
	s.title(len(labels), Title, upper(lh.School), r.Period())
	s.header(labels)

	for i, row := range r.Rows {
		y := tableTopRow + 1 + i
		s.set(1, y, row.No)
		s.set(2, y, upper(row.Name))
		for d, mark := range row.Days {
			if mark != "" {
				s.set(3+d, y, mark)
			}
		}
		base := 3 + r.DaysInMonth
		for j, n := range []int{row.Recap.H, row.Recap.S, row.Recap.I, row.Recap.A} {
			if n > 0 {
				s.set(base+j, y, n)
			}
		}
	}
	if s.err == nil {
		s.err = s.f.SetColWidth(s.sheet, "B", "B", 32)
	}
	return s.write(w)
}
