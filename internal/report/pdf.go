package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// Letterhead is the school part of printed reports.
type Letterhead struct {
	School    string
	City      string
	PrintedAt time.Time
}

const (
	pdfFont   = "Times"
	pdfMargin = 10.0
)

type pdfDoc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newPDF(orientation string, lh Letterhead) *pdfDoc {
	p := fpdf.New(orientation, "mm", "A4", "")
	p.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	p.SetAutoPageBreak(true, 18)
	p.AliasNbPages("{nb}")
	d := &pdfDoc{Fpdf: p, tr: p.UnicodeTranslatorFromDescriptor("")}

	p.SetFooterFunc(func() {
		_, h := p.GetPageSize()
		p.SetY(h - 12)
		p.SetFont(pdfFont, "", 8)
		p.SetTextColor(0, 0, 0)
		p.CellFormat(0, 4, d.tr("Dicetak pada: "+lh.PrintedAt.Format("02/01/2006 15.04.05")), "", 0, "L", false, 0, "")
		p.SetX(pdfMargin)
		p.CellFormat(0, 4, fmt.Sprintf("Halaman %d dari {nb}", p.PageNo()), "", 0, "R", false, 0, "")
	})
	p.AddPage()
	return d
}

func (d *pdfDoc) heading(lh Letterhead, period string) {
	d.SetFont(pdfFont, "B", 16)
	d.CellFormat(0, 7, Title, "", 1, "C", false, 0, "")
	d.CellFormat(0, 7, d.tr(upper(lh.School)), "", 1, "C", false, 0, "")
	d.SetFont(pdfFont, "", 12)
	d.CellFormat(0, 7, d.tr(period), "", 1, "C", false, 0, "")
	d.Ln(4)
}

func (d *pdfDoc) headerRow(widths []float64, labels []string, size float64) {
	d.SetFont(pdfFont, "B", size)
	d.SetFillColor(0x87, 0xCE, 0xEB)
	d.SetTextColor(0xFF, 0xFF, 0xFF)
	d.SetDrawColor(0x87, 0xCE, 0xEB)
	for i, l := range labels {
		d.CellFormat(widths[i], 7, l, "1", 0, "C", true, 0, "")
	}
	d.Ln(-1)
	d.SetTextColor(0, 0, 0)
	d.SetDrawColor(0, 0, 0)
	d.SetLineWidth(0.1)
}

// signatures prints the headmaster (left) and class teacher (right) block.
func (d *pdfDoc) signatures(lh Letterhead, info ClassInfo) {
	w, h := d.GetPageSize()
	if d.GetY()+60 > h-18 {
		d.AddPage()
	}
	y := d.GetY() + 15
	left, right := w/4, w/4*3
	colW := w / 2.5

	line := func(x, y float64, s string) {
		d.SetXY(x-colW/2, y)
		d.CellFormat(colW, 5, d.tr(s), "", 0, "C", false, 0, "")
	}
	nameOr := func(s string) string {
		if s == "" {
			return NoName
		}
		return upper(s)
	}

	d.SetFont(pdfFont, "", 11)
	line(left, y, "Mengetahui,")
	line(right, y, fmt.Sprintf("%s, %s", orDash(lh.City), LongDate(lh.PrintedAt)))
	line(left, y+5, "Kepala Sekolah TK")
	line(right, y+5, "Guru Kelas "+info.Name)
	line(left, y+30, nameOr(info.HeadmasterName))
	line(right, y+30, nameOr(info.TeacherName))
	line(left, y+35, "NIP. "+orDash(info.HeadmasterNIP))
	line(right, y+35, "NIP. "+orDash(info.TeacherNIP))
}

func WriteDailyPDF(w io.Writer, r DailyReport, lh Letterhead) error {
	d := newPDF("P", lh)
	d.heading(lh, r.Period())

	pageW, _ := d.GetPageSize()
	usable := pageW - 2*pdfMargin
	widths := []float64{10, usable - 10 - 25 - 60, 25, 60}
	d.headerRow(widths, []string{"NO", "NAMA SISWA", "STATUS", "KETERANGAN"}, 8)

	d.SetFont(pdfFont, "", 10)
	for _, row := range r.Rows {
		d.CellFormat(widths[0], 7, strconv.Itoa(row.No), "1", 0, "C", false, 0, "")
		d.CellFormat(widths[1], 7, d.tr(upper(row.Name)), "1", 0, "L", false, 0, "")
		d.CellFormat(widths[2], 7, row.Status, "1", 0, "C", false, 0, "")
		d.CellFormat(widths[3], 7, d.tr(row.Note), "1", 0, "L", false, 0, "")
		d.Ln(-1)
	}

	d.signatures(lh, r.Class)
	return d.Output(w)
}

func WriteMonthlyPDF(w io.Writer, r MonthlyReport, lh Letterhead) error {
	d := newPDF("L", lh)
	d.heading(lh, r.Period())

	pageW, _ := d.GetPageSize()
	usable := pageW - 2*pdfMargin
	const noW, nameW, recapW = 8.0, 40.0, 6.0
	dayW := (usable - noW - nameW - 4*recapW) / float64(r.DaysInMonth)

	widths := []float64{noW, nameW}
	labels := []string{"NO", "NAMA SISWA"}
	for day := 1; day <= r.DaysInMonth; day++ {
		widths = append(widths, dayW)
		labels = append(labels, strconv.Itoa(day))
	}
	widths = append(widths, recapW, recapW, recapW, recapW)
	labels = append(labels, "H", "S", "I", "A")
	d.headerRow(widths, labels, 7)

	d.SetFont(pdfFont, "", 6)
	for _, row := range r.Rows {
		d.CellFormat(noW, 5, strconv.Itoa(row.No), "1", 0, "C", false, 0, "")
		d.CellFormat(nameW, 5, d.tr(upper(row.Name)), "1", 0, "L", false, 0, "")
		for _, mark := range row.Days {
			d.CellFormat(dayW, 5, mark, "1", 0, "C", false, 0, "")
		}
		for _, n := range []int{row.Recap.H, row.Recap.S, row.Recap.I, row.Recap.A} {
			d.CellFormat(recapW, 5, blankZero(n), "1", 0, "C", false, 0, "")
		}
		d.Ln(-1)
	}

	d.signatures(lh, r.Class)
	return d.Output(w)
}
