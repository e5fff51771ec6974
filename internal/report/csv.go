package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CSV は Excel (Windows の既定 ANSI = CP1252) でそのまま開ける形で出す。
// CP1252 にない文字は置換される。
func newCSV(w io.Writer) (*csv.Writer, io.Closer) {
	tw := transform.NewWriter(w, encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()))
	return csv.NewWriter(tw), tw
}

func WriteDailyCSV(w io.Writer, r DailyReport) error {
	cw, closer := newCSV(w)
	if err := cw.Write([]string{"NO", "NAMA SISWA", "NIS", "STATUS", "KETERANGAN"}); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write([]string{strconv.Itoa(row.No), upper(row.Name), row.NIS, row.Status, row.Note}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return closer.Close()
}

func WriteMonthlyCSV(w io.Writer, r MonthlyReport) error {
	cw, closer := newCSV(w)
	head := []string{"NO", "NAMA SISWA"}
	for day := 1; day <= r.DaysInMonth; day++ {
		head = append(head, strconv.Itoa(day))
	}
	head = append(head, "H", "S", "I", "A")
	if err := cw.Write(head); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := append([]string{strconv.Itoa(row.No), upper(row.Name)}, row.Days...)
		rec = append(rec, blankZero(row.Recap.H), blankZero(row.Recap.S), blankZero(row.Recap.I), blankZero(row.Recap.A))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return closer.Close()
}
