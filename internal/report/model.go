// Package report builds the daily and monthly attendance sheets of one class
// from the cache snapshot and renders them as JSON, PDF, XLSX or CSV.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/classes"
	"absensi-backend/internal/datacache"
	"absensi-backend/internal/students"
)

const (
	KindDaily   = "daily"
	KindMonthly = "monthly"

	Title   = "LAPORAN ABSENSI DIGITAL"
	NoMark  = "-"
	NoName  = "_________________"
	NoValue = "-"
)

var MonthNames = []string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// ClassInfo は署名欄に使う担任・校長の情報。
type ClassInfo struct {
	Name           string `json:"name"`
	TeacherName    string `json:"teacher_name"`
	TeacherNIP     string `json:"teacher_nip"`
	HeadmasterName string `json:"headmaster_name"`
	HeadmasterNIP  string `json:"headmaster_nip"`
}

type Recap struct {
	H int `json:"H"`
	S int `json:"S"`
	I int `json:"I"`
	A int `json:"A"`
}

func (r *Recap) add(st attendance.Status) {
	switch st {
	case attendance.StatusPresent:
		r.H++
	case attendance.StatusSick:
		r.S++
	case attendance.StatusPermission:
		r.I++
	case attendance.StatusAbsent:
		r.A++
	}
}

type DailyRow struct {
	No        int    `json:"no"`
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	NIS       string `json:"nis"`
	Status    string `json:"status"` // NoMark when not recorded
	Note      string `json:"note"`
}

type DailyReport struct {
	Class ClassInfo  `json:"class"`
	Date  string     `json:"date"`
	Rows  []DailyRow `json:"rows"`
	Recap Recap      `json:"recap"`
}

type MonthlyRow struct {
	No        int      `json:"no"`
	StudentID string   `json:"student_id"`
	Name      string   `json:"name"`
	NIS       string   `json:"nis"`
	Days      []string `json:"days"` // index 0 = day 1, "" when not recorded
	Recap     Recap    `json:"recap"`
}

type MonthlyReport struct {
	Class       ClassInfo    `json:"class"`
	Year        int          `json:"year"`
	Month       int          `json:"month"`
	MonthName   string       `json:"month_name"`
	DaysInMonth int          `json:"days_in_month"`
	Rows        []MonthlyRow `json:"rows"`
	Recap       Recap        `json:"recap"`
}

// Daily lists every student of the class by name with that day's status.
func Daily(snap datacache.Snapshot, className, date string) DailyReport {
	roster := classRoster(snap.Students, className)
	byStudent := make(map[string]attendance.Record, len(roster))
	for _, a := range snap.Attendance {
		if a.Date == date {
			byStudent[a.StudentID] = a
		}
	}

	rep := DailyReport{Class: classInfo(snap.Classes, className), Date: date, Rows: make([]DailyRow, 0, len(roster))}
	for i, st := range roster {
		row := DailyRow{No: i + 1, StudentID: st.ID, Name: st.Name, NIS: st.NIS, Status: NoMark}
		if a, ok := byStudent[st.ID]; ok {
			row.Status = string(a.Status)
			row.Note = a.NoteText()
			if row.Note == "" {
				row.Note = NoValue
			}
			rep.Recap.add(a.Status)
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}

// Monthly pivots the month into one H/S/I/A letter per student and day.
func Monthly(snap datacache.Snapshot, className string, year, month int) MonthlyReport {
	roster := classRoster(snap.Students, className)
	days := DaysIn(year, month)
	prefix := fmt.Sprintf("%04d-%02d-", year, month)

	rows := make(map[string]*MonthlyRow, len(roster))
	rep := MonthlyReport{
		Class:       classInfo(snap.Classes, className),
		Year:        year,
		Month:       month,
		MonthName:   MonthNames[month-1],
		DaysInMonth: days,
		Rows:        make([]MonthlyRow, len(roster)),
	}
	for i, st := range roster {
		rep.Rows[i] = MonthlyRow{No: i + 1, StudentID: st.ID, Name: st.Name, NIS: st.NIS, Days: make([]string, days)}
		rows[st.ID] = &rep.Rows[i]
	}

	for _, a := range snap.Attendance {
		row, ok := rows[a.StudentID]
		if !ok || !strings.HasPrefix(a.Date, prefix) {
			continue
		}
		day, err := strconv.Atoi(a.Date[len(prefix):])
		if err != nil || day < 1 || day > days {
			continue
		}
		row.Days[day-1] = a.Status.Letter()
		row.Recap.add(a.Status)
		rep.Recap.add(a.Status)
	}
	return rep
}

// DaysIn returns the number of days of the month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// HasClass reports whether the class exists or still has students.
func HasClass(snap datacache.Snapshot, className string) bool {
	for _, c := range snap.Classes {
		if c.Name == className {
			return true
		}
	}
	for _, s := range snap.Students {
		if s.ClassName == className {
			return true
		}
	}
	return false
}

func classRoster(all []students.Student, className string) []students.Student {
	out := make([]students.Student, 0, 16)
	for _, s := range all {
		if s.ClassName == className {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func classInfo(all []classes.Class, className string) ClassInfo {
	info := ClassInfo{Name: className}
	for _, c := range all {
		if c.Name != className {
			continue
		}
		info.TeacherName = deref(c.TeacherName)
		info.TeacherNIP = deref(c.TeacherNIP)
		info.HeadmasterName = deref(c.HeadmasterName)
		info.HeadmasterNIP = deref(c.HeadmasterNIP)
		break
	}
	return info
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// upper は名前をインドネシア語の規則で大文字化する。
func upper(s string) string {
	return cases.Upper(language.Indonesian).String(s)
}

// LongDate formats 2025-01-10 as "10 Januari 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), MonthNames[t.Month()-1], t.Year())
}

// Period is the "KELAS: ... - Tanggal/Periode: ..." subtitle line.
func (r DailyReport) Period() string {
	d, err := time.Parse(attendance.DateLayout, r.Date)
	if err != nil {
		return fmt.Sprintf("KELAS: %s - Tanggal: %s", orDash(r.Class.Name), r.Date)
	}
	return fmt.Sprintf("KELAS: %s - Tanggal: %s", orDash(r.Class.Name), LongDate(d))
}

func (r MonthlyReport) Period() string {
	return fmt.Sprintf("KELAS: %s - Periode: %s %d", orDash(r.Class.Name), r.MonthName, r.Year)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return NoValue
	}
	return s
}

// blankZero は月報の集計欄で 0 を空欄にする。
func blankZero(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
