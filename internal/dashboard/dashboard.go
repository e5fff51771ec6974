// Package dashboard computes the live attendance statistics shown on the
// home screen from a cache snapshot.
package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/datacache"
)

const TrendDays = 7

var shortWeekdays = [...]string{"Min", "Sen", "Sel", "Rab", "Kam", "Jum", "Sab"}

type Presence struct {
	Present    int `json:"hadir"`
	Sick       int `json:"sakit"`
	Permission int `json:"izin"`
	Absent     int `json:"alfa"`
}

func (p *Presence) add(st attendance.Status) {
	switch st {
	case attendance.StatusPresent:
		p.Present++
	case attendance.StatusSick:
		p.Sick++
	case attendance.StatusPermission:
		p.Permission++
	case attendance.StatusAbsent:
		p.Absent++
	}
}

type ClassStat struct {
	Name  string `json:"name"`
	Total int    `json:"total"` // 在籍数
	Presence
}

type Detail struct {
	RecordID    string  `json:"record_id"`
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	ClassName   string  `json:"class_name"`
	Note        *string `json:"note,omitempty"`
}

type TrendPoint struct {
	Date       string `json:"date"`
	Name       string `json:"name"` // 曜日の略称
	Present    int    `json:"hadir"`
	NotPresent int    `json:"absen"`
}

type MonthPoint struct {
	Day     int    `json:"day"`
	Name    string `json:"name"`
	Percent int    `json:"persen"`
}

type Summary struct {
	Date          string                         `json:"date"`
	Loading       bool                           `json:"loading"`
	TotalStudents int                            `json:"total_students"`
	Today         Presence                       `json:"today"`
	TodayPercent  int                            `json:"today_percent"`
	Classes       []ClassStat                    `json:"classes"`
	Details       map[attendance.Status][]Detail `json:"details"`
	Trend         []TrendPoint                   `json:"trend"`
	MonthPercent  int                            `json:"month_percent"`
	MonthTrend    []MonthPoint                   `json:"month_trend"`
}

// Compute derives every dashboard figure for the given day.
func Compute(snap datacache.Snapshot, today time.Time) Summary {
	day := today.Format(attendance.DateLayout)
	s := Summary{
		Date:          day,
		Loading:       snap.Loading,
		TotalStudents: len(snap.Students),
		Classes:       make([]ClassStat, 0, len(snap.Classes)),
		Details:       make(map[attendance.Status][]Detail, len(attendance.Statuses)),
	}
	for _, st := range attendance.Statuses {
		s.Details[st] = []Detail{}
	}

	// クラス別（classes に登録されているものだけ）
	idx := make(map[string]int, len(snap.Classes))
	for _, c := range snap.Classes {
		idx[c.Name] = len(s.Classes)
		s.Classes = append(s.Classes, ClassStat{Name: c.Name})
	}
	for _, st := range snap.Students {
		if i, ok := idx[st.ClassName]; ok {
			s.Classes[i].Total++
		}
	}

	for _, a := range snap.Attendance {
		if a.Date != day {
			continue
		}
		s.Today.add(a.Status)
		if i, ok := idx[a.ClassName]; ok {
			s.Classes[i].add(a.Status)
		}
		if a.Status.Valid() {
			s.Details[a.Status] = append(s.Details[a.Status], Detail{
				RecordID:    a.ID,
				StudentID:   a.StudentID,
				StudentName: a.StudentName,
				ClassName:   a.ClassName,
				Note:        a.Note,
			})
		}
	}
	s.TodayPercent = percent(s.Today.Present, s.TotalStudents)

	s.Trend = trend(snap.Attendance, today)
	s.MonthPercent, s.MonthTrend = month(snap.Attendance, today, s.TotalStudents)
	return s
}

// trend: 直近7日（古い順）、出席とそれ以外
func trend(records []attendance.Record, today time.Time) []TrendPoint {
	out := make([]TrendPoint, TrendDays)
	pos := make(map[string]int, TrendDays)
	for i := 0; i < TrendDays; i++ {
		d := today.AddDate(0, 0, i-(TrendDays-1))
		key := d.Format(attendance.DateLayout)
		out[i] = TrendPoint{Date: key, Name: shortWeekdays[d.Weekday()]}
		pos[key] = i
	}
	for _, a := range records {
		i, ok := pos[a.Date]
		if !ok {
			continue
		}
		if a.Status == attendance.StatusPresent {
			out[i].Present++
		} else {
			out[i].NotPresent++
		}
	}
	return out
}

// month: 今月の出席率（出席 / 記録数）と日別の出席率（出席 / 在籍数）
func month(records []attendance.Record, today time.Time, students int) (int, []MonthPoint) {
	prefix := today.Format("2006-01-")
	days := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()

	var total, present int
	perDay := make([]int, days+1)
	for _, a := range records {
		if !strings.HasPrefix(a.Date, prefix) {
			continue
		}
		total++
		if a.Status != attendance.StatusPresent {
			continue
		}
		present++
		var d int
		if _, err := fmt.Sscanf(a.Date[len(prefix):], "%d", &d); err == nil && d >= 1 && d <= days {
			perDay[d]++
		}
	}

	points := make([]MonthPoint, 0, days)
	for d := 1; d <= days; d++ {
		points = append(points, MonthPoint{Day: d, Name: fmt.Sprintf("Tgl %d", d), Percent: percent(perDay[d], students)})
	}
	return percent(present, total), points
}

// percent rounds half up; 0 when the denominator is 0.
func percent(n, d int) int {
	if d == 0 {
		return 0
	}
	return int(math.Floor(float64(n)*100/float64(d) + 0.5))
}
