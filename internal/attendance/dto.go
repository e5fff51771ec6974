package attendance

const (
	SortDateDesc     = "date_desc"
	SortDateAsc      = "date_asc"
	SortStudentName  = "student_name"
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	DefaultSort      = SortDateDesc
	DateLayout       = "2006-01-02"
)

type EntryRequest struct {
	StudentID string  `json:"student_id" binding:"required"`
	Date      string  `json:"date"` // "YYYY-MM-DD" or "today"
	Status    string  `json:"status" binding:"required"`
	Note      *string `json:"note,omitempty"`
}

// POST /attendance
type UpsertRequest struct {
	Records []EntryRequest `json:"records" binding:"required"`
}

type SheetEntry struct {
	StudentID string  `json:"student_id" binding:"required"`
	Status    string  `json:"status"`
	Note      *string `json:"note,omitempty"`
}

// POST /attendance/sheet: 1クラス1日分の一括保存
type SheetRequest struct {
	ClassName string       `json:"class_name" binding:"required"`
	Date      string       `json:"date"`
	Entries   []SheetEntry `json:"entries" binding:"required"`
}

type UpsertResponse struct {
	Items   []Record `json:"items"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
}

type ListQuery struct {
	StudentID *string
	ClassName *string
	Status    *Status
	On        *string
	From      *string
	To        *string
	Limit     int // 0 = 無制限（キャッシュの全件ロード用）
	Offset    int
	Sort      string
}

type ListResponse struct {
	Items      []Record `json:"items"`
	Total      int64    `json:"total"`
	NextOffset int      `json:"next_offset"`
}

// SummaryData の形に合わせる
type StatsResponse struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Total      int64  `json:"total"`
	Present    int64  `json:"present"`
	Sick       int64  `json:"sick"`
	Permission int64  `json:"permission"`
	Absent     int64  `json:"absent"`
}
