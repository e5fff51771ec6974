package report

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"absensi-backend/internal/attendance"
	"absensi-backend/internal/datacache"
)

// ===== Error model =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		default:
			return 500
		}
	}
	return 500
}

const (
	FormatJSON = "json"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"

	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeCSV  = "text/csv; charset=windows-1252"
)

// Snapshotter is satisfied by *datacache.Cache.
type Snapshotter interface {
	Snapshot() datacache.Snapshot
}

type Config struct {
	School   string
	City     string
	Location *time.Location
}

type Handler struct {
	src Snapshotter
	cfg Config
	now func() time.Time
}

func NewHandler(src Snapshotter, cfg Config) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Handler{src: src, cfg: cfg, now: time.Now}
}

func RegisterRoutes(r gin.IRouter, h *Handler) {
	r.GET("/reports/daily", h.Daily)
	r.GET("/reports/monthly", h.Monthly)
}

// Daily godoc
// @Summary  Daily attendance of one class
// @Tags     reports
// @Produce  json,application/pdf
// @Param    class  query string false "class name (defaults to the first class)"
// @Param    date   query string false "YYYY-MM-DD, defaults to today"
// @Param    format query string false "json | pdf | xlsx | csv"
// @Success  200 {object} DailyReport
// @Failure  404 {object} errDTO
// @Router   /reports/daily [get]
func (h *Handler) Daily(c *gin.Context) {
	snap := h.src.Snapshot()
	className, err := h.pickClass(snap, c.Query("class"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	now := h.now().In(h.cfg.Location)
	date := strings.TrimSpace(c.Query("date"))
	if date == "" || date == "today" {
		date = now.Format(attendance.DateLayout)
	} else if _, err := time.Parse(attendance.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "date must be YYYY-MM-DD"))
		return
	}

	rep := Daily(snap, className, date)
	lh := Letterhead{School: h.cfg.School, City: h.cfg.City, PrintedAt: now}
	name := fmt.Sprintf("Laporan Absensi %s - %s", className, date)

	switch format(c) {
	case FormatJSON:
		c.JSON(http.StatusOK, rep)
	case FormatPDF:
		h.send(c, name+".pdf", mimePDF, func(b *bytes.Buffer) error { return WriteDailyPDF(b, rep, lh) })
	case FormatXLSX:
		h.send(c, name+".xlsx", mimeXLSX, func(b *bytes.Buffer) error { return WriteDailyXLSX(b, rep, lh) })
	case FormatCSV:
		h.send(c, name+".csv", mimeCSV, func(b *bytes.Buffer) error { return WriteDailyCSV(b, rep) })
	default:
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "format must be json, pdf, xlsx or csv"))
	}
}

// Monthly godoc
// @Summary  Monthly H/S/I/A pivot of one class
// @Tags     reports
// @Produce  json,application/pdf
// @Param    class  query string false "class name (defaults to the first class)"
// @Param    month  query int    false "1-12, defaults to this month"
// @Param    year   query int    false "defaults to this year"
// @Param    format query string false "json | pdf | xlsx | csv"
// @Success  200 {object} MonthlyReport
// @Failure  404 {object} errDTO
// @Router   /reports/monthly [get]
func (h *Handler) Monthly(c *gin.Context) {
	snap := h.src.Snapshot()
	className, err := h.pickClass(snap, c.Query("class"))
	if err != nil {
		c.JSON(toHTTPStatus(err), apiErrFrom(err))
		return
	}
	now := h.now().In(h.cfg.Location)
	month, year := int(now.Month()), now.Year()
	if v := c.Query("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "month must be 1-12"))
			return
		}
		month = n
	}
	if v := c.Query("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2000 || n > 2100 {
			c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "year must be between 2000 and 2100"))
			return
		}
		year = n
	}

	rep := Monthly(snap, className, year, month)
	lh := Letterhead{School: h.cfg.School, City: h.cfg.City, PrintedAt: now}
	name := fmt.Sprintf("Laporan Absensi %s - %d-%d", className, year, month)

	switch format(c) {
	case FormatJSON:
		c.JSON(http.StatusOK, rep)
	case FormatPDF:
		h.send(c, name+".pdf", mimePDF, func(b *bytes.Buffer) error { return WriteMonthlyPDF(b, rep, lh) })
	case FormatXLSX:
		h.send(c, name+".xlsx", mimeXLSX, func(b *bytes.Buffer) error { return WriteMonthlyXLSX(b, rep, lh) })
	case FormatCSV:
		h.send(c, name+".csv", mimeCSV, func(b *bytes.Buffer) error { return WriteMonthlyCSV(b, rep) })
	default:
		c.JSON(http.StatusBadRequest, apiErr(CodeInvalidArgument, "format must be json, pdf, xlsx or csv"))
	}
}

// pickClass: 未指定なら先頭のクラス（画面の初期選択と同じ）
func (h *Handler) pickClass(snap datacache.Snapshot, className string) (string, error) {
	className = strings.TrimSpace(className)
	if className == "" {
		if len(snap.Classes) == 0 {
			return "", ErrInvalid("class is required")
		}
		return snap.Classes[0].Name, nil
	}
	if !HasClass(snap, className) {
		return "", ErrNotFound("class not found")
	}
	return className, nil
}

// 書き出し失敗時に途中までのファイルを返さないよう一旦バッファする
func (h *Handler) send(c *gin.Context, filename, mime string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		log.Printf("[ERROR] report: render %s: %v", filename, err)
		c.JSON(http.StatusInternalServerError, apiErr(CodeInternal, "failed to render report"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, mime, buf.Bytes())
}

func format(c *gin.Context) string {
	f := strings.ToLower(strings.TrimSpace(c.Query("format")))
	if f == "" {
		return FormatJSON
	}
	return f
}

// ===== helpers =====

type errDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiErr(code Code, msg string) errDTO {
	var e errDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func apiErrFrom(err error) errDTO {
	if api, ok := err.(*APIError); ok {
		return apiErr(api.Code, api.Message)
	}
	return apiErr(CodeInternal, err.Error())
}
