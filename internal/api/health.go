package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/healthsync/internal/auth"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence"
	"example.com/healthsync/internal/summary"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
	maxSummaryDays     = 366
)

// windowQuery selects a summary window either by trailing days or by dates.
type windowQuery struct {
	Days      string `validate:"omitempty,number"`
	StartDate string `validate:"required_with=EndDate,omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"required_with=StartDate,omitempty,datetime=2006-01-02"`
}

type recordsQuery struct {
	DataType  string `validate:"omitempty,max=64"`
	StartDate string `validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `validate:"omitempty,datetime=2006-01-02"`
	Limit     string `validate:"omitempty,number"`
}

// RecordView is a stored record as returned by the API.
type RecordView struct {
	RecordID     string                   `json:"record_id"`
	ConnectionID string                   `json:"connection_id"`
	DataType     string                   `json:"data_type"`
	RecordedAt   time.Time                `json:"recorded_at"`
	Payload      map[string]any           `json:"payload"`
	Metadata     domain.IngestionMetadata `json:"ingestion_metadata"`
	CreatedAt    time.Time                `json:"created_at"`
}

// ListRecordsResponse packages a page of records.
type ListRecordsResponse struct {
	Items      []RecordView `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ActivitiesResponse lists activities prepared for focused analysis.
type ActivitiesResponse struct {
	Items []summary.ActivityEntry `json:"items"`
}

func (h *Handler) healthSummary(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeHealthRead)
	if claims == nil {
		return
	}
	s, ok := h.summarize(w, r, claims.Subject)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) healthDigest(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeHealthRead)
	if claims == nil {
		return
	}
	s, ok := h.summarize(w, r, claims.Subject)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(summary.Render(s)))
}

// summarize resolves the window from the query and computes the summary,
// writing the error response itself when it fails.
func (h *Handler) summarize(w http.ResponseWriter, r *http.Request, userID string) (*summary.Summary, bool) {
	q := r.URL.Query()
	in := windowQuery{Days: q.Get("days"), StartDate: q.Get("start_date"), EndDate: q.Get("end_date")}
	if err := h.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return nil, false
	}

	var (
		s   *summary.Summary
		err error
	)
	if in.StartDate != "" {
		start, _ := time.Parse(time.DateOnly, in.StartDate)
		end, _ := time.Parse(time.DateOnly, in.EndDate)
		if days := int(end.Sub(start).Hours()/24) + 1; days > maxSummaryDays {
			writeError(w, http.StatusBadRequest, "validation_failed", "window longer than "+strconv.Itoa(maxSummaryDays)+" days")
			return nil, false
		}
		s, err = h.summaries.Summarize(r.Context(), userID, start, end)
	} else {
		days := h.defaultDays
		if in.Days != "" {
			days, _ = strconv.Atoi(in.Days)
		}
		if days > maxSummaryDays {
			writeError(w, http.StatusBadRequest, "validation_failed", "days must be at most "+strconv.Itoa(maxSummaryDays))
			return nil, false
		}
		s, err = h.summaries.SummarizeDays(r.Context(), userID, days)
	}

	switch {
	case err == nil:
		return s, true
	case errors.Is(err, summary.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
	default:
		h.logger.Error("summary failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "summary unavailable")
	}
	return nil, false
}

func (h *Handler) healthRecords(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeHealthRead)
	if claims == nil {
		return
	}
	q := r.URL.Query()
	in := recordsQuery{
		DataType:  q.Get("data_type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     q.Get("limit"),
	}
	if err := h.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if in.DataType != "" && !domain.DataType(in.DataType).Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "unknown data_type")
		return
	}

	limit := defaultRecordLimit
	if in.Limit != "" {
		if parsed, err := strconv.Atoi(in.Limit); err == nil && parsed > 0 {
			limit = min(parsed, maxRecordLimit)
		}
	}
	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	query := domain.RecordQuery{
		UserID:   claims.Subject,
		DataType: domain.DataType(in.DataType),
		After:    cursor,
		Limit:    limit,
	}
	if in.StartDate != "" {
		query.From, _ = time.Parse(time.DateOnly, in.StartDate)
	}
	if in.EndDate != "" {
		end, _ := time.Parse(time.DateOnly, in.EndDate)
		query.To = end.AddDate(0, 0, 1)
	}

	records, err := h.records.ListRecords(r.Context(), query)
	if err != nil {
		h.logger.Error("list records failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "records unavailable")
		return
	}

	items := make([]RecordView, 0, len(records))
	for _, rec := range records {
		items = append(items, RecordView{
			RecordID:     rec.ID,
			ConnectionID: rec.ConnectionID,
			DataType:     string(rec.DataType),
			RecordedAt:   rec.RecordedAt,
			Payload:      rec.Payload,
			Metadata:     rec.Metadata,
			CreatedAt:    rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListRecordsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(persistence.NextCursor(records, limit)),
	})
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	claims := requireScope(w, r, auth.ScopeHealthRead)
	if claims == nil {
		return
	}
	q := r.URL.Query()
	in := windowQuery{Days: q.Get("days")}
	if err := h.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	days := h.defaultDays
	if in.Days != "" {
		days, _ = strconv.Atoi(in.Days)
	}
	if days <= 0 || days > maxSummaryDays {
		writeError(w, http.StatusBadRequest, "validation_failed", "days out of range")
		return
	}

	end := h.now()
	start := end.AddDate(0, 0, -(days - 1))
	items, err := h.summaries.ActivitiesForAnalysis(r.Context(), claims.Subject, q.Get("activity_type"), start, end)
	if err != nil {
		h.logger.Error("activity analysis failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "activities unavailable")
		return
	}
	writeJSON(w, http.StatusOK, ActivitiesResponse{Items: items})
}
