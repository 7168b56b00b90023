package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Oss53pa/cockpit-core/internal/core"
	"github.com/Oss53pa/cockpit-core/internal/logging"
)

// ----------------------------------------------------------------------------
// Categories
// ----------------------------------------------------------------------------

type categoryView struct {
	Key    string      `json:"key"`
	Label  string      `json:"label"`
	Fields []fieldView `json:"fields"`
}

type fieldView struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enumValues,omitempty"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	var out []categoryView
	for _, schema := range core.Categories() {
		cv := categoryView{Key: schema.Key, Label: schema.Label}
		for _, f := range schema.Fields {
			cv.Fields = append(cv.Fields, fieldView{
				Name:       f.Name,
				Type:       f.Type.String(),
				Required:   f.Required,
				EnumValues: f.EnumValues,
			})
		}
		out = append(out, cv)
	}
	writeJSON(w, http.StatusOK, out)
}

// ----------------------------------------------------------------------------
// Import pipeline
// ----------------------------------------------------------------------------

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize)
	if err := r.ParseMultipartForm(s.maxFileSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large or malformed form", "file_too_large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field", "missing_file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	declared := r.FormValue("format")
	if declared == "" {
		declared = formatFromName(header.Filename)
	}

	view, err := s.service.StartImport(r.Context(), core.StartImportInput{
		FileName:       header.Filename,
		DeclaredFormat: declared,
		Data:           data,
		CategoryKey:    r.FormValue("category"),
		BusinessUnitID: r.FormValue("businessUnit"),
		FolderID:       r.FormValue("folder"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// formatFromName maps a file extension to a declared format hint.
func formatFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	case ".json":
		return "json"
	default:
		return ""
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Session()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column string `json:"column"`
		Field  string `json:"field"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_json")
		return
	}
	view, err := s.service.SetMapping(r.Context(), req.Column, req.Field)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Validate(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfirmPartial bool `json:"confirmPartial"`
	}
	if r.Body != nil {
		// Body is optional; ignore decode errors on an empty body.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	// The commit outlives the HTTP request; progress streams over SSE and
	// the result is polled from the session. WithoutCancel keeps the actor
	// value while detaching from the request lifetime.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if s.commitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.commitTimeout)
			defer cancel()
		}
		if _, err := s.service.CommitImport(ctx, req.ConfirmPartial); err != nil {
			logging.FromContext(ctx).Error("commit failed", "error", err.Error())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "committing"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "no_stream")
		return
	}

	ch := s.service.SubscribeProgress()
	defer s.service.UnsubscribeProgress(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case p, open := <-ch:
			if !open {
				return
			}
			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
			if p.Stage == core.StageDone {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelImport(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ResetSession(); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ----------------------------------------------------------------------------
// Import history
// ----------------------------------------------------------------------------

func (s *Server) handleListImportFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.ListImportFiles(r.Context(),
		r.URL.Query().Get("businessUnit"), r.URL.Query().Get("folder"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDeleteImportFile(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteImportFile(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// Records
// ----------------------------------------------------------------------------

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.Records(r.Context(),
		chi.URLParam(r, "category"), r.URL.Query().Get("businessUnit"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessUnitID string         `json:"businessUnitId"`
		Values         map[string]any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_json")
		return
	}
	rec, err := s.service.CreateRecord(r.Context(), chi.URLParam(r, "category"), req.BusinessUnitID, req.Values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecordField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_json")
		return
	}
	err := s.service.UpdateRecordField(r.Context(),
		chi.URLParam(r, "category"), chi.URLParam(r, "id"), req.Field, req.Value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteRecord(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ----------------------------------------------------------------------------
// Periods
// ----------------------------------------------------------------------------

type periodRequest struct {
	BusinessUnitID string `json:"businessUnitId"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	Justification  string `json:"justification"`
}

func (s *Server) handleClosePeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_json")
		return
	}
	err := s.service.ClosePeriod(r.Context(), req.BusinessUnitID, req.Year, time.Month(req.Month), req.Justification)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleReopenPeriod(w http.ResponseWriter, r *http.Request) {
	var req periodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_json")
		return
	}
	err := s.service.ReopenTemporarily(r.Context(), req.BusinessUnitID, req.Year, time.Month(req.Month))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "temporarily-open"})
}

func (s *Server) handlePeriodStatus(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", "bad_request")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month", "bad_request")
		return
	}

	period, found, err := s.service.PeriodStatus(r.Context(), unit, year, time.Month(month))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writable, err := s.service.IsWritable(r.Context(), unit, year, time.Month(month))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := map[string]any{"writable": writable, "closed": found && !period.TemporarilyReopened}
	if found {
		resp["period"] = period
	}
	writeJSON(w, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// Journal
// ----------------------------------------------------------------------------

func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	filter, err := journalFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	entries, err := s.service.ListEntries(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleJournalStats(w http.ResponseWriter, r *http.Request) {
	filter, err := journalFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	stats, err := s.service.GetStats(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleJournalEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.service.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func journalFilterFromQuery(r *http.Request) (core.JournalFilter, error) {
	q := r.URL.Query()
	filter := core.JournalFilter{
		BusinessUnitID: q.Get("businessUnit"),
		Actor:          q.Get("actor"),
		Table:          q.Get("table"),
		Search:         q.Get("search"),
	}
	for _, a := range strings.Split(q.Get("actions"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			filter.Actions = append(filter.Actions, core.Action(a))
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid from timestamp: %v", err)
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid to timestamp: %v", err)
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}
