package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rate_change_notifier/internal/app"
	"rate_change_notifier/internal/app/progress"
	"rate_change_notifier/internal/domain/clio"
	"rate_change_notifier/internal/domain/ratechange"
	"rate_change_notifier/internal/infra/database"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Server exposes the rate-change engine over HTTP: the year view, the three
// operator actions (each with a synchronous and a streaming variant) and
// escalation.
type Server struct {
	actions *app.RateChangeService
	views   *app.ViewService
	log     *logrus.Entry
}

func NewServer(actions *app.RateChangeService, views *app.ViewService, log *logrus.Entry) *Server {
	return &Server{actions: actions, views: views, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /rate-changes/{year}", s.handleYearView)
	mux.HandleFunc("POST /rate-changes/{year}/mark-sent", s.handleMarkSent(false))
	mux.HandleFunc("POST /rate-changes/{year}/mark-sent-stream", s.handleMarkSent(true))
	mux.HandleFunc("POST /rate-changes/{year}/mark-na", s.handleMarkNA(false))
	mux.HandleFunc("POST /rate-changes/{year}/mark-na-stream", s.handleMarkNA(true))
	mux.HandleFunc("POST /rate-changes/{year}/undo", s.handleUndo(false))
	mux.HandleFunc("POST /rate-changes/{year}/undo-stream", s.handleUndo(true))
	mux.HandleFunc("POST /rate-changes/{year}/escalate", s.handleEscalate)
	return mux
}

// actionRequest is the shared body for mark-sent and mark-na.
type actionRequest struct {
	ClientID        string   `json:"client_id"`
	ClientFirstName *string  `json:"client_first_name"`
	ClientLastName  *string  `json:"client_last_name"`
	ClientEmail     *string  `json:"client_email"`
	MatterIDs       []string `json:"matter_ids"`
	DisplayNumbers  []string `json:"display_numbers"`
	SentBy          string   `json:"sent_by"`
	MarkedBy        string   `json:"marked_by"`
	SentDate        string   `json:"sent_date"`
	NAReason        string   `json:"na_reason"`
	NANotes         *string  `json:"na_notes"`
}

type escalateRequest struct {
	ClientID    string `json:"client_id"`
	EscalatedBy string `json:"escalated_by"`
}

func (s *Server) handleYearView(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	statusFilter := ratechange.Status(r.URL.Query().Get("status"))
	var solicitors []string
	if raw := r.URL.Query().Get("solicitors"); raw != "" {
		for _, sol := range strings.Split(raw, ",") {
			if sol = strings.TrimSpace(sol); sol != "" {
				solicitors = append(solicitors, sol)
			}
		}
	}

	view, err := s.views.GetYearView(r.Context(), year, statusFilter, solicitors)
	if err != nil {
		s.log.Errorf("Failed to assemble year view for %d: %v", year, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to assemble year view")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMarkSent(streaming bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, ok := parseYear(w, r)
		if !ok {
			return
		}
		req, ok := s.decodeAction(w, r)
		if !ok {
			return
		}
		if req.ClientID == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "client_id is required")
			return
		}
		sentDate, perr := parseOptionalDate(req.SentDate)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "sent_date must be formatted YYYY-MM-DD")
			return
		}

		params := app.MarkSentParams{
			Year:           year,
			ClientID:       strings.TrimSpace(req.ClientID),
			FirstName:      req.ClientFirstName,
			LastName:       req.ClientLastName,
			Email:          req.ClientEmail,
			MatterIDs:      req.MatterIDs,
			DisplayNumbers: req.DisplayNumbers,
			SentBy:         req.SentBy,
			SentDate:       sentDate,
		}

		s.runAction(w, r, streaming, func(emitter progress.Emitter) (*app.ActionResult, error) {
			return s.actions.MarkSent(r.Context(), emitter, params)
		})
	}
}

func (s *Server) handleMarkNA(streaming bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, ok := parseYear(w, r)
		if !ok {
			return
		}
		req, ok := s.decodeAction(w, r)
		if !ok {
			return
		}
		if req.ClientID == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "client_id is required")
			return
		}
		if strings.TrimSpace(req.NAReason) == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "na_reason is required")
			return
		}

		params := app.MarkNotApplicableParams{
			Year:           year,
			ClientID:       strings.TrimSpace(req.ClientID),
			FirstName:      req.ClientFirstName,
			LastName:       req.ClientLastName,
			Email:          req.ClientEmail,
			MatterIDs:      req.MatterIDs,
			DisplayNumbers: req.DisplayNumbers,
			Reason:         req.NAReason,
			Notes:          req.NANotes,
			MarkedBy:       req.MarkedBy,
		}

		s.runAction(w, r, streaming, func(emitter progress.Emitter) (*app.ActionResult, error) {
			return s.actions.MarkNotApplicable(r.Context(), emitter, params)
		})
	}
}

func (s *Server) handleUndo(streaming bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, ok := parseYear(w, r)
		if !ok {
			return
		}
		var req struct {
			ClientID string `json:"client_id"`
		}
		if !s.decodeBody(w, r, &req) {
			return
		}
		if req.ClientID == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "client_id is required")
			return
		}
		clientID := strings.TrimSpace(req.ClientID)

		s.runAction(w, r, streaming, func(emitter progress.Emitter) (*app.ActionResult, error) {
			return s.actions.Undo(r.Context(), emitter, year, clientID)
		})
	}
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYear(w, r)
	if !ok {
		return
	}
	var req escalateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "client_id is required")
		return
	}

	record, err := s.actions.Escalate(r.Context(), year, strings.TrimSpace(req.ClientID), req.EscalatedBy)
	if err != nil {
		s.log.Errorf("Escalation failed for client %s: %v", req.ClientID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to escalate client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": recordPayload(record)})
}

// runAction executes one operator action either synchronously (JSON body
// with the record result and the CRM summary) or as an event stream.
// Validation has already happened; from here the record transition is
// committed before any CRM traffic, and CRM failures surface in the
// response without affecting the HTTP status.
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, streaming bool, action func(progress.Emitter) (*app.ActionResult, error)) {
	if !streaming {
		result, err := action(progress.Discard)
		if err != nil {
			s.writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"record":       recordPayload(result.Record),
			"clio_updates": result.ClioUpdates,
		})
		return
	}

	emitter, err := newSSEEmitter(w, s.log)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if _, err := action(emitter); err != nil {
		// The stream is already open; report the failure in-band and
		// terminate the run so the consumer is never left hanging.
		emitter.Emit(progress.NewError(err.Error()))
		emitter.Emit(progress.NewComplete(clio.BatchResult{}))
	}
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrClientIDRequired), errors.Is(err, app.ErrNAReasonRequired):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, database.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no notification record for this client and year")
	default:
		s.log.Errorf("Action failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "action failed")
	}
}

func (s *Server) decodeAction(w http.ResponseWriter, r *http.Request) (*actionRequest, bool) {
	req := &actionRequest{}
	if !s.decodeBody(w, r, req) {
		return nil, false
	}
	return req, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return false
	}
	return true
}

func parseYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1900 || year > 9999 {
		writeError(w, http.StatusBadRequest, "validation_error", "year must be a four-digit integer")
		return 0, false
	}
	return year, true
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// recordPayload maps a record's sql.Null* fields onto plain JSON types.
func recordPayload(rec *ratechange.Record) map[string]any {
	if rec == nil {
		return nil
	}
	payload := map[string]any{
		"client_id":        rec.ClientID,
		"rate_change_year": rec.RateChangeYear,
		"effective_date":   rec.EffectiveDate.Format("2006-01-02"),
		"matter_ids":       rec.MatterIDs,
		"display_numbers":  rec.DisplayNumbers,
		"status":           rec.Status,
		"updated_at":       rec.UpdatedAt,
	}
	setNullable := func(key string, valid bool, v any) {
		if valid {
			payload[key] = v
		} else {
			payload[key] = nil
		}
	}
	setNullable("client_first_name", rec.ClientFirstName.Valid, rec.ClientFirstName.String)
	setNullable("client_last_name", rec.ClientLastName.Valid, rec.ClientLastName.String)
	setNullable("client_email", rec.ClientEmail.Valid, rec.ClientEmail.String)
	setNullable("sent_date", rec.SentDate.Valid, rec.SentDate.Time.Format("2006-01-02"))
	setNullable("sent_by", rec.SentBy.Valid, rec.SentBy.String)
	setNullable("na_reason", rec.NAReason.Valid, rec.NAReason.String)
	setNullable("na_notes", rec.NANotes.Valid, rec.NANotes.String)
	setNullable("escalated_at", rec.EscalatedAt.Valid, rec.EscalatedAt.Time)
	setNullable("escalated_by", rec.EscalatedBy.Valid, rec.EscalatedBy.String)
	return payload
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}
