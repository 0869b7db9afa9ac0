package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dropin/internal/adapters/http/middleware"
	"dropin/internal/application/board"
	"dropin/internal/application/listutil"
	"dropin/internal/application/orchestrators"
	"dropin/internal/application/projections"
)

// maxBatch bounds POST /api/services/batch.
const maxBatch = 50

const maxImportBytes = 5 << 20

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps orchestrator errors onto status codes. Anything
// unrecognised is a 500 with the detail kept in the log.
func writeFailure(w http.ResponseWriter, err error) {
	var verr *orchestrators.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, orchestrators.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrators.ErrAlreadyCheckedIn),
		errors.Is(err, orchestrators.ErrDailyLimitReached),
		errors.Is(err, orchestrators.ErrNotToday),
		errors.Is(err, orchestrators.ErrEmailAlreadyExists),
		errors.Is(err, board.ErrReservationCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrators.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, orchestrators.ErrAccountLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, orchestrators.ErrCurrentPasswordWrong),
		errors.Is(err, orchestrators.ErrNewPasswordSame):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, err)
	}
}

func badJSON(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

// --- auth ---

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	res, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{Email: in.Email, Password: in.Password},
		orchestrators.LoginDeps{AccountStore: s.deps.Stores.Accounts, Now: s.deps.Now})
	if err != nil {
		writeFailure(w, err)
		return
	}
	token, err := s.deps.Sessions.Create(res.AccountID, res.Email, res.Role)
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.secure)
	writeJSON(w, http.StatusOK, map[string]string{
		"account_id":   res.AccountID,
		"email":        res.Email,
		"display_name": res.DisplayName,
		"role":         res.Role,
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		s.deps.Sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	err := orchestrators.ExecuteChangePassword(r.Context(), orchestrators.ChangePasswordInput{
		AccountID:       sess.AccountID,
		CurrentPassword: in.CurrentPassword,
		NewPassword:     in.NewPassword,
	}, orchestrators.ChangePasswordDeps{
		AccountStore: s.deps.Stores.Accounts,
		Now:          s.deps.Now,
		OnChanged: func(accountID string) {
			n := s.deps.Sessions.DeleteAccount(accountID, middleware.SessionToken(r))
			slog.Info("auth_event", "event", "sessions_revoked", "account_id", accountID, "count", n)
		},
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	id, err := orchestrators.ExecuteCreateAccount(r.Context(), orchestrators.CreateAccountInput{
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Password:    in.Password,
		Role:        in.Role,
	}, orchestrators.CreateAccountDeps{AccountStore: s.deps.Stores.Accounts})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// --- board ---

func (s *server) handleBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Board.View())
}

func (s *server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GuestID string `json:"guest_id"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	e, err := s.deps.Board.CheckIn(r.Context(), in.GuestID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) handleLogService(w http.ResponseWriter, r *http.Request) {
	var in board.LogInput
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	e, err := s.deps.Board.LogService(r.Context(), in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) handleLogBatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Services []board.LogInput `json:"services"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	if len(in.Services) == 0 || len(in.Services) > maxBatch {
		writeError(w, http.StatusBadRequest, "services must hold 1 to "+strconv.Itoa(maxBatch)+" entries")
		return
	}
	entries, err := s.deps.Board.LogBatch(r.Context(), in.Services)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

func (s *server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	e, err := s.deps.Board.SetStatus(r.Context(), r.PathValue("id"), in.Status)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Board.Undo(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func reservationKey(guestID, serviceType string) string { return guestID + "|" + serviceType }

// handleReserve holds the request open until the slot is recorded. A
// DELETE /api/reservations for the same guest and type cancels it meanwhile.
func (s *server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var in struct {
		GuestID string `json:"guest_id"`
		Type    string `json:"type"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	res, err := s.deps.Board.Reserve(in.GuestID, in.Type)
	if err != nil {
		writeFailure(w, err)
		return
	}
	key := reservationKey(in.GuestID, in.Type)
	s.mu.Lock()
	if _, busy := s.reservations[key]; busy {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a reservation for this guest and service is already in progress")
		return
	}
	s.reservations[key] = res
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.reservations, key)
		s.mu.Unlock()
	}()

	e, err := res.Execute(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	res, ok := s.reservations[reservationKey(q.Get("guest_id"), q.Get("type"))]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no reservation in progress")
		return
	}
	res.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"entry_id": res.EntryID(), "state": string(res.State())})
}

// --- guests ---

func (s *server) handleListGuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := listutil.ParsePage(q)
	res, err := projections.QueryGetGuestList(r.Context(), projections.GetGuestListQuery{
		Search: q.Get("q"),
		Status: q.Get("status"),
		Limit:  page.PerPage,
		Offset: page.Offset(),
	}, projections.GetGuestListDeps{GuestStore: s.deps.Stores.Guests})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		projections.GetGuestListResult
		Page listutil.Info `json:"page"`
	}{res, listutil.NewInfo(page, res.Total)})
}

func (s *server) handleRegisterGuest(w http.ResponseWriter, r *http.Request) {
	var in orchestrators.RegisterGuestInput
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	g, err := orchestrators.ExecuteRegisterGuest(r.Context(), in, orchestrators.RegisterGuestDeps{
		GuestStore: s.deps.Stores.Guests,
		Now:        s.deps.Now,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	s.deps.Board.RememberGuest(g)
	writeJSON(w, http.StatusCreated, g)
}

// handleImportGuests takes a CSV body. ?dry_run=true validates without saving.
func (s *server) handleImportGuests(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSessionFromContext(r.Context())
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	res, err := s.deps.Board.ImportGuests(r.Context(), orchestrators.ImportGuestsInput{
		Reader:     io.LimitReader(r.Body, maxImportBytes),
		ImportedBy: sess.Email,
		DryRun:     dryRun,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- donations and reports ---

func (s *server) handleRecordDonation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Donor      string  `json:"donor"`
		DonorEmail string  `json:"donor_email"`
		Kind       string  `json:"kind"`
		Quantity   float64 `json:"quantity"`
		Unit       string  `json:"unit"`
		ValueCents int64   `json:"value_cents"`
	}
	if err := strictDecode(r, &in); err != nil {
		badJSON(w, err)
		return
	}
	res, err := orchestrators.ExecuteRecordDonation(r.Context(), orchestrators.RecordDonationInput{
		Donor:      in.Donor,
		DonorEmail: in.DonorEmail,
		Kind:       in.Kind,
		Quantity:   in.Quantity,
		Unit:       in.Unit,
		ValueCents: in.ValueCents,
	}, orchestrators.RecordDonationDeps{
		DonationStore: s.deps.Stores.Donations,
		OutboxStore:   s.deps.Stores.Outbox,
		Sender:        s.deps.Sender,
		CenterName:    s.deps.CenterName,
		Now:           s.deps.Now,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	res, err := projections.QueryGetDailyReport(r.Context(), projections.GetDailyReportQuery{Date: date},
		projections.GetDailyReportDeps{
			ServiceStore:  s.deps.Stores.Services,
			DonationStore: s.deps.Stores.Donations,
			Now:           s.deps.Now,
		})
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- health ---

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)}
	code := http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			slog.Warn("healthz_db_unreachable", "error", err.Error())
			status["status"] = "degraded"
			status["db"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	if s.deps.KV != nil {
		switch {
		case s.deps.KV.Disabled():
			status["kv"] = "disabled"
		case s.deps.KV.UsingFallback():
			status["kv"] = "fallback"
		default:
			status["kv"] = "primary"
		}
	}
	writeJSON(w, code, status)
}
