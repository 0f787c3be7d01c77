package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"seminar_standings/internal/api/middleware"
	"seminar_standings/internal/app/service"
	"seminar_standings/internal/common"
	"seminar_standings/internal/domain/model"
	"seminar_standings/internal/rules"
)

type StandingsHandler struct {
	standings *service.StandingsService
	closer    service.RoundCloser
}

func NewStandingsHandler(standings *service.StandingsService, closer service.RoundCloser) *StandingsHandler {
	return &StandingsHandler{standings: standings, closer: closer}
}

// RegisterRoutes mounts under /api/v1/rounds/{roundID}.
func (h *StandingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tables", h.listTables)
	r.Get("/tables/default", h.defaultTable)
	r.Get("/tables/{tableID}", h.getTable)
	r.Get("/chips", h.chips)
	r.Get("/dates", h.dates)
	r.Get("/texts", h.texts)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.Authenticator)
		authed.Get("/problems/{number}/can-submit", h.canSubmit)
		authed.Post("/enroll", h.enroll)
	})

	r.Group(func(org chi.Router) {
		org.Use(middleware.RequireOrganizer(h.standings))
		org.Post("/close", h.closeRound)
	})
}

func (h *StandingsHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.standings.ListRounds(r.Context(), chi.URLParam(r, "contestID"), middleware.ViewerFromContext(r.Context()))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rounds)
}

type TablesResponse struct {
	Tables  []rules.TableDef  `json:"tables"`
	Names   map[string]string `json:"names"`
	Default string            `json:"default"`
}

func (h *StandingsHandler) listTables(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundID")
	tables, names, err := h.standings.AvailableTables(r.Context(), roundID)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	def, err := h.standings.DefaultTable(r.Context(), roundID, middleware.ViewerFromContext(r.Context()))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, TablesResponse{Tables: tables, Names: names, Default: def})
}

func (h *StandingsHandler) defaultTable(w http.ResponseWriter, r *http.Request) {
	def, err := h.standings.DefaultTable(r.Context(), chi.URLParam(r, "roundID"), middleware.ViewerFromContext(r.Context()))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"table_id": def})
}

func (h *StandingsHandler) getTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.standings.GetResultTable(r.Context(), chi.URLParam(r, "roundID"), chi.URLParam(r, "tableID"), middleware.ViewerFromContext(r.Context()))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, table)
}

func (h *StandingsHandler) chips(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	chips, err := h.standings.Chips(r.Context(), chi.URLParam(r, "roundID"), userID)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, chips)
}

func (h *StandingsHandler) dates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.standings.ImportantDates(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, dates)
}

func (h *StandingsHandler) texts(w http.ResponseWriter, r *http.Request) {
	texts, err := h.standings.VisibleTexts(r.Context(), chi.URLParam(r, "roundID"))
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string][]rules.TextType{"visible": texts})
}

func (h *StandingsHandler) canSubmit(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid problem number")
		return
	}
	kind := model.SubmissionKind(r.URL.Query().Get("kind"))
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	ok, err := h.standings.CanSubmit(r.Context(), chi.URLParam(r, "roundID"), number, kind, userID)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]bool{"can_submit": ok})
}

type EnrollRequest struct {
	Grade    model.Grade `json:"grade"`
	SchoolID *string     `json:"school_id"`
}

func (h *StandingsHandler) enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	en, err := h.standings.EnsureEnrollment(r.Context(), chi.URLParam(r, "roundID"), userID, req.Grade, req.SchoolID)
	if err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, en)
}

func (h *StandingsHandler) closeRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundID")
	if err := h.closer.EnqueueClose(r.Context(), roundID); err != nil {
		common.RespondWithAppError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, map[string]string{"round_id": roundID, "status": "closing"})
}
