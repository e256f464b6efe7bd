package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"forestlog/internal/auth"
	"forestlog/internal/models"
	"forestlog/internal/progression"
	"forestlog/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

type createLogRequest struct {
	TaskText    string `json:"task_text"`
	EffortLevel string `json:"effort_level"`
}

type createLogResponse struct {
	Log             models.Log              `json:"log"`
	LevelUp         bool                    `json:"level_up"`
	NewTotalPoints  int64                   `json:"new_total_points"`
	NewLevel        int                     `json:"new_level"`
	NewStreak       int                     `json:"new_streak"`
	DailyStreak     progression.StreakState `json:"daily_streak"`
	WeeklyStreak    progression.StreakState `json:"weekly_streak"`
	MilestoneEarned *string                 `json:"milestone_earned"`
	Warnings        []string                `json:"warnings"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.Repo.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "Database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := a.Service.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Timezone: req.Timezone,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := a.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        session.User,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	profile, err := a.Service.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var upd models.ProfileUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	profile, err := a.Service.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	effort, err := progression.ParseEffort(req.EffortLevel)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := a.Service.RecordCompletion(r.Context(), service.Completion{
		UserID:   userID,
		TaskText: req.TaskText,
		Effort:   effort,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := createLogResponse{
		Log:            res.Log,
		LevelUp:        res.LevelUp,
		NewTotalPoints: res.TotalPoints,
		NewLevel:       res.LevelAfter.Number,
		NewStreak:      res.Daily.CurrentCount,
		DailyStreak:    res.Daily,
		WeeklyStreak:   res.Weekly,
		Warnings:       res.Warnings,
	}
	if res.Milestone != nil {
		resp.MilestoneEarned = &res.Milestone.BadgeName
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	skip, ok := queryInt(w, r, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", service.DefaultPageSize)
	if !ok {
		return
	}
	logs, err := a.Service.ListLogs(r.Context(), userID, skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (a *API) handleTodayLogs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	logs, err := a.Service.TodayLogs(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (a *API) handleWeek(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	week, err := a.Service.Week(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

func (a *API) handleStreaks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	view, err := a.Service.Streaks(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleMilestones(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	milestones, err := a.Service.Milestones(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(milestones))
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.Service.Leaderboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(board))
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	file, err := a.Service.Export(r.Context(), userID, chi.URLParam(r, "format"), service.ExportRange{
		From: q.Get("from"),
		To:   q.Get("to"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return "", false
	}
	return userID, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(progression.KindValidation), name+" must be an integer")
		return 0, false
	}
	return v, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid payload")
		return false
	}
	return true
}

type createShareRequest struct {
	ShareType     string `json:"share_type"`
	ExpiresInDays int    `json:"expires_in_days"`
}

func (a *API) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createShareRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	share, err := a.Service.CreateShare(r.Context(), userID, service.ShareInput{
		Type:          req.ShareType,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

func (a *API) handleListShares(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	shares, err := a.Service.ListShares(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(shares))
}

func (a *API) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.Service.RevokeShare(r.Context(), userID, chi.URLParam(r, "token")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePublicForest(w http.ResponseWriter, r *http.Request) {
	forest, err := a.Service.PublicForest(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forest)
}

func (a *API) handleLikeShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.Service.LikeShare(r.Context(), userID, chi.URLParam(r, "token")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Liked successfully"})
}
