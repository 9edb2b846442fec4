package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/safety"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/auth"
	"github.com/superheroes-club/luz-engine/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Luz Progression & Rewards Engine",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":   "/health",
			"children": "/api/v1/children",
			"missions": "/api/v1/missions/current",
			"rewards":  "/api/v1/rewards",
		},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, &APIError{Code: codeNotFound, Message: "no route for " + r.Method + " " + r.URL.Path})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeEnvelope(w, http.StatusServiceUnavailable, JSONResponse{Success: false, Data: status})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeError(w, http.StatusServiceUnavailable, &APIError{Code: "not_ready", Message: status.Message})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// CHILDREN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type registerChildRequest struct {
	DisplayName string `json:"displayName"`
	AgeYears    int    `json:"ageYears"`

	// GuardianID is honoured for administrators only.
	GuardianID string `json:"parentId,omitempty"`
}

// handleRegisterChild handles POST /api/v1/children
func (s *Server) handleRegisterChild(w http.ResponseWriter, r *http.Request) {
	var req registerChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := principal(r)
	res, err := s.deps.RegisterChild.Handle(r.Context(), command.RegisterChildCommand{
		Actor:         p.Actor(),
		DisplayName:   req.DisplayName,
		AgeYears:      req.AgeYears,
		GuardianEmail: p.Email,
		GuardianName:  p.Name,
		Language:      p.Language,
		GuardianID:    req.GuardianID,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dto, err := s.deps.Children.Get(r.Context(), p.Actor(), res.Child.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// handleListChildren handles GET /api/v1/children
func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.deps.Children.List(r.Context(), actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if children == nil {
		children = []query.ChildDTO{}
	}
	writeList(w, children, len(children))
}

// handleGetChild handles GET /api/v1/children/{id}
func (s *Server) handleGetChild(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Children.Get(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type updateChildRequest struct {
	Name        *string `json:"name"`
	Age         *int    `json:"age"`
	AvatarURL   *string `json:"avatarUrl"`
	CountryCode *string `json:"countryCode"`
}

type childProfileResponse struct {
	Child           *query.ChildDTO `json:"child"`
	ChangedFields   []string        `json:"changedFields"`
	SafetyTightened []string        `json:"safetyTightened"`
}

// handleUpdateChild handles PATCH /api/v1/children/{id}
func (s *Server) handleUpdateChild(w http.ResponseWriter, r *http.Request) {
	var req updateChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a := actor(r)
	res, err := s.deps.UpdateChildProfile.Handle(r.Context(), command.UpdateChildProfileCommand{
		Actor:       a,
		ChildID:     r.PathValue("id"),
		Name:        req.Name,
		Age:         req.Age,
		AvatarURL:   req.AvatarURL,
		CountryCode: req.CountryCode,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dto, err := s.deps.Children.Get(r.Context(), a, res.Child.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, childProfileResponse{
		Child:           dto,
		ChangedFields:   res.Changes.Fields,
		SafetyTightened: res.Changes.Safety,
	})
}

// handleDeleteChild handles DELETE /api/v1/children/{id}
func (s *Server) handleDeleteChild(w http.ResponseWriter, r *http.Request) {
	err := s.deps.DeleteChild.Handle(r.Context(), command.DeleteChildCommand{
		Actor:   actor(r),
		ChildID: r.PathValue("id"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": r.PathValue("id")})
}

type completeInitiationRequest struct {
	SecretCode   string `json:"secretCode"`
	AlterEgoName string `json:"alterEgoName"`
	ArchangelID  string `json:"archangelId,omitempty"`
}

type initiationResponse struct {
	Child       *query.ChildDTO `json:"child"`
	BonusPoints int             `json:"bonusPoints"`
	Badge       interface{}     `json:"badge,omitempty"`
}

// handleCompleteInitiation handles POST /api/v1/onboarding/complete
func (s *Server) handleCompleteInitiation(w http.ResponseWriter, r *http.Request) {
	var req completeInitiationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.CompleteInitiation.Handle(r.Context(), command.CompleteInitiationCommand{
		SecretCode:   req.SecretCode,
		AlterEgoName: req.AlterEgoName,
		ArchangelID:  req.ArchangelID,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := initiationResponse{BonusPoints: res.BonusPoints}
	dto := query.ChildDTO{Child: res.Child}
	resp.Child = &dto
	if res.BadgeAwarded != nil {
		resp.Badge = res.BadgeAwarded
	}
	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// SAFETY SETTINGS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSafety handles GET /api/v1/safety-settings/{childId}
func (s *Server) handleGetSafety(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Safety.Handle(r.Context(), actor(r), r.PathValue("childId"), language(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type safetyResponse struct {
	query.SafetySettingsDTO
	ChangedFields []string `json:"changedFields"`
}

// handleUpdateSafety handles PUT /api/v1/safety-settings/{childId}
func (s *Server) handleUpdateSafety(w http.ResponseWriter, r *http.Request) {
	var update safety.Update
	if !decodeJSON(w, r, &update) {
		return
	}
	res, err := s.deps.UpdateSafety.Handle(r.Context(), command.UpdateSafetySettingsCommand{
		Actor:   actor(r),
		ChildID: r.PathValue("childId"),
		Update:  update,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSafety(w, r, res)
}

// handleResetSafety handles POST /api/v1/safety-settings/{childId}/reset
func (s *Server) handleResetSafety(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ResetSafety.Handle(r.Context(), command.ResetSafetySettingsCommand{
		Actor:   actor(r),
		ChildID: r.PathValue("childId"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeSafety(w, r, res)
}

func (s *Server) writeSafety(w http.ResponseWriter, r *http.Request, res *command.SafetySettingsResult) {
	changed := res.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, safetyResponse{
		SafetySettingsDTO: query.DescribeSafety(res.Child, language(r)),
		ChangedFields:     changed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCurrentMission handles GET /api/v1/missions/current
func (s *Server) handleCurrentMission(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Missions.Current(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// handleMissionByPeriod handles GET /api/v1/missions/{year}/{month}
func (s *Server) handleMissionByPeriod(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(r.PathValue("year"))
	month, errM := strconv.Atoi(r.PathValue("month"))
	if errY != nil || errM != nil {
		badRequest(w, "year and month must be numbers")
		return
	}
	dto, err := s.deps.Missions.ByPeriod(r.Context(), mission.Period{Year: year, Month: month})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type publishMissionRequest struct {
	Year               int                 `json:"year"`
	Month              int                 `json:"month"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	ArchangelID        string              `json:"archangelId"`
	PointsPerChallenge int                 `json:"pointsPerChallenge"`
	Challenges         []mission.Challenge `json:"challenges"`
}

// handlePublishMission handles POST /api/v1/missions (admin)
func (s *Server) handlePublishMission(w http.ResponseWriter, r *http.Request) {
	var req publishMissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := s.deps.PublishMission.Handle(r.Context(), command.PublishMissionCommand{
		Actor: actor(r),
		Mission: mission.Mission{
			Period:             mission.Period{Year: req.Year, Month: req.Month},
			Title:              req.Title,
			Description:        req.Description,
			ArchangelID:        req.ArchangelID,
			PointsPerChallenge: req.PointsPerChallenge,
		},
		Challenges: req.Challenges,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dto, err := s.deps.Missions.ByPeriod(r.Context(), m.Period)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// handleStartMission handles POST /api/v1/children/{id}/missions/{missionId}/start
func (s *Server) handleStartMission(w http.ResponseWriter, r *http.Request) {
	progress, err := s.deps.StartMission.Handle(r.Context(), command.StartMissionCommand{
		Actor:     actor(r),
		ChildID:   r.PathValue("id"),
		MissionID: r.PathValue("missionId"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleProgress handles GET /api/v1/children/{id}/progress
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Progress.Handle(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads a single JSON object into dst. On failure it writes the
// error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			writeError(w, http.StatusRequestEntityTooLarge, &APIError{Code: "payload_too_large", Message: "request body too large"})
		case errors.Is(err, io.EOF):
			badRequest(w, "request body is required")
		default:
			badRequest(w, "invalid JSON body: "+err.Error())
		}
		return false
	}
	if dec.More() {
		badRequest(w, "request body must contain a single JSON object")
		return false
	}
	return true
}

// principal returns the verified caller. Private routes always have one;
// the zero principal fails every access check.
func principal(r *http.Request) auth.Principal {
	p, _ := handlers.PrincipalFrom(r.Context())
	return p
}

func actor(r *http.Request) access.Actor {
	return principal(r).Actor()
}

// language picks ?lang=, then the token's language, then Accept-Language.
func language(r *http.Request) shared.Language {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return shared.ParseLanguage(lang)
	}
	if p, ok := handlers.PrincipalFrom(r.Context()); ok && p.Language != "" {
		return shared.ParseLanguage(p.Language)
	}
	accept := r.Header.Get("Accept-Language")
	first, _, _ := strings.Cut(accept, ",")
	first, _, _ = strings.Cut(first, ";")
	return shared.ParseLanguage(strings.TrimSpace(first))
}
