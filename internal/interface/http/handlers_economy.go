package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/rank"
	"github.com/superheroes-club/luz-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPLOAD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// multipartMemory is how much of a form is buffered in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// handleUpload handles POST /api/v1/uploads (multipart: file, kind)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, err)
			return
		}
		badRequest(w, "multipart form with a file field is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.deps.UploadProof.Handle(r.Context(), command.UploadProofCommand{
		Actor:    actor(r),
		Kind:     r.FormValue("kind"),
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type submitRequest struct {
	ChildID     string   `json:"childId"`
	ChallengeID string   `json:"challengeId"`
	ProofKind   string   `json:"proofKind"`
	ProofRefs   []string `json:"proofRefs"`
}

type submitResponse struct {
	Submission *challenge.Submission `json:"submission"`
	Challenge  *mission.Challenge    `json:"challenge"`
}

// handleSubmit handles POST /api/v1/submissions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.SubmitChallenge.Handle(r.Context(), command.SubmitChallengeCommand{
		Actor:       actor(r),
		ChildID:     req.ChildID,
		ChallengeID: req.ChallengeID,
		ProofKind:   req.ProofKind,
		ProofRefs:   req.ProofRefs,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Submission: res.Submission, Challenge: res.Challenge})
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

type reviewResponse struct {
	Submission    *challenge.Submission `json:"submission"`
	PointsAwarded int                   `json:"pointsAwarded"`
	NewBalance    *int                  `json:"newBalance,omitempty"`
	Progress      *mission.Progress     `json:"missionProgress,omitempty"`
	Rank          rank.Rank             `json:"rank,omitempty"`
	PreviousRank  rank.Rank             `json:"previousRank,omitempty"`
	RankChanged   bool                  `json:"rankChanged"`
}

// handleReview handles PUT /api/v1/submissions/{id}/review
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.ReviewSubmission.Handle(r.Context(), command.ReviewSubmissionCommand{
		Actor:        actor(r),
		SubmissionID: r.PathValue("id"),
		Decision:     req.Decision,
		Notes:        req.Notes,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := reviewResponse{
		Submission:    res.Submission,
		PointsAwarded: res.PointsAwarded,
		RankChanged:   res.RankChanged,
	}
	if res.Submission.Status == challenge.StatusApproved {
		balance := res.NewBalance
		resp.NewBalance = &balance
		resp.Progress = res.Progress
		resp.Rank = res.Rank
		resp.PreviousRank = res.PreviousRank
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListSubmissions handles GET /api/v1/children/{id}/submissions?status=
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Submissions.Handle(r.Context(), query.ListSubmissionsQuery{
		Actor:   actor(r),
		ChildID: r.PathValue("id"),
		Status:  r.URL.Query().Get("status"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeList(w, dto, dto.Total)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListRewards handles GET /api/v1/rewards?kind=&rarity=&redeemable=
func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := reward.ParseCatalogFilter(q.Get("kind"), q.Get("rarity"), q.Get("redeemable"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	dto, err := s.deps.Rewards.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeList(w, dto, dto.Total)
}

// handleGetReward handles GET /api/v1/rewards/{id}
func (s *Server) handleGetReward(w http.ResponseWriter, r *http.Request) {
	rw, err := s.deps.Rewards.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

// handleEarnedRewards handles GET /api/v1/children/{id}/rewards
func (s *Server) handleEarnedRewards(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Rewards.Earned(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeList(w, dto, dto.Total)
}

// handleAvailableRewards handles GET /api/v1/children/{id}/rewards/available
func (s *Server) handleAvailableRewards(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.Rewards.Available(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type redeemRequest struct {
	ChildID      string               `json:"childId"`
	RewardID     string               `json:"rewardId"`
	ShippingInfo *reward.ShippingInfo `json:"shippingInfo,omitempty"`
}

type redeemResponse struct {
	Redemption      *reward.Redemption `json:"redemption"`
	Reward          *reward.Reward     `json:"reward"`
	PointsSpent     int                `json:"pointsSpent"`
	PointsRemaining int                `json:"pointsRemaining"`
}

// handleRedeem handles POST /api/v1/redemptions. An Idempotency-Key header
// makes retries of the same request safe.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.RedeemReward.Handle(r.Context(), command.RedeemRewardCommand{
		Actor:          actor(r),
		ChildID:        req.ChildID,
		RewardID:       req.RewardID,
		Shipping:       req.ShippingInfo,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redeemResponse{
		Redemption:      res.Redemption,
		Reward:          res.Reward,
		PointsSpent:     res.PointsSpent,
		PointsRemaining: res.PointsRemaining,
	})
}

type awardRequest struct {
	ChildID  string            `json:"childId"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleAward handles POST /api/v1/rewards/{id}/award (admin)
func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.deps.AwardReward.Handle(r.Context(), command.AwardRewardCommand{
		Actor:    actor(r),
		ChildID:  req.ChildID,
		RewardID: r.PathValue("id"),
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redeemResponse{
		Redemption: res.Redemption,
		Reward:     res.Reward,
	})
}
