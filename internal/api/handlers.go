package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tipscore/internal/domain"
	"tipscore/internal/observability"
	"tipscore/internal/score"
	"tipscore/internal/storage"
)

// Pagination bounds for ranking queries.
const (
	defaultRankingLimit = 50
	maxRankingLimit     = 500
)

type healthResponse struct {
	Status  string `json:"status"`
	Indexer string `json:"indexer,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.indexer != nil {
		resp.Indexer = s.indexer.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

type profileResponse struct {
	Address     string                `json:"address"`
	Economic    domain.EconomicScore  `json:"economic"`
	Resonance   domain.ResonanceScore `json:"resonance"`
	Composite   domain.CompositeScore `json:"composite"`
	LastUpdated *time.Time            `json:"last_updated,omitempty"`
}

// handleProfile returns the full score profile for an address. Unknown
// addresses get the empty profile, not an error.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	addr := domain.NormalizeAddress(chi.URLParam(r, "userId"))
	if !domain.ValidAddress(addr) {
		writeError(w, http.StatusBadRequest, errKindValidation, "invalid address")
		return
	}

	user, err := s.scores.GetUserScore(r.Context(), addr)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.internalError(w, "get user score", err)
			return
		}
		user = domain.NewUserScore(addr)
	}

	params, err := s.params.Get(r.Context())
	if err != nil {
		s.internalError(w, "get params", err)
		return
	}

	resp := profileResponse{
		Address:   user.Address,
		Economic:  user.Economic,
		Resonance: user.Resonance,
		Composite: score.Composite(user.Economic, user.Resonance, *params),
	}
	if !user.LastUpdated.IsZero() {
		t := user.LastUpdated
		resp.LastUpdated = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

type rankResponse struct {
	Address    string      `json:"address"`
	Axis       domain.Axis `json:"axis"`
	Score      float64     `json:"score"`
	Rank       int         `json:"rank"`
	Percentile float64     `json:"percentile"`
	TotalUsers int         `json:"total_users"`
}

// handleProfileRank returns the rank and percentile for one address on
// one axis (composite by default).
func (s *Server) handleProfileRank(w http.ResponseWriter, r *http.Request) {
	addr := domain.NormalizeAddress(chi.URLParam(r, "userId"))
	if !domain.ValidAddress(addr) {
		writeError(w, http.StatusBadRequest, errKindValidation, "invalid address")
		return
	}

	axis := domain.AxisComposite
	if q := r.URL.Query().Get("axis"); q != "" {
		var err error
		axis, err = domain.ParseAxis(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, errKindValidation, err.Error())
			return
		}
	}

	entries, err := s.scores.GenerateRankings(r.Context(), axis)
	if err != nil {
		s.internalError(w, "generate rankings", err)
		return
	}
	observability.RecordRankingGenerated(string(axis))

	resp := rankResponse{Address: addr, Axis: axis, TotalUsers: len(entries)}
	distribution := make([]float64, len(entries))
	found := false
	for i, e := range entries {
		distribution[i] = e.Score
		if e.Address == addr {
			resp.Score = e.Score
			resp.Rank = e.Rank
			found = true
		}
	}
	if found {
		resp.Percentile = score.Percentile(resp.Score, distribution)
	}
	writeJSON(w, http.StatusOK, resp)
}

type rankingsResponse struct {
	Axis    domain.Axis           `json:"axis"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	Entries []domain.RankingEntry `json:"entries"`
}

// handleRankings returns a paginated ranking page for one axis.
func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	axis, err := domain.ParseAxis(chi.URLParam(r, "axis"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, err.Error())
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, err.Error())
		return
	}

	entries, err := s.scores.GenerateRankings(r.Context(), axis)
	if err != nil {
		s.internalError(w, "generate rankings", err)
		return
	}
	observability.RecordRankingGenerated(string(axis))

	writeJSON(w, http.StatusOK, rankingsResponse{
		Axis:    axis,
		Total:   len(entries),
		Limit:   limit,
		Offset:  offset,
		Entries: page(entries, limit, offset),
	})
}

type allRankingsResponse struct {
	Economic  []domain.RankingEntry `json:"economic"`
	Resonance []domain.RankingEntry `json:"resonance"`
	Composite []domain.RankingEntry `json:"composite"`
}

// handleRankingsAll returns the top of all three axes in one response.
func (s *Server) handleRankingsAll(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, err.Error())
		return
	}

	var resp allRankingsResponse
	for _, axis := range []domain.Axis{domain.AxisEconomic, domain.AxisResonance, domain.AxisComposite} {
		entries, err := s.scores.GenerateRankings(r.Context(), axis)
		if err != nil {
			s.internalError(w, "generate rankings", err)
			return
		}
		observability.RecordRankingGenerated(string(axis))

		top := page(entries, limit, 0)
		switch axis {
		case domain.AxisEconomic:
			resp.Economic = top
		case domain.AxisResonance:
			resp.Resonance = top
		case domain.AxisComposite:
			resp.Composite = top
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshotLatest generates a fresh snapshot and archives it when a
// snapshot history is configured. If generation fails, the last archived
// snapshot serves as a stale fallback.
func (s *Server) handleSnapshotLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.scores.GenerateSnapshot(r.Context())
	if err != nil {
		if s.snapshots != nil {
			if archived, archiveErr := s.snapshots.Latest(r.Context()); archiveErr == nil {
				s.logger.Printf("[api] generate snapshot failed, serving archived: %v", err)
				writeJSON(w, http.StatusOK, archived)
				return
			}
		}
		s.internalError(w, "generate snapshot", err)
		return
	}
	observability.RecordSnapshotGenerated()

	if s.snapshots != nil {
		if err := s.snapshots.Archive(r.Context(), snap); err != nil {
			// History is best-effort, the fresh snapshot still serves.
			s.logger.Printf("[api] snapshot archive failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

type paramsResponse struct {
	WeightEconomic  float64      `json:"weight_economic"`
	WeightResonance float64      `json:"weight_resonance"`
	Curve           domain.Curve `json:"curve"`
	LastUpdated     time.Time    `json:"last_updated"`
	Version         int64        `json:"version"`
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.params.Get(r.Context())
	if err != nil {
		s.internalError(w, "get params", err)
		return
	}
	writeJSON(w, http.StatusOK, paramsResponse{
		WeightEconomic:  params.WeightEconomic,
		WeightResonance: params.WeightResonance,
		Curve:           params.Curve,
		LastUpdated:     params.LastUpdated,
		Version:         params.LastUpdated.UnixMilli(),
	})
}

type updateParamsRequest struct {
	WeightEconomic  float64 `json:"weight_economic"`
	WeightResonance float64 `json:"weight_resonance"`
	Curve           string  `json:"curve"`
	Version         int64   `json:"version"` // 0 skips the optimistic check
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req updateParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, "malformed body")
		return
	}

	curve, err := domain.ParseCurve(req.Curve)
	if err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, err.Error())
		return
	}

	params := &domain.ScoreParams{
		WeightEconomic:  req.WeightEconomic,
		WeightResonance: req.WeightResonance,
		Curve:           curve,
	}
	if err := s.params.Update(r.Context(), params, req.Version); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, errKindValidation, "weights must be positive and curve known")
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusConflict, errKindConflict, "params changed since read, re-fetch and retry")
		default:
			s.internalError(w, "update params", err)
		}
		return
	}

	s.handleGetParams(w, r)
}

type upsertAxisRequest struct {
	Token         string `json:"token"`
	IsEconomic    bool   `json:"is_economic"`
	Decimals      *int32 `json:"decimals,omitempty"`       // default 18
	ReferenceRate string `json:"reference_rate,omitempty"` // default "1"
}

// handleUpsertTokenAxis reclassifies a token. Only future events are
// affected, existing scores are not recomputed.
func (s *Server) handleUpsertTokenAxis(w http.ResponseWriter, r *http.Request) {
	var req upsertAxisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errKindValidation, "malformed body")
		return
	}

	axis := domain.DefaultTokenAxis(req.Token)
	axis.IsEconomic = req.IsEconomic
	if req.Decimals != nil {
		axis.Decimals = *req.Decimals
	}
	if req.ReferenceRate != "" {
		rate, err := decimal.NewFromString(req.ReferenceRate)
		if err != nil {
			writeError(w, http.StatusBadRequest, errKindValidation, "invalid reference_rate")
			return
		}
		axis.ReferenceRate = rate
	}

	if err := s.axes.Upsert(r.Context(), &axis); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, errKindValidation, "invalid token axis")
			return
		}
		s.internalError(w, "upsert token axis", err)
		return
	}

	stored, err := s.axes.Get(r.Context(), axis.Token)
	if err != nil {
		s.internalError(w, "get token axis", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Printf("[api] %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, errKindInternal, "internal error")
}

// pagination parses limit/offset query params with defaults and caps.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultRankingLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, err = strconv.Atoi(q)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > maxRankingLimit {
			limit = maxRankingLimit
		}
	}
	if q := r.URL.Query().Get("offset"); q != "" {
		offset, err = strconv.Atoi(q)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func page(entries []domain.RankingEntry, limit, offset int) []domain.RankingEntry {
	if offset >= len(entries) {
		return []domain.RankingEntry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}
