package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/store"
	"github.com/sanzolab/colorsync/internal/syncer"
)

const (
	defaultSimilarLimit     = 10
	maxSimilarLimit         = 50
	defaultSimilarThreshold = 100
	maxRecommendations      = 5
)

var hexParamPattern = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// validRoomTypes are the dataset tags accepted by the analyze endpoint.
var validRoomTypes = map[string]struct{}{
	"living_room": {},
	"bedroom":     {},
	"kitchen":     {},
	"office":      {},
	"bathroom":    {},
	"dining_room": {},
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// parsePagination reads page/limit query parameters, applying defaults for
// absent values and rejecting out-of-range ones.
func parsePagination(r *http.Request) (int, int, bool) {
	page, limit := 1, store.DefaultPageLimit
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > store.MaxPageLimit {
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}

func (s *Server) listColors(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	colors, total, err := s.store.ListColors(r.Context(), store.ColorQuery{
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		s.logger.Error("list colors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list colors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"colors":     colors,
		"pagination": pagination{Page: page, Limit: limit, Total: total},
	})
}

func (s *Server) listCombinations(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := parsePagination(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	combos, total, err := s.store.ListCombinations(r.Context(), store.CombinationQuery{
		RoomType: r.URL.Query().Get("roomType"),
		AgeGroup: r.URL.Query().Get("ageGroup"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		s.logger.Error("list combinations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list combinations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"combinations": combos,
		"pagination":   pagination{Page: page, Limit: limit, Total: total},
	})
}

func (s *Server) getColor(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "hex")
	if !hexParamPattern.MatchString(raw) {
		writeError(w, http.StatusBadRequest, "Invalid hex color format")
		return
	}
	hex := "#" + strings.ToUpper(strings.TrimPrefix(raw, "#"))
	color, found, err := s.store.GetColorByHex(r.Context(), hex)
	if err != nil {
		s.logger.Error("get color failed", zap.String("hex", hex), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load color")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Color not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "color": color})
}

type similarRequest struct {
	Color     json.RawMessage `json:"color"`
	Limit     *int            `json:"limit"`
	Threshold *float64        `json:"threshold"`
}

type similarMatch struct {
	Color      palette.CanonicalColor `json:"color"`
	Distance   float64                `json:"distance"`
	Similarity float64                `json:"similarity"`
}

func (s *Server) similarColors(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Color) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid color format")
		return
	}
	input, err := palette.DecodeColorInput(req.Color)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid color format")
		return
	}
	target := palette.StandardizeColor(input)
	if target == nil {
		writeError(w, http.StatusBadRequest, "Invalid color format")
		return
	}

	limit := defaultSimilarLimit
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > maxSimilarLimit {
			writeError(w, http.StatusBadRequest, "Limit must be between 1 and 50")
			return
		}
		limit = *req.Limit
	}
	threshold := float64(defaultSimilarThreshold)
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 100 {
			writeError(w, http.StatusBadRequest, "Threshold must be between 0 and 100")
			return
		}
		threshold = *req.Threshold
	}

	all, err := s.store.AllColors(r.Context())
	if err != nil {
		s.logger.Error("load colors failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load colors")
		return
	}

	matches := make([]similarMatch, 0, limit)
	for _, candidate := range all {
		distance, ok := palette.Distance(*target, candidate)
		if !ok {
			continue
		}
		if 100*distance/palette.MaxRGBDistance > threshold {
			continue
		}
		matches = append(matches, similarMatch{
			Color:      candidate,
			Distance:   distance,
			Similarity: palette.Similarity(distance),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"color":   target,
		"matches": matches,
	})
}

type analyzeRequest struct {
	Colors   []json.RawMessage `json:"colors"`
	RoomType string            `json:"roomType"`
}

type recommendation struct {
	Combination palette.Combination `json:"combination"`
	Score       float64             `json:"score"`
}

// analyzeRoom scores the room-tagged combinations against the submitted
// palette and returns the closest ones.
func (s *Server) analyzeRoom(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RoomType == "" {
		writeError(w, http.StatusBadRequest, "roomType is required")
		return
	}
	if _, ok := validRoomTypes[req.RoomType]; !ok {
		writeError(w, http.StatusBadRequest, "Invalid roomType")
		return
	}
	if len(req.Colors) == 0 {
		writeError(w, http.StatusBadRequest, "At least one color must be provided")
		return
	}
	inputs := make([]palette.CanonicalColor, 0, len(req.Colors))
	for _, raw := range req.Colors {
		in, err := palette.DecodeColorInput(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid color format")
			return
		}
		canonical := palette.StandardizeColor(in)
		if canonical == nil {
			writeError(w, http.StatusBadRequest, "Invalid color format")
			return
		}
		inputs = append(inputs, *canonical)
	}

	combos, _, err := s.store.ListCombinations(r.Context(), store.CombinationQuery{
		RoomType: req.RoomType,
		Limit:    store.MaxPageLimit,
	})
	if err != nil {
		s.logger.Error("load combinations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load combinations")
		return
	}

	recommendations := make([]recommendation, 0, len(combos))
	for _, combo := range combos {
		score := scoreCombination(inputs, combo)
		recommendations = append(recommendations, recommendation{Combination: combo, Score: score})
	}
	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})
	if len(recommendations) > maxRecommendations {
		recommendations = recommendations[:maxRecommendations]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"roomType":        req.RoomType,
		"colors":          inputs,
		"recommendations": recommendations,
	})
}

// scoreCombination averages, over the input colors, the best similarity to
// any color in the combination.
func scoreCombination(inputs []palette.CanonicalColor, combo palette.Combination) float64 {
	if len(inputs) == 0 {
		return 0
	}
	var sum float64
	for _, in := range inputs {
		best := 0.0
		for _, c := range combo.Colors {
			if distance, ok := palette.Distance(in, c); ok {
				if similarity := palette.Similarity(distance); similarity > best {
					best = similarity
				}
			}
		}
		sum += best
	}
	return sum / float64(len(inputs))
}

type syncRequest struct {
	Source string `json:"source"`
	Force  bool   `json:"force"`
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	report, err := s.syncer.Sync(r.Context(), req.Source, req.Force)
	if errors.Is(err, syncer.ErrUnknownSource) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) cacheStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.cache.Status(r.Context())
	if err != nil {
		s.logger.Error("cache status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read cache status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cache": status})
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
