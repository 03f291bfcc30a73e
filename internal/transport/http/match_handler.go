package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// MatchHandler serves the tournament hand-off and admin endpoints.
type MatchHandler struct {
	engine   *app.Engine
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewMatchHandler(engine *app.Engine, log logrus.FieldLogger) *MatchHandler {
	return &MatchHandler{
		engine:   engine,
		validate: validator.New(),
		log:      log.WithField("component", "rest"),
	}
}

type rulesetRequest struct {
	TimePerQuestionMs int64    `json:"timePerQuestionMs" validate:"required,gt=0,lte=600000"`
	QuestionCount     int      `json:"questionCount" validate:"gte=0,lte=100"`
	Difficulty        int      `json:"difficulty" validate:"gte=0,lte=10"`
	Categories        []string `json:"categories" validate:"omitempty,dive,required"`
}

type questionRequest struct {
	ID            string   `json:"id" validate:"required"`
	Text          string   `json:"text" validate:"required"`
	Alternatives  []string `json:"alternatives" validate:"required,min=2,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Category      string   `json:"category"`
	Difficulty    int      `json:"difficulty" validate:"gte=0"`
}

type matchRequest struct {
	MatchID   string            `json:"matchId" validate:"omitempty,max=128"`
	Players   []string          `json:"players" validate:"required,min=1,max=2,unique,dive,required,max=128"`
	Ruleset   rulesetRequest    `json:"ruleset"`
	Questions []questionRequest `json:"questions" validate:"omitempty,dive"`
	AutoStart bool              `json:"autoStart"`
}

type createMatchesRequest struct {
	Matches []matchRequest `json:"matches" validate:"required,min=1,max=100,dive"`
}

type matchCreated struct {
	MatchID string       `json:"matchId"`
	Phase   domain.Phase `json:"phase,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type validationError struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func (r matchRequest) toDomain() app.MatchRequest {
	req := app.MatchRequest{
		MatchID: r.MatchID,
		Players: r.Players,
		Ruleset: domain.Ruleset{
			TimePerQuestion: time.Duration(r.Ruleset.TimePerQuestionMs) * time.Millisecond,
			QuestionCount:   r.Ruleset.QuestionCount,
			Difficulty:      r.Ruleset.Difficulty,
			Categories:      r.Ruleset.Categories,
		},
		AutoStart: r.AutoStart,
	}
	for _, q := range r.Questions {
		req.Questions = append(req.Questions, domain.Question{
			ID:            q.ID,
			Text:          q.Text,
			Alternatives:  q.Alternatives,
			CorrectAnswer: q.CorrectAnswer,
			Category:      q.Category,
			Difficulty:    q.Difficulty,
		})
	}
	return req
}

// CreateMatches initializes every match of a hand-off list. Each entry succeeds
// or fails on its own; the response is 207 when any entry failed.
func (h *MatchHandler) CreateMatches(w http.ResponseWriter, r *http.Request) {
	var body createMatchesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeValidationError(w, err)
		return
	}

	status := http.StatusCreated
	results := make([]matchCreated, 0, len(body.Matches))
	for _, req := range body.Matches {
		m, err := h.engine.CreateMatch(r.Context(), req.toDomain())
		if err != nil {
			status = http.StatusMultiStatus
			h.log.WithFields(logrus.Fields{"match": req.MatchID, "error": err}).Warn("match hand-off rejected")
			results = append(results, matchCreated{MatchID: req.MatchID, Error: err.Error()})
			continue
		}
		results = append(results, matchCreated{MatchID: m.ID(), Phase: m.Snapshot().Phase})
	}
	writeJSON(w, status, map[string]any{"matches": results})
}

func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(chi.URLParam(r, "matchId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *MatchHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchId")
	if err := h.engine.Start(matchID); err != nil {
		writeError(w, err)
		return
	}
	h.GetMatch(w, r)
}

// AbortMatch ends a match with the reason from the query, or "aborted by admin".
func (h *MatchHandler) AbortMatch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchId")
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "aborted by admin"
	}
	if err := h.engine.Abort(matchID, reason); err != nil {
		writeError(w, err)
		return
	}
	h.GetMatch(w, r)
}

func (h *MatchHandler) ClearSuspension(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerId")
	if err := h.engine.ClearSuspension(r.Context(), playerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMatchExists), errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRuleset), errors.Is(err, domain.ErrPlayerNotInMatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSuspensionActive):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrQuestionsUnavailable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorPayload{Message: err.Error()})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
		return
	}
	out := validationError{Message: "validation failed", Errors: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Errors[fe.Namespace()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
