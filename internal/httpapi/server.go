package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/auth"
	"github.com/ocastro/damas-arena/internal/lobby"
	"github.com/ocastro/damas-arena/internal/match"
	"github.com/ocastro/damas-arena/internal/msgcat"
	"github.com/ocastro/damas-arena/internal/obslog"
	"github.com/ocastro/damas-arena/internal/session"
	"github.com/ocastro/damas-arena/internal/wallet"
	"github.com/ocastro/damas-arena/internal/ws"
)

// Server is the REST surface next to the socket: lobby management, match
// history, and profile reads. Live play happens over /ws.
type Server struct {
	r        *chi.Mux
	offers   *lobby.Manager
	matches  *match.Manager
	escrow   *wallet.Engine
	coord    *session.Coordinator
	verifier *auth.Verifier
	cat      *msgcat.Catalog
}

func New(offers *lobby.Manager, matches *match.Manager, escrow *wallet.Engine, coord *session.Coordinator, verifier *auth.Verifier, cat *msgcat.Catalog, hub *ws.Hub) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		offers:   offers,
		matches:  matches,
		escrow:   escrow,
		coord:    coord,
		verifier: verifier,
		cat:      cat,
	}

	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	// the socket endpoint must stay outside the timeout middleware: the
	// connection outlives any request deadline
	s.r.Get("/ws", hub.HandleWS)

	s.r.Route("/api", func(api chi.Router) {
		api.Use(chimw.Timeout(15 * time.Second))
		api.Use(jsonContentType)
		api.Use(s.requireAuth)
		api.Route("/lobby", func(lr chi.Router) {
			lr.Post("/create", s.handleCreateOffer)
			lr.Get("/public", s.handleListPublic)
			lr.Post("/join/private", s.handleJoinPrivate)
			lr.Get("/history", s.handleHistory)
			lr.Get("/active-game", s.handleActiveGame)
			lr.Post("/game/{id}/forfeit", s.handleForfeit)
		})
		api.Get("/users/me", s.handleMe)
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.r }

type ctxKey string

const identityKey ctxKey = "identity"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		id, err := s.verifier.Verify(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, s.cat.Text("error.auth_failed", "Autenticação falhou."))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func currentIdentity(r *http.Request) *auth.Identity {
	id, _ := r.Context().Value(identityKey).(*auth.Identity)
	return id
}

type createOfferReq struct {
	Stake       float64 `json:"stake"`
	Demo        bool    `json:"demo"`
	Description string  `json:"description"`
	TimeLimit   int     `json:"timeLimit"`
	Private     bool    `json:"private"`
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	var req createOfferReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	o, err := s.offers.Create(r.Context(), id.UserID, id.Username, lobby.CreateParams{
		Stake:       req.Stake,
		Demo:        req.Demo,
		Description: req.Description,
		TimeLimit:   req.TimeLimit,
		Private:     req.Private,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	offers, err := s.offers.ListPublic(r.Context(), id.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

type joinPrivateReq struct {
	Code string `json:"code"`
}

// handleJoinPrivate resolves a private code to its offer; joining the game
// itself happens over the socket so both players get the room events.
func (s *Server) handleJoinPrivate(w http.ResponseWriter, r *http.Request) {
	var req joinPrivateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	o, err := s.offers.FindByCode(r.Context(), req.Code)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	hist, err := s.matches.Store().HistoryByUser(r.Context(), id.UserID, 50)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": hist})
}

func (s *Server) handleActiveGame(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	active, err := s.matches.Store().ActiveByUser(r.Context(), id.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if active == nil {
		writeJSON(w, http.StatusOK, map[string]any{"game": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"game": active})
}

func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	matchID := chi.URLParam(r, "id")
	m, err := s.coord.ForfeitByUser(r.Context(), matchID, id.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	acc, err := s.escrow.Account(r.Context(), id.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// writeDomainError maps domain sentinels to HTTP statuses with localized
// client copy.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	key := "error.internal"
	switch {
	case errors.Is(err, lobby.ErrInvalidStake):
		status, key = http.StatusBadRequest, "error.invalid_stake"
	case errors.Is(err, lobby.ErrDescriptionTooLong):
		status, key = http.StatusBadRequest, "error.description_too_long"
	case errors.Is(err, lobby.ErrOfferExists):
		status, key = http.StatusConflict, "error.offer_exists"
	case errors.Is(err, lobby.ErrOfferNotFound), errors.Is(err, wallet.ErrOfferNotFound):
		status, key = http.StatusNotFound, "error.offer_not_found"
	case errors.Is(err, lobby.ErrInsufficientFunds), errors.Is(err, wallet.ErrInsufficientFunds):
		status, key = http.StatusPaymentRequired, "error.insufficient_funds"
	case errors.Is(err, wallet.ErrSelfJoin):
		status, key = http.StatusBadRequest, "error.self_join"
	case errors.Is(err, wallet.ErrAccountNotFound):
		status, key = http.StatusNotFound, "error.auth_failed"
	case errors.Is(err, match.ErrNotFound):
		status, key = http.StatusNotFound, "error.match_not_found"
	case errors.Is(err, match.ErrNotActive):
		status, key = http.StatusConflict, "error.match_not_active"
	case errors.Is(err, match.ErrNotParticipant):
		status, key = http.StatusForbidden, "error.not_participant"
	case errors.Is(err, match.ErrConflict), errors.Is(err, wallet.ErrConflict):
		status, key = http.StatusConflict, "error.conflict"
	}
	if status == http.StatusInternalServerError {
		obslog.L().Error("http_internal_error", zap.Error(err))
	}
	writeError(w, status, s.cat.Text(key, "Erro interno. Tente novamente."))
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
