package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/auth"
	"github.com/ocastro/damas-arena/internal/lobby"
	"github.com/ocastro/damas-arena/internal/match"
	"github.com/ocastro/damas-arena/internal/msgcat"
	"github.com/ocastro/damas-arena/internal/obslog"
	"github.com/ocastro/damas-arena/internal/wallet"
)

// Socket event names, shared with the browser client.
const (
	EvAuthenticate = "authenticate_socket"
	EvJoinLobby    = "join_lobby_game"
	EvEnterRoom    = "enter_game_room"
	EvMakeMove     = "make_move"
	EvForfeit      = "forfeit"

	EvAuthFailed         = "auth_failed"
	EvGameFound          = "game_found"
	EvGameState          = "game_state"
	EvGameOver           = "game_over"
	EvPlayerDisconnected = "player_disconnected"
	EvPlayerReconnected  = "player_reconnected"
	EvLobbyRemove        = "lobby_update_remove"
	EvError              = "error"
)

// Broadcaster delivers events to sockets. The ws hub implements it.
type Broadcaster interface {
	Send(connID, event string, data any)
	SendAll(event string, data any)
}

// noopBroadcaster stands in until the hub is attached.
type noopBroadcaster struct{}

func (noopBroadcaster) Send(string, string, any) {}
func (noopBroadcaster) SendAll(string, any)      {}

type graceTimer struct {
	timer  Timer
	userID string
}

// Coordinator routes socket events into the lobby, match, and wallet
// layers and owns the disconnect-grace timers. One timer exists per match
// at most; reconnection cancels it and the timer callback re-checks the
// registry before forfeiting, so a socket that comes back during the race
// never loses the match to a stale timer.
type Coordinator struct {
	matches  *match.Manager
	offers   *lobby.Manager
	escrow   *wallet.Engine
	verifier *auth.Verifier
	cat      *msgcat.Catalog
	reg      *Registry
	bcast    Broadcaster
	clock    Clock
	grace    time.Duration

	mu     sync.Mutex
	timers map[string]*graceTimer // matchID -> pending forfeiture
}

type Options struct {
	Matches  *match.Manager
	Offers   *lobby.Manager
	Escrow   *wallet.Engine
	Verifier *auth.Verifier
	Catalog  *msgcat.Catalog
	Registry *Registry
	Clock    Clock
	Grace    time.Duration
}

func NewCoordinator(opts Options) *Coordinator {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = 60 * time.Second
	}
	return &Coordinator{
		matches:  opts.Matches,
		offers:   opts.Offers,
		escrow:   opts.Escrow,
		verifier: opts.Verifier,
		cat:      opts.Catalog,
		reg:      reg,
		bcast:    noopBroadcaster{},
		clock:    clock,
		grace:    grace,
		timers:   make(map[string]*graceTimer),
	}
}

// AttachBroadcaster wires the socket hub after both sides exist.
func (c *Coordinator) AttachBroadcaster(b Broadcaster) { c.bcast = b }

type authPayload struct {
	Token string `json:"token"`
}

type joinPayload struct {
	OfferID string `json:"offerId"`
	Code    string `json:"code"`
}

type roomPayload struct {
	GameID string `json:"gameId"`
}

type movePayload struct {
	GameID string `json:"gameId"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

type playerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type statePayload struct {
	GameID    string     `json:"gameId"`
	Board     string     `json:"board"`
	Turn      string     `json:"turn"`
	Status    string     `json:"status"`
	White     playerInfo `json:"white"`
	Black     playerInfo `json:"black"`
	Pot       float64    `json:"pot"`
	Demo      bool       `json:"demo"`
	TimeLimit int        `json:"timeLimit,omitempty"`
	Plies     int        `json:"plies"`
}

type gameOverPayload struct {
	GameID string     `json:"gameId"`
	Winner playerInfo `json:"winner"`
	Loser  playerInfo `json:"loser"`
	Reason string     `json:"reason"`
	Board  string     `json:"board"`
	Pot    float64    `json:"pot"`
	Prize  float64    `json:"prize"`
}

type disconnectedPayload struct {
	Username string `json:"username"`
	Timeout  int    `json:"timeout"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Connect is called by the hub when a socket opens. Nothing happens until
// the client authenticates.
func (c *Coordinator) Connect(connID string) {}

// Disconnect starts the forfeiture countdown when an authenticated player
// with a live match drops.
func (c *Coordinator) Disconnect(connID string) {
	id, ok := c.reg.Unbind(connID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	active, err := c.matches.Store().ActiveByUser(ctx, id.UserID)
	if err != nil || active == nil {
		return
	}
	c.startGrace(active, id)
}

func (c *Coordinator) startGrace(active *match.Match, id identity) {
	c.mu.Lock()
	if _, pending := c.timers[active.ID]; pending {
		c.mu.Unlock()
		return
	}
	matchID, userID := active.ID, id.UserID
	t := c.clock.AfterFunc(c.grace, func() { c.graceExpired(matchID, userID) })
	c.timers[matchID] = &graceTimer{timer: t, userID: userID}
	c.mu.Unlock()

	obslog.L().Info("session_grace_start",
		zap.String("match_id", active.ID),
		zap.String("user_id", id.UserID),
		zap.Duration("grace", c.grace),
	)
	c.toRoom(active.ID, EvPlayerDisconnected, disconnectedPayload{
		Username: active.NameOf(id.UserID),
		Timeout:  int(c.grace / time.Second),
	})
}

// graceExpired forfeits the match for the absent player. Settlement's
// status guard keeps this harmless if the match ended some other way in
// the meantime.
func (c *Coordinator) graceExpired(matchID, userID string) {
	c.mu.Lock()
	gt, ok := c.timers[matchID]
	if !ok || gt.userID != userID {
		c.mu.Unlock()
		return
	}
	delete(c.timers, matchID)
	c.mu.Unlock()

	if _, back := c.reg.ConnOf(userID); back {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := c.matches.Forfeit(ctx, matchID, userID)
	if err != nil {
		if !errors.Is(err, match.ErrNotActive) {
			obslog.L().Error("session_grace_forfeit_error",
				zap.String("match_id", matchID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return
	}
	obslog.L().Info("session_grace_forfeit",
		zap.String("match_id", matchID),
		zap.String("loser", userID),
	)
	c.announceGameOver(done)
}

// Handle dispatches one inbound socket event.
func (c *Coordinator) Handle(ctx context.Context, connID, event string, data json.RawMessage) {
	switch event {
	case EvAuthenticate:
		c.authenticate(ctx, connID, data)
	case EvJoinLobby:
		c.joinLobby(ctx, connID, data)
	case EvEnterRoom:
		c.enterRoom(ctx, connID, data)
	case EvMakeMove:
		c.makeMove(ctx, connID, data)
	case EvForfeit:
		c.forfeit(ctx, connID, data)
	default:
		c.sendError(connID, nil)
	}
}

func (c *Coordinator) authenticate(ctx context.Context, connID string, data json.RawMessage) {
	// the client sends either a bare token string or {"token": "..."}
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		var p authPayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
			return
		}
		token = p.Token
	}
	id, err := c.verifier.Verify(token)
	if err != nil {
		c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
		return
	}
	if _, err := c.escrow.EnsureAccount(ctx, id.UserID, id.Username); err != nil {
		obslog.L().Error("session_ensure_account_error", zap.String("user_id", id.UserID), zap.Error(err))
	}
	if displaced := c.reg.Bind(connID, id.UserID, id.Username); displaced != "" {
		obslog.L().Info("session_displaced",
			zap.String("user_id", id.UserID),
			zap.String("old_conn", displaced),
		)
	}

	// a returning player rejoins the live match and stops the countdown
	active, err := c.matches.Store().ActiveByUser(ctx, id.UserID)
	if err != nil || active == nil {
		return
	}
	c.reg.JoinRoom(connID, active.ID)
	if c.cancelGrace(active.ID, id.UserID) {
		obslog.L().Info("session_reconnect",
			zap.String("match_id", active.ID),
			zap.String("user_id", id.UserID),
		)
		c.toRoom(active.ID, EvPlayerReconnected, playerInfo{ID: id.UserID, Username: id.Username})
	}
	c.bcast.Send(connID, EvGameState, stateOf(active))
}

func (c *Coordinator) cancelGrace(matchID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	gt, ok := c.timers[matchID]
	if !ok || gt.userID != userID {
		return false
	}
	gt.timer.Stop()
	delete(c.timers, matchID)
	return true
}

func (c *Coordinator) joinLobby(ctx context.Context, connID string, data json.RawMessage) {
	id, ok := c.reg.Identity(connID)
	if !ok {
		c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
		return
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(connID, err)
		return
	}

	offerID := strings.TrimSpace(p.OfferID)
	if offerID == "" && strings.TrimSpace(p.Code) != "" {
		o, err := c.offers.FindByCode(ctx, p.Code)
		if err != nil {
			c.sendError(connID, err)
			return
		}
		offerID = o.ID
	}
	if offerID == "" {
		c.sendError(connID, lobby.ErrOfferNotFound)
		return
	}

	m, err := c.escrow.CreateMatch(ctx, offerID, id.UserID)
	if err != nil {
		c.sendError(connID, err)
		return
	}
	c.bcast.SendAll(EvLobbyRemove, map[string]string{"offerId": offerID})

	state := stateOf(m)
	for _, uid := range []string{m.WhiteID, m.BlackID} {
		conn, ok := c.reg.ConnOf(uid)
		if !ok {
			continue
		}
		c.reg.JoinRoom(conn, m.ID)
		c.bcast.Send(conn, EvGameFound, state)
	}
}

func (c *Coordinator) enterRoom(ctx context.Context, connID string, data json.RawMessage) {
	id, ok := c.reg.Identity(connID)
	if !ok {
		c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
		return
	}
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(connID, err)
		return
	}
	m, err := c.matches.Get(ctx, p.GameID)
	if err != nil {
		c.sendError(connID, err)
		return
	}
	if !m.HasPlayer(id.UserID) {
		c.sendError(connID, match.ErrNotParticipant)
		return
	}
	c.reg.JoinRoom(connID, m.ID)
	c.bcast.Send(connID, EvGameState, stateOf(m))
}

func (c *Coordinator) makeMove(ctx context.Context, connID string, data json.RawMessage) {
	id, ok := c.reg.Identity(connID)
	if !ok {
		c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
		return
	}
	var p movePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(connID, err)
		return
	}
	m, err := c.matches.ApplyMove(ctx, p.GameID, id.UserID, p.From, p.To)
	if err != nil {
		c.sendError(connID, err)
		return
	}
	c.toRoom(m.ID, EvGameState, stateOf(m))
	if m.Status.Terminal() {
		c.cancelGrace(m.ID, m.Winner)
		c.cancelGrace(m.ID, m.Loser)
		c.announceGameOver(m)
	}
}

func (c *Coordinator) forfeit(ctx context.Context, connID string, data json.RawMessage) {
	id, ok := c.reg.Identity(connID)
	if !ok {
		c.bcast.Send(connID, EvAuthFailed, errorPayload{Message: c.text("error.auth_failed")})
		return
	}
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(connID, err)
		return
	}
	m, err := c.matches.Forfeit(ctx, p.GameID, id.UserID)
	if err != nil {
		c.sendError(connID, err)
		return
	}
	c.cancelGrace(m.ID, m.Winner)
	c.cancelGrace(m.ID, m.Loser)
	c.announceGameOver(m)
}

// ForfeitByUser backs the HTTP forfeit route; it shares the socket path's
// settlement and room announcement.
func (c *Coordinator) ForfeitByUser(ctx context.Context, matchID, userID string) (*match.Match, error) {
	m, err := c.matches.Forfeit(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	c.cancelGrace(m.ID, m.Winner)
	c.cancelGrace(m.ID, m.Loser)
	c.announceGameOver(m)
	return m, nil
}

func (c *Coordinator) announceGameOver(m *match.Match) {
	prize := 0.0
	if m.Pot > 0 {
		prize = m.Pot * (1 - c.escrow.CommissionRate())
	}
	c.toRoom(m.ID, EvGameOver, gameOverPayload{
		GameID: m.ID,
		Winner: playerInfo{ID: m.Winner, Username: m.NameOf(m.Winner)},
		Loser:  playerInfo{ID: m.Loser, Username: m.NameOf(m.Loser)},
		Reason: string(m.Status),
		Board:  m.Board,
		Pot:    m.Pot,
		Prize:  prize,
	})
	c.reg.CloseRoom(m.ID)
}

func (c *Coordinator) toRoom(matchID, event string, data any) {
	for _, conn := range c.reg.RoomConns(matchID) {
		c.bcast.Send(conn, event, data)
	}
}

func stateOf(m *match.Match) statePayload {
	return statePayload{
		GameID:    m.ID,
		Board:     m.Board,
		Turn:      string(m.Turn),
		Status:    string(m.Status),
		White:     playerInfo{ID: m.WhiteID, Username: m.WhiteName},
		Black:     playerInfo{ID: m.BlackID, Username: m.BlackName},
		Pot:       m.Pot,
		Demo:      m.Demo,
		TimeLimit: m.TimeLimit,
		Plies:     len(m.Moves),
	}
}

func (c *Coordinator) sendError(connID string, err error) {
	c.bcast.Send(connID, EvError, errorPayload{Message: c.userMessage(err)})
}

func (c *Coordinator) text(key string) string {
	return c.cat.Text(key, "Erro interno. Tente novamente.")
}

// userMessage maps domain errors onto the client-facing Portuguese copy.
func (c *Coordinator) userMessage(err error) string {
	key := "error.internal"
	switch {
	case errors.Is(err, match.ErrIllegalMove):
		key = "error.invalid_move"
	case errors.Is(err, match.ErrNotYourTurn):
		key = "error.not_your_turn"
	case errors.Is(err, match.ErrNotParticipant):
		key = "error.not_participant"
	case errors.Is(err, match.ErrNotFound):
		key = "error.match_not_found"
	case errors.Is(err, match.ErrNotActive):
		key = "error.match_not_active"
	case errors.Is(err, match.ErrConflict), errors.Is(err, wallet.ErrConflict):
		key = "error.conflict"
	case errors.Is(err, wallet.ErrOfferNotFound), errors.Is(err, lobby.ErrOfferNotFound):
		key = "error.offer_not_found"
	case errors.Is(err, wallet.ErrSelfJoin):
		key = "error.self_join"
	case errors.Is(err, wallet.ErrInsufficientFunds), errors.Is(err, lobby.ErrInsufficientFunds):
		key = "error.insufficient_funds"
	case errors.Is(err, lobby.ErrOfferExists):
		key = "error.offer_exists"
	case errors.Is(err, lobby.ErrInvalidStake):
		key = "error.invalid_stake"
	case errors.Is(err, lobby.ErrDescriptionTooLong):
		key = "error.description_too_long"
	}
	if err != nil && key == "error.internal" {
		obslog.L().Error("session_internal_error", zap.Error(err))
	}
	return c.text(key)
}
