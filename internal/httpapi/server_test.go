package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ocastro/damas-arena/internal/auth"
	"github.com/ocastro/damas-arena/internal/lobby"
	"github.com/ocastro/damas-arena/internal/match"
	"github.com/ocastro/damas-arena/internal/msgcat"
	"github.com/ocastro/damas-arena/internal/session"
	"github.com/ocastro/damas-arena/internal/wallet"
	"github.com/ocastro/damas-arena/internal/ws"
)

type testAPI struct {
	srv      *Server
	escrow   *wallet.Engine
	offers   *lobby.Manager
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	matches := match.NewManager(rdb)
	escrow := wallet.NewEngine(rdb, matches.Store(), 0.15)
	matches.AttachSettler(escrow)
	offers := lobby.NewManager(lobby.NewStore(rdb, 2*time.Minute), escrow)
	verifier, _ := auth.NewVerifier("httpapi-test", time.Hour)
	cat, err := msgcat.New()
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	coord := session.NewCoordinator(session.Options{
		Matches:  matches,
		Offers:   offers,
		Escrow:   escrow,
		Verifier: verifier,
		Catalog:  cat,
	})
	srv := New(offers, matches, escrow, coord, verifier, cat, ws.NewHub())

	for _, u := range []struct{ id, name string }{{"u1", "ana"}, {"u2", "bruno"}} {
		err := escrow.SaveAccount(context.Background(), &wallet.Account{ID: u.id, Username: u.name, Balance: 1000, DemoBalance: 500})
		if err != nil {
			t.Fatalf("account: %v", err)
		}
	}
	return &testAPI{srv: srv, escrow: escrow, offers: offers, verifier: verifier}
}

func (a *testAPI) do(t *testing.T, method, path, userID, username string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		tok, _, err := a.verifier.Sign(userID, username)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/users/me", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMe(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/users/me", "u1", "ana", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var acc wallet.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.ID != "u1" || acc.Balance != 1000 {
		t.Fatalf("account: %+v", acc)
	}
}

func TestCreateAndListOffers(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/lobby/create", "u1", "ana", createOfferReq{Stake: 50, Description: "partida rápida"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var o lobby.Offer
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if o.Stake != 50 || o.CreatedBy != "u1" {
		t.Fatalf("offer: %+v", o)
	}

	// a second open offer by the same creator is a conflict
	rec = a.do(t, http.MethodPost, "/api/lobby/create", "u1", "ana", createOfferReq{Stake: 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	// the creator does not see their own offer in the public list
	rec = a.do(t, http.MethodGet, "/api/lobby/public", "u1", "ana", nil)
	var own struct {
		Offers []lobby.Offer `json:"offers"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &own)
	if len(own.Offers) != 0 {
		t.Fatalf("creator must not see own offer: %+v", own.Offers)
	}

	rec = a.do(t, http.MethodGet, "/api/lobby/public", "u2", "bruno", nil)
	var others struct {
		Offers []lobby.Offer `json:"offers"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &others)
	if len(others.Offers) != 1 || others.Offers[0].ID != o.ID {
		t.Fatalf("public list: %+v", others.Offers)
	}
}

func TestJoinPrivateByCode(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/lobby/create", "u1", "ana", createOfferReq{Stake: 25, Private: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var o lobby.Offer
	_ = json.Unmarshal(rec.Body.Bytes(), &o)
	if o.Code == "" {
		t.Fatalf("private offer must carry a code")
	}

	rec = a.do(t, http.MethodPost, "/api/lobby/join/private", "u2", "bruno", joinPrivateReq{Code: o.Code})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d body=%s", rec.Code, rec.Body.String())
	}
	var found lobby.Offer
	_ = json.Unmarshal(rec.Body.Bytes(), &found)
	if found.ID != o.ID {
		t.Fatalf("resolved offer: %+v", found)
	}

	rec = a.do(t, http.MethodPost, "/api/lobby/join/private", "u2", "bruno", joinPrivateReq{Code: "NOPE11"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown code status = %d", rec.Code)
	}
}

func TestInsufficientFunds(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPost, "/api/lobby/create", "u1", "ana", createOfferReq{Stake: 5000})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestForfeitRoute(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	o, err := a.offers.Create(ctx, "u1", "ana", lobby.CreateParams{Stake: 100})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	m, err := a.escrow.CreateMatch(ctx, o.ID, "u2")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	rec := a.do(t, http.MethodPost, "/api/lobby/game/"+m.ID+"/forfeit", m.WhiteID, m.WhiteName, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("forfeit status = %d body=%s", rec.Code, rec.Body.String())
	}
	var done match.Match
	_ = json.Unmarshal(rec.Body.Bytes(), &done)
	if done.Status != match.StatusAbandoned || done.Winner != m.BlackID {
		t.Fatalf("forfeit result: %+v", done)
	}

	got, err := a.escrow.Account(ctx, m.BlackID)
	if err != nil {
		t.Fatalf("winner account: %v", err)
	}
	if got.Wins != 1 {
		t.Fatalf("winner counters: %+v", got)
	}
}
