package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealroom/config"
	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/handler"
	"dealroom/internal/proxy"
	"dealroom/internal/repository/memory"
	"dealroom/internal/server"
	"dealroom/internal/services"
	"dealroom/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testServer struct {
	handler  http.Handler
	txn      booking.Transaction
	client   string
	provider string
	outsider string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	req := require.New(t)

	store := memory.NewStore()
	txn := booking.Transaction{
		ID:         uuid.New(),
		ServiceID:  uuid.New(),
		ClientID:   uuid.New(),
		ProviderID: uuid.New(),
		BasePrice:  decimal.NewFromInt(100),
	}
	store.AddTransaction(txn)

	hub := websocket.NewHub()
	pub := websocket.NewLocalPublisher(hub)
	bus := commands.NewBus(proxy.NewAccessControl(store.Bookings()))
	policy, err := negotiation.ParsePolicy("0.3", "0.5")
	req.NoError(err)

	messages := services.NewMessageStore(store.Messages(), 2000)
	unread := services.NewUnreadTracker(store.Unread(), messages, hub, pub, nil)
	negotiations := services.NewNegotiationService(store.Negotiations(), store.Bookings(), policy, time.Hour, nil, bus)
	channels := services.NewChannelService(services.ChannelDeps{
		Bookings:    store.Bookings(),
		Memberships: store.Memberships(),
		Identities:  store.Identities(),
		Messages:    messages,
		Unread:      unread,
		Registry:    hub,
		Viewports:   hub,
		Publisher:   pub,
	}, nil, bus)
	gateway := services.NewGateway(bus, negotiations, channels, unread, nil, nil)
	auth := services.NewAuthService("test-secret")

	srv := server.New(&config.Config{AppPort: "0", AppMode: server.TestMode}, nil)
	srv.SetupRoutes(&server.Handlers{
		Negotiation: handler.NewNegotiationHandler(gateway, nil),
		Channel:     handler.NewChannelHandler(gateway),
		Health:      handler.NewHealthHandler(nil),
		WebSocket:   websocket.NewHandler(auth, gateway, websocket.NewConnLogger(nil)),
	}, auth, nil)

	token := func(id uuid.UUID) string {
		tok, err := auth.IssueToken(id, "CLIENT", time.Hour)
		req.NoError(err)
		return tok
	}
	return &testServer{
		handler:  srv.Handler(),
		txn:      txn,
		client:   token(txn.ClientID),
		provider: token(txn.ProviderID),
		outsider: token(uuid.New()),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestNegotiationRoutes(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	base := "/v1/transactions/" + s.txn.ID.String() + "/negotiation"

	t.Run("should require a token", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, base, "", map[string]string{"amount": "80"})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "UNAUTHORIZED", env.Code)
	})

	t.Run("should reject amounts outside the bounds", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, base, s.client, map[string]string{"amount": "60"})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "INVALID_OFFER_AMOUNT", env.Code)
	})

	// Given an opened negotiation
	code, env := s.do(t, http.MethodPost, base, s.client, map[string]string{"amount": "80", "message": "can we do 80?"})
	req.Equal(http.StatusCreated, code)
	var view negotiation.View
	req.NoError(json.Unmarshal(env.Data, &view))
	req.Equal(negotiation.StatusOpen, view.Status)
	neg := "/v1/negotiations/" + view.ID.String()

	t.Run("should hide the negotiation from outsiders", func(t *testing.T) {
		code, _ := s.do(t, http.MethodGet, neg, s.outsider, nil)
		require.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("should refuse a second negotiation", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, base, s.provider, map[string]string{"amount": "90"})
		require.Equal(t, http.StatusConflict, code)
		require.Equal(t, "NEGOTIATION_EXISTS", env.Code)
	})

	t.Run("should not let the proposer accept", func(t *testing.T) {
		code, env := s.do(t, http.MethodPost, neg+"/accept", s.client, nil)
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "OUT_OF_TURN", env.Code)
	})

	// When the provider counters and the client accepts
	code, _ = s.do(t, http.MethodPost, neg+"/offers", s.provider, map[string]string{"amount": "120"})
	req.Equal(http.StatusOK, code)
	code, env = s.do(t, http.MethodPost, neg+"/accept", s.client, nil)
	req.Equal(http.StatusOK, code)

	// Then the negotiation is closed at the countered price
	req.NoError(json.Unmarshal(env.Data, &view))
	req.Equal(negotiation.StatusAccepted, view.Status)
	req.NotNil(view.FinalPrice)
	req.True(view.FinalPrice.Equal(decimal.NewFromInt(120)))
	req.Len(view.History, 2)

	code, env = s.do(t, http.MethodPost, neg+"/cancel", s.client, nil)
	req.Equal(http.StatusConflict, code)
	req.Equal("NEGOTIATION_CLOSED", env.Code)

	// Archiving is disabled in this setup
	code, _ = s.do(t, http.MethodGet, neg+"/transcript", s.client, nil)
	req.Equal(http.StatusNotFound, code)
}

func TestChannelRoutes(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)
	messages := "/v1/transactions/" + s.txn.ID.String() + "/messages"

	for _, body := range []string{"hello", "are you free friday?"} {
		code, _ := s.do(t, http.MethodPost, messages, s.client, map[string]string{"body": body})
		req.Equal(http.StatusCreated, code)
	}

	code, env := s.do(t, http.MethodGet, "/v1/unread", s.provider, nil)
	req.Equal(http.StatusOK, code)
	req.JSONEq(`{"`+s.txn.ID.String()+`":2}`, string(env.Data))

	code, env = s.do(t, http.MethodGet, messages+"?since=1", s.provider, nil)
	req.Equal(http.StatusOK, code)
	var history struct {
		Messages []struct {
			Body           string `json:"body"`
			SequenceNumber int64  `json:"sequence_number"`
		} `json:"messages"`
	}
	req.NoError(json.Unmarshal(env.Data, &history))
	req.Len(history.Messages, 1)
	req.Equal(int64(2), history.Messages[0].SequenceNumber)

	code, _ = s.do(t, http.MethodGet, messages+"?since=abc", s.provider, nil)
	req.Equal(http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/v1/transactions/"+s.txn.ID.String()+"/read", s.provider, nil)
	req.Equal(http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/v1/unread", s.provider, nil)
	req.Equal(http.StatusOK, code)
	req.Empty(env.Data)

	code, env = s.do(t, http.MethodPost, messages, s.outsider, map[string]string{"body": "hi"})
	req.Equal(http.StatusUnauthorized, code)
	req.Equal("UNAUTHORIZED", env.Code)
}

func TestHealthRoutes(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/ping", "", nil)
	req.Equal(http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/health", "", nil)
	req.Equal(http.StatusOK, code)

	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "dealroom_http_requests_total")
}
