package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/security"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	server     *httptest.Server
	registry   *Registry
	hub        *Hub
	dispatcher *Dispatcher
	issuer     *security.TokenIssuer
}

func newHubFixture(t *testing.T, cfg config.RealtimeConfig) *hubFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer, err := security.NewTokenIssuer(config.JWTConfig{Secret: "realtime-secret", Expiry: time.Hour})
	require.NoError(t, err)

	registry := NewRegistry()
	hub := NewHub(registry, issuer, cfg)
	engine := gin.New()
	engine.GET("/v0/realtime", hub.Handle)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &hubFixture{server: server, registry: registry, hub: hub, dispatcher: NewDispatcher(registry), issuer: issuer}
}

func (f *hubFixture) token(t *testing.T, identity security.Identity) string {
	t.Helper()
	token, _, err := f.issuer.Issue(identity)
	require.NoError(t, err)
	return token
}

func (f *hubFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v0/realtime"
}

func (f *hubFixture) dial(t *testing.T, identity security.Identity) (*websocket.Conn, string) {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(f.wsURL()+"?access_token="+f.token(t, identity), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })

	welcome := readFrame(t, ws)
	require.Equal(t, FrameConnected, welcome.Type)
	require.NotEmpty(t, welcome.ConnectionID)
	return ws, welcome.ConnectionID
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func sendAction(t *testing.T, ws *websocket.Conn, action string, applicationID any) Frame {
	t.Helper()
	msg := map[string]any{"action": action, "request_id": "r-" + action}
	if applicationID != nil {
		msg["application_id"] = applicationID
	}
	require.NoError(t, ws.WriteJSON(msg))
	return readFrame(t, ws)
}

func TestHandshakeRejectsMissingOrInvalidToken(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})

	_, resp, err := websocket.DefaultDialer.Dial(fixture.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(fixture.wsURL()+"?access_token=not-a-token", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, fixture.registry.Len())
}

func TestHandshakeAcceptsBearerHeader(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	header := http.Header{}
	header.Set("Authorization", "Bearer "+fixture.token(t, admin))

	ws, _, err := websocket.DefaultDialer.Dial(fixture.wsURL(), header)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	require.Equal(t, FrameConnected, readFrame(t, ws).Type)
}

func TestJoinedConnectionReceivesOnlyItsGroup(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	ws, _ := fixture.dial(t, viewer)

	ack := sendAction(t, ws, ActionJoinApplication, 42)
	require.Equal(t, FrameAck, ack.Type)
	require.Equal(t, "app_42", ack.Group)
	require.Equal(t, "r-"+ActionJoinApplication, ack.RequestID)

	_, err := fixture.dispatcher.Broadcast(OutboundEvent{Name: EventNewError, Group: GroupForApplication(7), Payload: &models.ErrorLog{ID: 1, ApplicationID: 7}})
	require.NoError(t, err)
	_, err = fixture.dispatcher.Broadcast(OutboundEvent{Name: EventNewError, Group: GroupForApplication(42), Payload: &models.ErrorLog{ID: 2, ApplicationID: 42}})
	require.NoError(t, err)

	frame := readFrame(t, ws)
	require.Equal(t, FrameEvent, frame.Type)
	require.Equal(t, "app_42", frame.Group)
	require.Contains(t, string(frame.Payload), `"id":2`)
}

func TestLeaveStopsDeliveryForThatConnectionOnly(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	first, _ := fixture.dial(t, viewer)
	second, _ := fixture.dial(t, admin)

	require.Equal(t, FrameAck, sendAction(t, first, ActionJoinApplication, "42").Type)
	require.Equal(t, FrameAck, sendAction(t, second, ActionJoinApplication, 42).Type)
	require.Equal(t, FrameAck, sendAction(t, first, ActionLeaveApplication, 42).Type)

	report, err := fixture.dispatcher.Broadcast(OutboundEvent{Name: EventNewError, Group: "app_42", Payload: map[string]int{"n": 1}})
	require.NoError(t, err)
	require.Equal(t, 1, report.Delivered)
	require.Equal(t, FrameEvent, readFrame(t, second).Type)

	pong := sendAction(t, first, ActionPing, nil)
	require.Equal(t, FramePong, pong.Type)
}

func TestSystemGroupAndInvalidActions(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	ws, connID := fixture.dial(t, admin)

	require.Equal(t, SystemGroup, sendAction(t, ws, ActionJoinSystem, nil).Group)
	require.ElementsMatch(t, []string{SystemGroup}, fixture.registry.GroupsOf(connID))

	bad := sendAction(t, ws, ActionJoinApplication, "abc")
	require.Equal(t, FrameError, bad.Type)
	require.Equal(t, "invalid application_id", bad.Error)

	zero := sendAction(t, ws, ActionJoinApplication, 0)
	require.Equal(t, FrameError, zero.Type)

	unknown := sendAction(t, ws, "dropTables", nil)
	require.Equal(t, "unknown action", unknown.Error)

	require.Equal(t, FrameAck, sendAction(t, ws, ActionLeaveSystem, nil).Type)
	require.Empty(t, fixture.registry.GroupsOf(connID))
}

func TestActionsAreRateLimited(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{ActionsPerSecond: 0.001, ActionBurst: 2})
	ws, _ := fixture.dial(t, viewer)

	require.Equal(t, FramePong, sendAction(t, ws, ActionPing, nil).Type)
	require.Equal(t, FramePong, sendAction(t, ws, ActionPing, nil).Type)
	limited := sendAction(t, ws, ActionPing, nil)
	require.Equal(t, FrameError, limited.Type)
	require.Equal(t, "rate limited", limited.Error)
}

func TestClientCloseDisconnects(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	ws, _ := fixture.dial(t, viewer)
	require.Equal(t, FrameAck, sendAction(t, ws, ActionJoinApplication, 42).Type)
	require.Equal(t, 1, fixture.registry.Len())

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		return fixture.registry.Len() == 0 && len(fixture.registry.MembersOf("app_42")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParseApplicationID(t *testing.T) {
	cases := map[string]uint64{`42`: 42, `"17"`: 17, ` "8" `: 8}
	for raw, want := range cases {
		got, err := parseApplicationID([]byte(raw))
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
	for _, raw := range []string{``, `-1`, `0`, `1.5`, `"x"`, `null`} {
		_, err := parseApplicationID([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestShutdownClosesEveryConnection(t *testing.T) {
	fixture := newHubFixture(t, config.RealtimeConfig{})
	first, _ := fixture.dial(t, admin)
	second, secondID := fixture.dial(t, viewer)
	require.Equal(t, FrameAck, sendAction(t, second, ActionJoinApplication, 7).Type)
	require.Equal(t, 2, fixture.registry.Len())

	fixture.hub.Shutdown()
	require.Equal(t, 0, fixture.registry.Len())
	require.Empty(t, fixture.registry.MembersOf(GroupForApplication(7)))
	require.Empty(t, fixture.registry.GroupsOf(secondID))

	for _, ws := range []*websocket.Conn{first, second} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := ws.ReadMessage()
		require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error %v", err)
	}
}
