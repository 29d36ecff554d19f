package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atriumchat/atrium/pkg/client"
	"github.com/atriumchat/atrium/pkg/protocol"
	"github.com/atriumchat/atrium/pkg/state"
)

func startTestServer(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()

	hub := NewHub(state.NewStore(state.Limits{}), nil, zerolog.Nop(), opts)
	srv := New(hub, zerolog.Nop(), "")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return hub, ts.URL
}

func dialTest(t *testing.T, baseURL, username string) *client.Client {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	c, err := client.Dial(context.Background(), wsURL, username, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func nextEvent(t *testing.T, c *client.Client) protocol.ServerEvent {
	t.Helper()

	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestConnectDeliversSnapshot(t *testing.T) {
	_, url := startTestServer(t, Options{})

	alice := dialTest(t, url, "alice")

	ready, ok := nextEvent(t, alice).(protocol.ClientReady)
	require.True(t, ok, "first unit must be the snapshot")
	assert.Equal(t, "alice", ready.Profile.Username)
	assert.Empty(t, ready.Communities)
}

func TestMessageRoundTrip(t *testing.T) {
	_, url := startTestServer(t, Options{})
	ctx := context.Background()

	alice := dialTest(t, url, "alice")
	nextEvent(t, alice) // snapshot

	ok, err := alice.Do(ctx, protocol.CreateCommunity{Name: "gardeners"})
	require.NoError(t, err)
	community := ok.(protocol.OkAddCommunity).Community
	room := community.Rooms[0].ID

	invite, err := alice.Do(ctx, protocol.CreateInvite{Community: community.ID})
	require.NoError(t, err)

	bob := dialTest(t, url, "bob")
	nextEvent(t, bob) // snapshot

	_, err = bob.Do(ctx, protocol.JoinCommunity{InviteCode: invite.(protocol.OkNewInvite).Code})
	require.NoError(t, err)

	_, err = alice.Do(ctx, protocol.SelectRoom{Community: community.ID, Room: room})
	require.NoError(t, err)

	sent, err := bob.Do(ctx, protocol.SendMessage{Community: community.ID, Room: room, Content: "hello"})
	require.NoError(t, err)
	confirm := sent.(protocol.OkConfirmMessage)

	// Alice is viewing the room and receives the body
	add, is := nextEvent(t, alice).(protocol.AddMessage)
	require.True(t, is)
	assert.Equal(t, confirm.ID, add.Message.ID)
	assert.Equal(t, "hello", add.Message.Content)
	assert.Equal(t, bob.User(), add.Message.Author)

	// A reconnecting session starts over from the snapshot
	alice2 := dialTest(t, url, "alice")
	ready := nextEvent(t, alice2).(protocol.ClientReady)
	require.Len(t, ready.Communities, 1)
	assert.True(t, ready.Communities[0].Rooms[0].Unread)
}

func TestApplicationErrorSurfaces(t *testing.T) {
	_, url := startTestServer(t, Options{})

	alice := dialTest(t, url, "alice")
	nextEvent(t, alice)

	_, err := alice.Do(context.Background(), protocol.JoinCommunity{InviteCode: "bogus"})
	assert.ErrorIs(t, err, protocol.ErrInvalidInviteCode)
}

func TestRateLimitSignal(t *testing.T) {
	_, url := startTestServer(t, Options{RequestBurst: 2, RequestsPerSecond: 0.01})

	alice := dialTest(t, url, "alice")
	nextEvent(t, alice)

	ctx := context.Background()
	_, err := alice.Do(ctx, protocol.CreateCommunity{Name: "one"})
	require.NoError(t, err)
	_, err = alice.Do(ctx, protocol.CreateCommunity{Name: "two"})
	require.NoError(t, err)

	// The unit past the burst is refused: no response ever comes, only
	// an uncorrelated backoff signal.
	short, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = alice.Do(short, protocol.CreateCommunity{Name: "three"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case limited := <-alice.RateLimits():
		assert.Greater(t, limited.ReadyInMS, uint32(0))
	case <-time.After(2 * time.Second):
		t.Fatal("no rate limit signal received")
	}
}

func TestMalformedUnitsAnsweredThenDropped(t *testing.T) {
	_, url := startTestServer(t, Options{MalformedLimit: 3})

	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws?username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUnit := func() protocol.ServerMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, buf, err := conn.ReadMessage()
		require.NoError(t, err)
		msg, err := protocol.DecodeServerMessage(buf)
		require.NoError(t, err)
		return msg
	}

	_, ok := readUnit().(protocol.ClientReady)
	require.True(t, ok)

	// An undecodable unit is answered, not fatal
	garbage := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, garbage))
	_, ok = readUnit().(protocol.MalformedMessage)
	require.True(t, ok, "garbage must be answered with MalformedMessage")

	// The session survives: a valid request still round-trips
	buf, err := protocol.EncodeRequest(7, protocol.CreateCommunity{Name: "gardeners"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, buf))

	resp, isResp := readUnit().(*protocol.Response)
	require.True(t, isResp)
	assert.Equal(t, protocol.RequestID(7), resp.ID)
	require.Nil(t, resp.Err)

	// Two more undecodable units reach the limit; the limit-hitting one
	// is still answered before the connection drops.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, garbage))
	_, ok = readUnit().(protocol.MalformedMessage)
	require.True(t, ok)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, garbage))
	_, ok = readUnit().(protocol.MalformedMessage)
	require.True(t, ok)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "connection must close once the limit is reached")
}

func TestHealthEndpoint(t *testing.T) {
	_, url := startTestServer(t, Options{})

	resp, err := http.Get(url + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvitePreviewPage(t *testing.T) {
	hub, url := startTestServer(t, Options{})

	user, err := hub.Store().EnsureUser("alice")
	require.NoError(t, err)
	community, err := hub.Store().CreateCommunity(user.ID, "gardeners")
	require.NoError(t, err)
	require.NoError(t, hub.Store().ChangeCommunityDescription(community.ID, "green things"))
	code, err := hub.Store().CreateInvite(community.ID, nil)
	require.NoError(t, err)

	resp, err := http.Get(url + "/invite/" + code)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gardeners")
	assert.Contains(t, string(body), "green things")

	missing, err := http.Get(url + "/invite/nosuchcode")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
