package network

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sentinel_director_server/logic"
)

func startTestSite(t *testing.T, mutate func(*logic.DirectorConfig)) (*Room, string) {
	t.Helper()
	cfg := logic.DefaultConfig()
	cfg.Server.TickRateMs = 10
	if mutate != nil {
		mutate(cfg)
	}
	room, err := NewRoom("site_test", cfg, nil)
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	go room.Run()
	t.Cleanup(room.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(room, w, r)
	}))
	t.Cleanup(srv.Close)
	return room, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func send(t *testing.T, conn *websocket.Conn, msgType int, payload interface{}) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, encode(msgType, payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFrame reads until a frame satisfies match.
func waitFrame(t *testing.T, conn *websocket.Conn, match func(logic.Frame) bool) logic.Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn)
		if env.Type != MsgFrame {
			continue
		}
		var f logic.Frame
		if err := json.Unmarshal(env.Payload, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if match(f) {
			return f
		}
	}
	t.Fatal("no matching frame")
	return logic.Frame{}
}

func TestObserverReceivesWelcomeAndSnapshot(t *testing.T) {
	_, url := startTestSite(t, nil)
	conn := dial(t, url)

	env := readEnvelope(t, conn)
	if env.Type != MsgWelcome {
		t.Fatalf("expected welcome, got %d", env.Type)
	}
	var welcome welcomePayload
	json.Unmarshal(env.Payload, &welcome)
	if !welcome.Success || welcome.Site != "site_test" || !strings.HasPrefix(welcome.SessionID, "s_") {
		t.Fatalf("unexpected welcome %+v", welcome)
	}

	env = readEnvelope(t, conn)
	if env.Type != MsgRoundSnapshot {
		t.Fatalf("expected site snapshot, got %d", env.Type)
	}
	var snap logic.SiteSnapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Round.Active || len(snap.Lamps) != len(logic.DefaultConfig().Lamps.Fixtures) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	for _, l := range snap.Lamps {
		if l.State != logic.LampOn {
			t.Fatalf("lamp %s not on before any round", l.ID)
		}
	}
}

func TestObserverDrivesRound(t *testing.T) {
	room, url := startTestSite(t, nil)
	conn := dial(t, url)
	readEnvelope(t, conn) // welcome
	readEnvelope(t, conn) // snapshot

	seed := int64(5)
	send(t, conn, MsgStartRound, startRoundPayload{Seed: &seed})
	started := waitFrame(t, conn, func(f logic.Frame) bool { return f.Round.Active })
	if started.Round.Seed != 5 || !started.Round.Rooms.HasRift() {
		t.Fatalf("unexpected round %+v", started.Round)
	}

	rift := started.Round.Rooms.RiftID
	var center logic.Vector2
	for _, reg := range room.Config.Rooms.Regions {
		if reg.ID == rift {
			center = reg.Bounds.Center()
		}
	}
	send(t, conn, MsgPresence, presencePayload{PlayerID: "p1", Pos: center, Sanity: 30, Controlled: true})
	waitFrame(t, conn, func(f logic.Frame) bool {
		return len(f.Presence) > 0 && f.Presence[0].RoomID == rift && f.Presence[0].Enter
	})

	send(t, conn, MsgEndRound, endRoundPayload{Success: true})
	waitFrame(t, conn, func(f logic.Frame) bool { return !f.Round.Active && f.Round.ID == "" })
}

func TestObserverMalformedMessage(t *testing.T) {
	_, url := startTestSite(t, nil)
	conn := dial(t, url)
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	send(t, conn, 9999, struct{}{})
	for {
		env := readEnvelope(t, conn)
		if env.Type == MsgFrame {
			continue
		}
		if env.Type != MsgError {
			t.Fatalf("expected error reply, got %d", env.Type)
		}
		return
	}
}

func TestSiteFullRejectsObserver(t *testing.T) {
	room, url := startTestSite(t, func(cfg *logic.DirectorConfig) { cfg.Server.MaxObservers = 1 })
	first := dial(t, url)
	if env := readEnvelope(t, first); env.Type != MsgWelcome {
		t.Fatalf("expected welcome for first observer, got %d", env.Type)
	}

	second := dial(t, url)
	env := readEnvelope(t, second)
	if env.Type != MsgError {
		t.Fatalf("expected site full error, got %d", env.Type)
	}
	var e errorPayload
	json.Unmarshal(env.Payload, &e)
	if e.Error != "site full" {
		t.Fatalf("unexpected error %q", e.Error)
	}
	if room.ClientCount() != 1 {
		t.Fatalf("expected one observer, got %d", room.ClientCount())
	}
}

func TestDecodeInput(t *testing.T) {
	in, ok := decodeInput(Envelope{Type: MsgStartRound})
	if !ok || in.Type != logic.InputStartRound || in.Seed != nil {
		t.Fatalf("unexpected start input %+v", in)
	}
	if _, ok := decodeInput(Envelope{Type: MsgPresence, Payload: json.RawMessage(`{"sanity": 5}`)}); ok {
		t.Fatal("presence without player id accepted")
	}
	in, ok = decodeInput(Envelope{Type: MsgEntityGone, Payload: json.RawMessage(`{"uid": "ent_1"}`)})
	if !ok || in.Type != logic.InputEntityDespawned || in.UID != "ent_1" {
		t.Fatalf("unexpected despawn input %+v", in)
	}
	in, ok = decodeInput(Envelope{Type: MsgLeave, Payload: json.RawMessage(`{"player_id": "p1"}`)})
	if !ok || in.PlayerID != "p1" {
		t.Fatalf("unexpected leave input %+v", in)
	}
	if _, ok := decodeInput(Envelope{Type: MsgEndRound, Payload: json.RawMessage(`{`)}); ok {
		t.Fatal("malformed end round accepted")
	}
}

func TestRoomManager(t *testing.T) {
	rm := NewRoomManager(nil)
	cfg := logic.DefaultConfig()
	if _, err := rm.CreateRoom("b", cfg); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rm.CreateRoom("a", cfg); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := rm.CreateRoom("a", cfg); err == nil {
		t.Fatal("expected duplicate site error")
	}
	if ids := rm.ListRooms(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected sites %v", ids)
	}
	if rm.GetRoom("a") == nil || rm.GetRoom("zzz") != nil {
		t.Fatal("GetRoom lookup wrong")
	}
	rm.StopAll()
	if len(rm.ListRooms()) != 0 {
		t.Fatal("StopAll left sites registered")
	}
}
