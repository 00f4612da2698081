package relay

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/soundsight/internal/dispatch"
)

// Compile-time interface check.
var _ dispatch.Presenter = (*Hub)(nil)

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	a := dialHub(t, url)
	b := dialHub(t, url)
	waitClients(t, h, 2)

	h.OnConnected()
	h.OnDirectionChanged(dispatch.Left)
	h.OnCaption("dog barking")
	h.OnError("connection closed by peer")

	for _, conn := range []*websocket.Conn{a, b} {
		m1 := readMessage(t, conn)
		if m1.Type != MsgTypeStatus || m1.Status != StatusConnected {
			t.Errorf("message 1 = %+v", m1)
		}

		m2 := readMessage(t, conn)
		if m2.Type != MsgTypeDirection || m2.Direction != "left" || m2.Code != 3 {
			t.Errorf("message 2 = %+v", m2)
		}

		m3 := readMessage(t, conn)
		if m3.Type != MsgTypeCaption || m3.Text != "dog barking" {
			t.Errorf("message 3 = %+v", m3)
		}

		m4 := readMessage(t, conn)
		if m4.Status != StatusError || m4.Reason == "" {
			t.Errorf("message 4 = %+v", m4)
		}

		if !(m1.Seq < m2.Seq && m2.Seq < m3.Seq && m3.Seq < m4.Seq) {
			t.Errorf("sequence not increasing: %d %d %d %d", m1.Seq, m2.Seq, m3.Seq, m4.Seq)
		}
		if m1.Timestamp == 0 {
			t.Error("timestamp not set")
		}
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := NewHub()
	addr, err := h.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Close()

	conn := dialHub(t, "ws://"+addr.String()+"/ws")
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)

	// Broadcasting with no clients is harmless.
	h.OnConnectionClosed()
}

func TestSeqGen(t *testing.T) {
	s := NewSeqGen()
	if s.Next() != 1 || s.Next() != 2 {
		t.Error("SeqGen must count from 1")
	}
}
