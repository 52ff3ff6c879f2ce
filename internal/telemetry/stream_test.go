package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radio-control/commandd/internal/config"
	"github.com/radio-control/commandd/internal/engine"
	"github.com/radio-control/commandd/internal/logging"
	"github.com/radio-control/commandd/internal/server"
)

type sseFrame struct {
	id, event, data string
}

// readFrame reads one SSE frame terminated by a blank line.
func readFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	var f sseFrame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("Failed to read SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestServeSSEReadyReplayAndLive(t *testing.T) {
	h := newTestHub(t, 10, 0)
	h.Publish("instruction", map[string]any{"name": "a"})
	h.Publish("instruction", map[string]any{"name": "b"})

	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if f := readFrame(t, r); f.event != "ready" || f.id != "" {
		t.Errorf("Expected unnumbered ready frame, got %+v", f)
	}
	if f := readFrame(t, r); f.id != "2" || f.data != `{"name":"b"}` {
		t.Errorf("Expected replay of event 2, got %+v", f)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish("request", map[string]any{"status": 200})
	if f := readFrame(t, r); f.id != "3" || f.event != "request" {
		t.Errorf("Expected live event 3, got %+v", f)
	}
}

func TestServeWSStreamsEvents(t *testing.T) {
	h := newTestHub(t, 10, 0)
	h.Publish("server.started", nil)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?lastEventId=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ready Event
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ready.Type != "ready" || ready.Data["lastEventId"] != float64(1) {
		t.Errorf("Unexpected ready event %+v", ready)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.InstructionDone(engine.Result{Name: "bogus", Outcome: engine.OutcomeUnknown, Err: errors.New("unknown instruction: bogus")})

	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Type != "instruction.unknown" || got.Data["name"] != "bogus" {
		t.Errorf("Unexpected event %+v", got)
	}
}

func TestWatchServerPublishesLifecycle(t *testing.T) {
	h := newTestHub(t, 10, 0)
	sub, err := h.Subscribe(0)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer sub.Close()

	cfg := config.Default().Server
	cfg.Port = 0
	s := server.New(cfg, server.WithLogger(logging.Discard()), server.WithRequestObserver(h))
	h.WatchServer(s)

	if !s.Start() {
		t.Fatal("Start() returned false")
	}
	started := receive(t, sub.Events)
	if started.Type != "server.started" {
		t.Fatalf("Expected server.started, got %+v", started)
	}
	addr, _ := started.Data["addr"].(string)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		t.Errorf("Expected an address, got %q", addr)
	}

	resp, err := http.Post("http://"+addr, "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	reqEvent := receive(t, sub.Events)
	if reqEvent.Type != "request" || reqEvent.Data["outcome"] != server.OutcomeUnsupportedMediaType {
		t.Errorf("Unexpected request event %+v", reqEvent)
	}

	s.Stop()
	stopped := receive(t, sub.Events)
	if stopped.Type != "server.stopped" {
		t.Fatalf("Expected server.stopped, got %+v", stopped)
	}
	data, _ := json.Marshal(stopped.Data["counters"])
	if string(data) != `{"total":1,"success":0,"failure":1}` {
		t.Errorf("Unexpected counters %s", data)
	}
}
