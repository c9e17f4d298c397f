package plateHandler

import (
	"PlateVision/internal/api/plate"
	"PlateVision/internal/entity"
	"net"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
)

func dialPlateStream(t *testing.T, svc *fakePlateService) *gorillaws.Conn {
	t.Helper()
	app := newTestApp(svc)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/plates/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestPlateWebSocketAnswersEachFrame(t *testing.T) {
	svc := &fakePlateService{failOn: "junk"}
	conn := dialPlateStream(t, svc)

	if err := conn.WriteMessage(gorillaws.TextMessage, []byte("not a frame")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	if err := conn.WriteMessage(gorillaws.BinaryMessage, []byte("car")); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	var result entity.PlateResult
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if result.Plate != "Pcar" || len(result.Recognitions) != 1 {
		t.Errorf("result = %+v, want plate Pcar", result)
	}

	if err := conn.WriteMessage(gorillaws.BinaryMessage, []byte("junk")); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	var failed plate.ProcessDetailResponse
	if err := conn.ReadJSON(&failed); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if failed.Error != "uploaded file is not a decodable image" || failed.Data != nil {
		t.Errorf("error reply = %+v", failed)
	}

	if err := conn.WriteMessage(gorillaws.BinaryMessage, []byte("again")); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("read result after error: %v", err)
	}
	if result.Plate != "Pagain" {
		t.Errorf("plate after error = %q", result.Plate)
	}

	if got := svc.calls(); got != 3 {
		t.Errorf("service calls = %d, want 3 (text frame skipped)", got)
	}
}
