package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHub(t *testing.T) {
	Convey("Hub delivery", t, func() {
		h := NewHub()
		a1, a2, b := NewClient(1), NewClient(1), NewClient(2)
		h.Register(a1)
		h.Register(a2)
		h.Register(b)

		Convey("an event reaches every connection of the profile", func() {
			n := h.SendToProfiles([]uint{1}, NewEvent("message", map[string]int{"id": 3}))
			So(n, ShouldEqual, 2)
			e := <-a1.Events
			So(e.Event, ShouldEqual, "message")
			So(string(e.Data), ShouldEqual, `{"id":3}`)
			So(len(b.Events), ShouldEqual, 0)
		})

		Convey("a full buffer drops events", func() {
			for i := 0; i < clientBuffer; i++ {
				So(h.SendToProfiles([]uint{2}, NewEvent("n", i)), ShouldEqual, 1)
			}
			So(h.SendToProfiles([]uint{2}, NewEvent("n", 0)), ShouldEqual, 0)
		})

		Convey("unregister is idempotent", func() {
			h.Unregister(a1)
			h.Unregister(a1)
			So(h.Connections(1), ShouldEqual, 1)
			h.Unregister(a2)
			So(h.Connections(1), ShouldEqual, 0)
			So(h.SendToProfiles([]uint{1}, NewEvent("n", nil)), ShouldEqual, 0)
		})
	})
}

func TestServe(t *testing.T) {
	h := NewHub()
	client := NewClient(7)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, client)
	}))
	defer srv.Close()

	Convey("Serve writes queued events as JSON", t, func() {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for h.Connections(7) == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		So(h.SendToProfiles([]uint{7}, NewEvent("ping", "hi")), ShouldEqual, 1)

		var got Event
		So(conn.ReadJSON(&got), ShouldBeNil)
		So(got.Event, ShouldEqual, "ping")
		So(string(got.Data), ShouldEqual, `"hi"`)
	})
}
