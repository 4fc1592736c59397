// Package realtime pushes events to the websocket connections of profiles.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

const clientBuffer = 64

// Event is the JSON frame sent to a client.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent encodes data into an event.
func NewEvent(name string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		logutils.Log.Errorf("encode realtime event %s: %v", name, err)
		raw = []byte("null")
	}
	return Event{Event: name, Data: raw}
}

// Client is one connection of a profile.
type Client struct {
	ID        string
	ProfileID uint
	Events    chan Event
}

func NewClient(profileID uint) *Client {
	return &Client{
		ID:        uuid.New().String(),
		ProfileID: profileID,
		Events:    make(chan Event, clientBuffer),
	}
}

// Publisher delivers events to profiles.
type Publisher interface {
	SendToProfiles(profileIDs []uint, event Event) int
}

// Hub indexes connected clients by profile.
type Hub struct {
	mu       sync.RWMutex
	profiles map[uint]map[string]*Client
}

var globalHub = NewHub()

// GetHub returns the process wide hub.
func GetHub() *Hub { return globalHub }

func NewHub() *Hub {
	return &Hub{profiles: make(map[uint]map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.profiles[c.ProfileID]
	if !ok {
		conns = make(map[string]*Client)
		h.profiles[c.ProfileID] = conns
	}
	conns[c.ID] = c
	logutils.Log.Debugf("realtime client registered: id=%s profile=%d (connections: %d)", c.ID, c.ProfileID, len(conns))
}

// Unregister removes the client and closes its channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.profiles[c.ProfileID]
	if !ok {
		return
	}
	if _, ok := conns[c.ID]; !ok {
		return
	}
	close(c.Events)
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(h.profiles, c.ProfileID)
	}
	logutils.Log.Debugf("realtime client unregistered: id=%s profile=%d", c.ID, c.ProfileID)
}

// SendToProfiles queues event on every connection of the profiles. A connection whose buffer is
// full misses the event. It returns the number of connections that received it.
func (h *Hub) SendToProfiles(profileIDs []uint, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, id := range profileIDs {
		for _, c := range h.profiles[id] {
			select {
			case c.Events <- event:
				delivered++
			default:
				logutils.Log.Warnf("realtime client %s buffer full, skipping %s", c.ID, event.Event)
			}
		}
	}
	return delivered
}

// Connections returns the number of open connections of a profile.
func (h *Hub) Connections(profileID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.profiles[profileID])
}

// Profiles returns the number of profiles with at least one open connection.
func (h *Hub) Profiles() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.profiles)
}
