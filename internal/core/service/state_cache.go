package service

import (
	"sort"
	"sync"
	"time"

	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/domain"
	"github.com/bluetti2mqtt/bluetti2mqtt/internal/core/events"

	"github.com/asynkron/protoactor-go/eventstream"
)

// DeviceState is the last known state of a device as published to MQTT.
type DeviceState struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Address    string            `json:"address"`
	Online     bool              `json:"online"`
	LastUpdate time.Time         `json:"last_update,omitempty"`
	Fields     map[string]string `json:"fields"`
}

// StateCache keeps the last formatted value of every field, per device.
// Safe for concurrent use.
type StateCache struct {
	mu      sync.RWMutex
	devices map[string]*DeviceState
	now     func() time.Time
}

func NewStateCache() *StateCache {
	return &StateCache{
		devices: make(map[string]*DeviceState),
		now:     time.Now,
	}
}

// Attach feeds the cache from the event stream until the returned
// subscription is removed.
func (c *StateCache) Attach(es *eventstream.EventStream) *eventstream.Subscription {
	return es.Subscribe(c.Handle)
}

func (c *StateCache) Handle(evt any) {
	switch ev := evt.(type) {
	case domain.DeviceConnectedEvent:
		if ev.Device == nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		st := c.entry(ev.Device.Name())
		st.Type = ev.Device.Type
		st.Address = ev.Device.Address
		st.Online = true
	case domain.DeviceDisconnectedEvent:
		if ev.Device == nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.entry(ev.Device.Name()).Online = false
	case domain.ParserMessage:
		updates := events.ParserMessageToUpdateEvents(ev)
		c.mu.Lock()
		defer c.mu.Unlock()
		st := c.entry(ev.Device.Name())
		st.Type = ev.Device.Type
		st.Address = ev.Device.Address
		for _, u := range updates {
			st.Fields[u.Field] = u.Payload
		}
		st.LastUpdate = c.now()
	}
}

func (c *StateCache) entry(name string) *DeviceState {
	st, ok := c.devices[name]
	if !ok {
		st = &DeviceState{Name: name, Fields: make(map[string]string)}
		c.devices[name] = st
	}
	return st
}

func (c *StateCache) Device(name string) (DeviceState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.devices[name]
	if !ok {
		return DeviceState{}, false
	}
	return st.copy(), true
}

// Snapshot returns a copy of every device, sorted by name.
func (c *StateCache) Snapshot() []DeviceState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DeviceState, 0, len(c.devices))
	for _, st := range c.devices {
		out = append(out, st.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *DeviceState) copy() DeviceState {
	cp := *s
	cp.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		cp.Fields[k] = v
	}
	return cp
}
