// Package mqtttest provides an in-memory paho client that records what
// would reach a broker.
package mqtttest

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message is one publish seen by the fake broker.
type Message struct {
	Topic    string
	Payload  string
	Qos      byte
	Retained bool
}

// FakeClient implements mqtt.Client. Publishes are recorded, retained
// ones are kept per topic, and Deliver feeds subscribed handlers.
type FakeClient struct {
	// ConnectErr makes Connect fail.
	ConnectErr error
	// ConnectGate, when set, holds Connect until it is closed.
	ConnectGate chan struct{}

	mu        sync.Mutex
	opts      *mqtt.ClientOptions
	connected bool
	published []Message
	retained  map[string]string
	handlers  map[string]mqtt.MessageHandler
}

var _ mqtt.Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{
		retained: make(map[string]string),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

// Factory returns a client constructor handing out f, keeping the options
// for the LWT and the connection callbacks.
func (f *FakeClient) Factory() func(*mqtt.ClientOptions) mqtt.Client {
	return func(opts *mqtt.ClientOptions) mqtt.Client {
		f.mu.Lock()
		f.opts = opts
		f.mu.Unlock()
		return f
	}
}

func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeClient) IsConnectionOpen() bool {
	return f.IsConnected()
}

func (f *FakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	err, gate := f.ConnectErr, f.ConnectGate
	f.mu.Unlock()
	if err != nil {
		return doneToken(err)
	}
	if gate == nil {
		f.connect()
		return doneToken(nil)
	}
	t := &token{done: make(chan struct{})}
	go func() {
		<-gate
		f.connect()
		close(t.done)
	}()
	return t
}

func (f *FakeClient) connect() {
	f.mu.Lock()
	f.connected = true
	opts := f.opts
	f.mu.Unlock()
	if opts != nil && opts.OnConnect != nil {
		go opts.OnConnect(f)
	}
}

func (f *FakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return doneToken(mqtt.ErrNotConnected)
	}
	f.published = append(f.published, Message{Topic: topic, Payload: body, Qos: qos, Retained: retained})
	if retained {
		f.retained[topic] = body
	}
	return doneToken(nil)
}

func (f *FakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return doneToken(mqtt.ErrNotConnected)
	}
	f.handlers[topic] = callback
	return doneToken(nil)
}

func (f *FakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if t := f.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return doneToken(nil)
}

func (f *FakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return doneToken(nil)
}

func (f *FakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = callback
}

func (f *FakeClient) OptionsReader() mqtt.ClientOptionsReader {
	f.mu.Lock()
	defer f.mu.Unlock()
	return mqtt.NewOptionsReader(f.opts)
}

// Deliver hands a message to every handler whose filter matches topic.
func (f *FakeClient) Deliver(topic, payload string) {
	f.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range f.handlers {
		if matches(filter, topic) {
			matched = append(matched, h)
		}
	}
	f.mu.Unlock()
	for _, h := range matched {
		h(f, &message{topic: topic, payload: []byte(payload)})
	}
}

// DropConnection simulates a broker disconnect: the LWT is retained and
// the connection lost handler runs.
func (f *FakeClient) DropConnection(err error) {
	f.mu.Lock()
	f.connected = false
	opts := f.opts
	if opts != nil && opts.WillEnabled && opts.WillRetained {
		f.retained[opts.WillTopic] = string(opts.WillPayload)
	}
	f.mu.Unlock()
	if opts != nil && opts.OnConnectionLost != nil {
		opts.OnConnectionLost(f, err)
	}
}

func (f *FakeClient) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// Retained returns the retained payload of topic, as a broker would keep it.
func (f *FakeClient) Retained(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.retained[topic]
	return v, ok
}

// Options returns the options the client was built with.
func (f *FakeClient) Options() *mqtt.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

func (f *FakeClient) Subscribed(filter string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[filter]
	return ok
}

func matches(filter, topic string) bool {
	if prefix, ok := strings.CutSuffix(filter, "#"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return filter == topic
}

type token struct {
	err  error
	done chan struct{}
}

func doneToken(err error) mqtt.Token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool {
	<-t.done
	return true
}

func (t *token) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

func (t *token) Done() <-chan struct{} {
	return t.done
}

func (t *token) Error() error {
	return t.err
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 1 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
