// internal/events/mqttsink/mqttsink_test.go
package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/kiosk-coordinator/internal/delivery"
	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePub struct{ msgs []published }

func (f *fakePub) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic, retained, payload.([]byte)})
	return doneToken{}
}

func TestEmit_EventTopic(t *testing.T) {
	pub := &fakePub{}
	s := New(pub, "kiosk", zerolog.Nop())

	s.Emit(events.Event{
		Kind:    events.DeliveryAborted,
		DoorKey: "door2",
		Reason:  "This bin is full",
		Err:     errors.New("delivery: bin full"),
	})

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "kiosk/event/deliveryAborted", pub.msgs[0].topic)
	assert.False(t, pub.msgs[0].retained)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, "door2", got["doorKey"])
	assert.Equal(t, "delivery: bin full", got["error"])
}

func TestEmit_StateIsRetainedPerDevice(t *testing.T) {
	pub := &fakePub{}
	s := New(pub, "kiosk", zerolog.Nop())

	st := registers.NewState(map[string]registers.Reading{
		"weight_1": {Address: 0, Name: "weight_1", RawValue: 120, Value: registers.Number(120), Unit: "g"},
	}, time.Now())
	s.Emit(events.Event{Kind: events.StateUpdated, Device: "weight", Payload: st})

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "kiosk/state/weight", pub.msgs[0].topic)
	assert.True(t, pub.msgs[0].retained)
	assert.Contains(t, string(pub.msgs[0].payload), `"weight_1"`)
	assert.Equal(t, "kiosk/event/stateUpdated", pub.msgs[1].topic)
}

// ---- commands ----

type fakeMsg struct {
	mqtt.Message
	payload []byte
}

func (m fakeMsg) Payload() []byte { return m.payload }

type fakeSub struct{ handlers map[string]mqtt.MessageHandler }

func (f *fakeSub) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	f.handlers[topic] = cb
	return doneToken{}
}

type fakeCommander struct {
	doors  chan string
	access chan bool
}

func (f *fakeCommander) Deliver(_ context.Context, door string) (delivery.Receipt, error) {
	f.doors <- door
	return delivery.Receipt{}, nil
}

func (f *fakeCommander) ApplyAccessPolicy(_ context.Context, loggedIn bool) error {
	f.access <- loggedIn
	return nil
}

func TestListenCommands(t *testing.T) {
	sub := &fakeSub{handlers: map[string]mqtt.MessageHandler{}}
	cmd := &fakeCommander{doors: make(chan string, 1), access: make(chan bool, 1)}

	require.NoError(t, ListenCommands(context.Background(), sub, "kiosk", cmd, zerolog.Nop()))
	require.Contains(t, sub.handlers, "kiosk/cmd/deliver")
	require.Contains(t, sub.handlers, "kiosk/cmd/access")

	sub.handlers["kiosk/cmd/deliver"](nil, fakeMsg{payload: []byte(" door3\n")})
	select {
	case d := <-cmd.doors:
		assert.Equal(t, "door3", d)
	case <-time.After(time.Second):
		t.Fatal("deliver not called")
	}

	sub.handlers["kiosk/cmd/access"](nil, fakeMsg{payload: []byte("bogus")})
	sub.handlers["kiosk/cmd/access"](nil, fakeMsg{payload: []byte("login")})
	select {
	case v := <-cmd.access:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("access not applied")
	}
}
