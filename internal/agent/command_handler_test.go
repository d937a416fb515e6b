package agent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-controller/internal/agent/mocks"
	"hue-controller/internal/core"
	"hue-controller/internal/dispatch"
	"hue-controller/internal/lua"
	"hue-controller/internal/scheduler"
)

type handlerFixture struct {
	handler *CommandHandler
	queue   *mocks.MockEnqueuer
	state   *core.State
	bus     *core.EventBus
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	intents := make(core.CommandChannel, 10)
	bus := core.NewEventBus()
	engine := lua.NewEngine(intents, t.TempDir(), bus)
	t.Cleanup(engine.Close)
	sched := scheduler.NewScheduler(intents, filepath.Join(t.TempDir(), "schedules.json"))

	state := core.NewState()
	queue := mocks.NewMockEnqueuer(ctrl)
	h := NewCommandHandler(state, bus, engine, sched)
	h.SetQueue(queue)
	return &handlerFixture{handler: h, queue: queue, state: state, bus: bus}
}

func (f *handlerFixture) seed(on bool, brightness uint8) {
	cmd := core.PowerCommand(on)
	cmd.Brightness = &brightness
	f.state.Seed("abc", cmd)
}

func nextEvent(t *testing.T, sub core.Subscriber) core.Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return core.Event{}
	}
}

func TestHandleDropsLightIntentsUntilReady(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.Handle(core.PowerIntent(true))
	f.handler.Handle(core.BrightnessIntent(10))

	assert.False(t, f.state.Clone().Power)
}

func TestHandleDropsLightIntentsWithoutQueue(t *testing.T) {
	state := core.NewState()
	state.Seed("abc", core.PowerCommand(false))
	h := NewCommandHandler(state, core.NewEventBus(), nil, nil)

	h.Handle(core.PowerIntent(true))

	assert.False(t, state.Clone().Power)
}

func TestHandlePowerEnqueuesAndPublishes(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(false, 100)
	sub := f.bus.Subscribe(core.PowerChangedEvent)

	f.queue.EXPECT().Enqueue(core.KindPower, core.PowerCommand(true)).Return(nil)
	f.handler.Handle(core.PowerIntent(true))

	assert.True(t, f.state.Clone().Power)
	ev := nextEvent(t, sub)
	assert.Equal(t, map[string]interface{}{"isOn": true}, ev.Payload)
}

func TestHandleRejectsMalformedPower(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(false, 100)

	f.handler.Handle(core.Command{Type: core.CmdSetPower, Payload: map[string]interface{}{"isOn": "yes"}})

	assert.False(t, f.state.Clone().Power)
}

func TestHandleIgnoresBrightnessAndColorWhileOff(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(false, 100)

	f.handler.Handle(core.BrightnessIntent(10))
	f.handler.Handle(core.ColorIntent(core.RGB{R: 255}))

	st := f.state.Clone()
	assert.Equal(t, uint8(100), st.Brightness)
	assert.Equal(t, core.RGB{}, st.Color)
}

func TestHandleBrightnessClamps(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(true, 100)
	sub := f.bus.Subscribe(core.BrightnessChangedEvent)

	f.queue.EXPECT().Enqueue(core.KindBrightness, core.BrightnessCommand(255)).Return(nil)
	f.handler.Handle(core.BrightnessIntent(300))

	assert.Equal(t, uint8(255), f.state.Clone().Brightness)
	ev := nextEvent(t, sub)
	assert.Equal(t, map[string]interface{}{"value": uint8(255)}, ev.Payload)
}

func TestHandleColorUsesCurrentBrightness(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(true, 100)
	red := core.RGB{R: 255}

	f.queue.EXPECT().Enqueue(core.KindColor, core.ColorCommand(red, 100)).Return(nil)
	f.handler.Handle(core.ColorIntent(red))

	assert.Equal(t, red, f.state.Clone().Color)
}

func TestHandleColorWithExplicitBrightness(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(true, 100)
	sub := f.bus.Subscribe(core.ColorChangedEvent)
	blue := core.RGB{B: 200}

	f.queue.EXPECT().Enqueue(core.KindColor, core.ColorCommand(blue, 40)).Return(nil)
	f.handler.Handle(core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{
		"r": float64(0), "g": float64(0), "b": float64(200), "a": float64(40),
	}})

	st := f.state.Clone()
	assert.Equal(t, blue, st.Color)
	assert.Equal(t, uint8(40), st.Brightness)

	ev := nextEvent(t, sub)
	payload, ok := ev.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "#0000C8", payload["hex"])
	assert.Equal(t, uint8(40), payload["brightness"])
}

func TestHandleEnqueueErrorKeepsState(t *testing.T) {
	f := newHandlerFixture(t)
	f.seed(true, 100)
	sub := f.bus.Subscribe(core.BrightnessChangedEvent)

	f.queue.EXPECT().Enqueue(core.KindBrightness, gomock.Any()).Return(dispatch.ErrInvalidKind)
	f.handler.Handle(core.BrightnessIntent(10))

	assert.Equal(t, uint8(100), f.state.Clone().Brightness)
	assert.Empty(t, sub)
}

func TestHandleSchedules(t *testing.T) {
	f := newHandlerFixture(t)
	sub := f.bus.Subscribe(core.ScheduleChangedEvent)

	f.handler.Handle(core.Command{Type: core.CmdAddSchedule, Payload: map[string]interface{}{
		"spec": "0 7 * * *", "command": "power on",
	}})
	added, ok := nextEvent(t, sub).Payload.(map[cron.EntryID]scheduler.ScheduleEntry)
	require.True(t, ok)
	require.Len(t, added, 1)

	var id cron.EntryID
	for k := range added {
		id = k
	}
	f.handler.Handle(core.Command{Type: core.CmdRemoveSchedule, Payload: map[string]interface{}{"id": float64(id)}})
	removed, ok := nextEvent(t, sub).Payload.(map[cron.EntryID]scheduler.ScheduleEntry)
	require.True(t, ok)
	assert.Empty(t, removed)

	f.handler.Handle(core.Command{Type: core.CmdAddSchedule, Payload: map[string]interface{}{
		"spec": "0 7 * * *", "command": "lua os.exit()",
	}})
	assert.Empty(t, sub)
}

func TestHandlePatternManagement(t *testing.T) {
	f := newHandlerFixture(t)
	lists := f.bus.Subscribe(core.PatternListEvent)
	codes := f.bus.Subscribe(core.PatternCodeEvent)

	f.handler.Handle(core.Command{Type: core.CmdSavePatternCode, Payload: map[string]interface{}{
		"name": "glow.lua", "code": "set_power(true)",
	}})
	assert.Equal(t, []string{"glow.lua"}, nextEvent(t, lists).Payload)

	f.handler.Handle(core.Command{Type: core.CmdGetPatternCode, Payload: map[string]interface{}{"name": "glow.lua"}})
	assert.Equal(t, map[string]string{"name": "glow.lua", "code": "set_power(true)"}, nextEvent(t, codes).Payload)

	f.handler.Handle(core.Command{Type: core.CmdDeletePattern, Payload: map[string]interface{}{"name": "glow.lua"}})
	assert.Empty(t, nextEvent(t, lists).Payload)
}
