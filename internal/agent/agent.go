package agent

import (
	"context"
	"sync"
	"time"

	"hue-controller/internal/config"
	"hue-controller/internal/core"
	"hue-controller/internal/dispatch"
	"hue-controller/internal/hue"
	"hue-controller/internal/log"
	"hue-controller/internal/lua"
	"hue-controller/internal/mqtt"
	"hue-controller/internal/scheduler"
	"hue-controller/internal/server"
)

// bridgeInit carries the result of bridge initialization to the agent loop.
type bridgeInit struct {
	lightID string
	initial core.LightCommand
}

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup
	done   chan struct{}

	state          *core.State
	eventBus       *core.EventBus
	commandChannel core.CommandChannel
	bridgeReady    chan bridgeInit

	hueClient  *hue.Client
	dispatcher *dispatch.Dispatcher
	handler    *CommandHandler
	luaEngine  *lua.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	hueClient, err := hue.NewClient(cfg.Bridge)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		done:           make(chan struct{}),
		state:          core.NewState(),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
		bridgeReady:    make(chan bridgeInit, 1),
		hueClient:      hueClient,
	}

	a.luaEngine = lua.NewEngine(a.commandChannel, cfg.PatternsDir, a.eventBus)
	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile)
	a.handler = NewCommandHandler(a.state, a.eventBus, a.luaEngine, a.scheduler)

	a.server = server.NewServer(
		a.commandChannel,
		a.eventBus,
		a,
		cfg.Server.Port,
		cfg.Server.WebFilesDir,
		cfg.Server.AllowedOrigins,
	)

	a.mqttClient = mqtt.NewClient(cfg, a.commandChannel, a.eventBus, a.luaEngine.GetPatternList)

	return a, nil
}

// Run starts the agent orchestration loop. It returns after Shutdown.
func (a *Agent) Run() {
	defer close(a.done)
	logger := log.WithComponent("agent")

	sub := a.eventBus.Subscribe(core.PatternChangedEvent)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.listenEvents(sub)
	}()

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				logger.Errorf("MQTT setup error: %v", err)
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.initBridge()
	}()

	a.scheduler.Start()

	logger.Infof("Agent running on http://localhost:%s", a.config.Server.Port)
	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			logger.Errorf("Server error: %v", err)
		}
	}()

	logger.Info("Agent orchestrator ready.")
	for {
		select {
		case <-a.ctx.Done():
			logger.Info("Agent orchestrator shutting down...")
			if a.dispatcher != nil {
				a.dispatcher.Stop()
			}
			return
		case ready := <-a.bridgeReady:
			a.onBridgeReady(ready)
		case cmd := <-a.commandChannel:
			a.handler.Handle(cmd)
		}
	}
}

// initBridge retries bridge initialization until it succeeds or the agent stops.
func (a *Agent) initBridge() {
	logger := log.WithComponent("agent")
	retry := a.config.Bridge.Retry()
	if retry <= 0 {
		retry = 5 * time.Second
	}

	for {
		initial, err := a.hueClient.Init(a.ctx)
		if err == nil {
			select {
			case a.bridgeReady <- bridgeInit{lightID: a.hueClient.LightID(), initial: initial}:
			case <-a.ctx.Done():
			}
			return
		}
		logger.Warnf("Bridge initialization failed: %v. Retrying in %s", err, retry)

		select {
		case <-a.ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// onBridgeReady seeds the state and starts dispatching. Intents are accepted from here on.
func (a *Agent) onBridgeReady(ready bridgeInit) {
	a.dispatcher = dispatch.New(a.hueClient, []string{ready.lightID}, a.config.DispatchInterval())
	a.handler.SetQueue(a.dispatcher)
	a.dispatcher.Start()

	a.state.Seed(ready.lightID, ready.initial)
	snapshot := a.state.Clone()
	log.WithComponent("agent").Infof("Bridge ready, driving light %s", ready.lightID)
	a.eventBus.Publish(core.Event{Type: core.BridgeReadyEvent, Payload: snapshot.Payload()})
}

func (a *Agent) listenEvents(sub core.Subscriber) {
	defer a.eventBus.Unsubscribe(sub, core.PatternChangedEvent)
	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			if payload, ok := event.Payload.(map[string]interface{}); ok {
				if pattern, ok := payload["running"].(string); ok {
					a.state.SetRunningPattern(pattern)
				}
			}
		}
	}
}

// DeviceState implements server.Snapshot.
func (a *Agent) DeviceState() map[string]interface{} {
	snapshot := a.state.Clone()
	return snapshot.Payload()
}

// Patterns implements server.Snapshot.
func (a *Agent) Patterns() ([]string, error) {
	return a.luaEngine.GetPatternList()
}

// RunningPattern implements server.Snapshot.
func (a *Agent) RunningPattern() string {
	return a.state.Clone().RunningPattern
}

// Schedules implements server.Snapshot.
func (a *Agent) Schedules() interface{} {
	return a.scheduler.GetAll()
}

// Shutdown stops dispatching first, then every producer. Run must have been started.
func (a *Agent) Shutdown() {
	a.cancel()
	<-a.done

	a.scheduler.Stop()
	a.luaEngine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		log.WithComponent("agent").Warnf("Server shutdown: %v", err)
	}
	a.mqttClient.Disconnect()
	a.wg.Wait()
}
