package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// ScheduleEntry defines the structure for a saved schedule.
type ScheduleEntry struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Scheduler manages all cron-related tasks.
type Scheduler struct {
	cron          *cron.Cron
	store         map[cron.EntryID]ScheduleEntry
	intents       core.CommandChannel
	mu            sync.RWMutex
	schedulesFile string

	quit     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler and loads the persisted schedules.
func NewScheduler(intents core.CommandChannel, schedulesFile string) *Scheduler {
	s := &Scheduler{
		cron:          cron.New(),
		store:         make(map[cron.EntryID]ScheduleEntry),
		intents:       intents,
		schedulesFile: schedulesFile,
		quit:          make(chan struct{}),
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithComponent("scheduler").Info("Cron scheduler started.")
}

// Stop halts the cron job ticker and waits for running jobs. Jobs still
// waiting to deliver their intent give up.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.cron.Stop().Done()
	log.WithComponent("scheduler").Info("Cron scheduler stopped.")
}

// ParseCommand turns a schedule command line into an intent. Accepted forms:
// "power on|off", "brightness 0-255", "color #RRGGBB|r,g,b", "pattern NAME", "stop".
func ParseCommand(command string) (core.Command, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return core.Command{}, fmt.Errorf("empty command")
	}
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case "power":
		switch strings.ToLower(arg) {
		case "on":
			return core.PowerIntent(true), nil
		case "off":
			return core.PowerIntent(false), nil
		}
		return core.Command{}, fmt.Errorf("power expects on or off, got %q", arg)
	case "brightness":
		v, err := strconv.ParseUint(arg, 10, 8)
		if err != nil {
			return core.Command{}, fmt.Errorf("brightness expects 0-255: %w", err)
		}
		return core.BrightnessIntent(int(v)), nil
	case "color":
		c, err := core.ParseHex(arg)
		if err != nil {
			c, err = core.ParseRGBList(arg)
		}
		if err != nil {
			return core.Command{}, err
		}
		return core.ColorIntent(c), nil
	case "pattern":
		if arg == "" {
			return core.Command{}, fmt.Errorf("pattern expects a name")
		}
		return core.Command{Type: core.CmdRunPattern, Payload: map[string]interface{}{"name": arg}}, nil
	case "stop":
		return core.Command{Type: core.CmdStopPattern}, nil
	}
	return core.Command{}, fmt.Errorf("unknown command %q", parts[0])
}

// Add creates a new cron job.
func (s *Scheduler) Add(spec, command string) (cron.EntryID, error) {
	if _, err := ParseCommand(command); err != nil {
		return 0, fmt.Errorf("invalid schedule command: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("invalid schedule spec %q: %w", spec, err)
	}
	s.store[id] = ScheduleEntry{Spec: spec, Command: command}
	s.save()
	log.WithComponent("scheduler").Infof("Added schedule (ID %d): %s -> %s", id, spec, command)
	return id, nil
}

// Remove deletes a cron job.
func (s *Scheduler) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	log.WithComponent("scheduler").Infof("Removed schedule (ID %d)", id)
}

// GetAll returns a copy of the current schedules.
func (s *Scheduler) GetAll() map[cron.EntryID]ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[cron.EntryID]ScheduleEntry, len(s.store))
	for k, v := range s.store {
		out[k] = v
	}
	return out
}

func (s *Scheduler) execute(command string) {
	logger := log.WithComponent("scheduler")
	cmd, err := ParseCommand(command)
	if err != nil {
		logger.Warnf("Skipping scheduled command %q: %v", command, err)
		return
	}
	logger.Infof("Executing scheduled command: %s", command)
	select {
	case s.intents <- cmd:
	case <-s.quit:
		logger.Warnf("Scheduler stopped, dropping %q", command)
	}
}

// save writes the store to disk. s.mu must be held.
func (s *Scheduler) save() {
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		log.WithComponent("scheduler").Errorf("Error marshalling schedules: %v", err)
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0o644); err != nil {
		log.WithComponent("scheduler").Errorf("Error writing schedule file: %v", err)
	}
}

func (s *Scheduler) load() {
	logger := log.WithComponent("scheduler")
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Errorf("Error reading schedule file: %v", err)
		}
		return
	}

	stored := make(map[cron.EntryID]ScheduleEntry)
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Errorf("Error unmarshalling schedule file: %v", err)
		return
	}

	logger.Infof("Loading %d schedules from file '%s'...", len(stored), s.schedulesFile)
	for _, entry := range stored {
		entry := entry
		newID, err := s.cron.AddFunc(entry.Spec, func() { s.execute(entry.Command) })
		if err != nil {
			logger.Warnf("Error re-adding schedule from file: %v", err)
			continue
		}
		s.store[newID] = entry
	}
}
