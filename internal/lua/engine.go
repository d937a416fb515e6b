// Package lua runs user pattern scripts. Scripts drive the light through the
// same intent channel as every other producer, so their output is subject to
// the agent's guards and to command coalescing.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// cmdType defines the type of engine command.
type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdRunString
	cmdStop
)

// engineCmd represents a command sent to the Lua engine.
type engineCmd struct {
	kind cmdType
	name string
	code string
}

// Engine manages the Lua scripting environment using a single worker goroutine
// to ensure only one pattern runs at a time.
type Engine struct {
	intents     core.CommandChannel
	patternsDir string
	eventBus    *core.EventBus

	cmdChan chan engineCmd
	quit    chan struct{}
	done    chan struct{}
}

// NewEngine creates a new Lua engine and starts its background worker.
func NewEngine(intents core.CommandChannel, patternsDir string, eb *core.EventBus) *Engine {
	e := &Engine{
		intents:     intents,
		patternsDir: patternsDir,
		eventBus:    eb,
		cmdChan:     make(chan engineCmd, 10),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	go e.runLoop()

	return e
}

// runLoop is the main worker loop that processes engine commands sequentially.
func (e *Engine) runLoop() {
	defer close(e.done)

	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	stopCurrent := func() {
		if currentCancel == nil {
			return
		}
		currentCancel()
		select {
		case <-scriptDone:
		case <-time.After(2 * time.Second):
			log.WithComponent("lua").Warn("Timeout waiting for script to stop")
		}
		currentCancel = nil
		scriptDone = nil
	}

	for {
		var cmd engineCmd
		select {
		case <-e.quit:
			stopCurrent()
			return
		case cmd = <-e.cmdChan:
		}

		stopCurrent()
		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go func(cmd engineCmd, ctx context.Context, done chan struct{}) {
			defer close(done)
			switch cmd.kind {
			case cmdRunFile:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoFile(cmd.code) })
			case cmdRunString:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoString(cmd.code) })
			}
		}(cmd, ctx, scriptDone)
	}
}

// Close stops the running script and the worker.
func (e *Engine) Close() {
	select {
	case <-e.quit:
	default:
		close(e.quit)
	}
	<-e.done
}

func (e *Engine) submit(cmd engineCmd) bool {
	select {
	case e.cmdChan <- cmd:
		return true
	case <-e.quit:
		return false
	}
}

// StopCurrentPattern stops the currently running script if any.
func (e *Engine) StopCurrentPattern() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		log.WithComponent("lua").Warn("Command channel full, could not send stop command")
	}
}

// RunPattern queues the pattern file name for execution, replacing any running script.
func (e *Engine) RunPattern(name string) error {
	scriptPath, err := e.GetPatternPath(name)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}
	e.submit(engineCmd{kind: cmdRunFile, name: name, code: scriptPath})
	return nil
}

// ExecuteString queues a one-off Lua chunk for execution.
func (e *Engine) ExecuteString(code string) {
	e.submit(engineCmd{kind: cmdRunString, name: "single line command", code: code})
}

// sanitizeFilename checks for directory traversal and ensures a valid .lua extension.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", fmt.Errorf("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName != name || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", fmt.Errorf("invalid filename")
	}
	return cleanName, nil
}

// GetPatternPath returns the path of a pattern file within the patterns directory.
func (e *Engine) GetPatternPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.patternsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create patterns directory: %w", err)
	}
	return filepath.Join(e.patternsDir, cleanName), nil
}

// GetPatternCode reads and returns the source code of a pattern file.
func (e *Engine) GetPatternCode(name string) (string, error) {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SavePatternCode writes the provided Lua source code to a pattern file.
func (e *Engine) SavePatternCode(name, code string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0o644)
}

// DeletePattern removes a pattern file by name.
func (e *Engine) DeletePattern(name string) error {
	path, err := e.GetPatternPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// GetPatternList returns the .lua files in the patterns directory.
func (e *Engine) GetPatternList() ([]string, error) {
	patterns := []string{}
	files, err := os.ReadDir(e.patternsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return patterns, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			patterns = append(patterns, file.Name())
		}
	}
	return patterns, nil
}

func (e *Engine) publishRunning(name string) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(core.Event{
		Type:    core.PatternChangedEvent,
		Payload: map[string]interface{}{"running": name},
	})
}

// execute runs Lua code in a fresh state bound to ctx.
func (e *Engine) execute(ctx context.Context, name string, executor func(*lua.LState) error) {
	logger := log.WithComponent("lua")
	logger.Infof("Starting pattern '%s'...", name)
	e.publishRunning(name)

	defer func() {
		logger.Infof("Pattern '%s' finished.", name)
		e.publishRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(L, ctx)

	if err := executor(L); err != nil {
		if ctx.Err() != nil {
			logger.Infof("Pattern '%s' execution was canceled.", name)
		} else {
			logger.Errorf("Error executing pattern '%s': %v", name, err)
		}
	}
}
