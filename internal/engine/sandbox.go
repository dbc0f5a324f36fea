// ABOUTME: Sandbox wrapping one agent's goja VM, event loop, and capability surface
// ABOUTME: Exposes session, log, timers, and cron to the script; nothing else from the host

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/robfig/cron/v3"

	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/session"
	"github.com/2389/argon/internal/store"
)

// Sandbox runs one agent's compiled action inside an isolated goja VM. All
// script code, including timer and cron callbacks, executes on a single
// event-loop goroutine; the VM is never touched from anywhere else. The
// capability surface injected into the VM is the impersonated session, a
// logger, and scheduling primitives. No host, filesystem, or cross-agent
// access is exposed.
type Sandbox struct {
	Agent *store.Agent

	program *goja.Program
	session *session.Session
	vm      *goja.Runtime
	jobs    chan func()
	quit    chan struct{}
	crontab *cron.Cron
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	timerMu sync.Mutex
	timerID int64
	timers  map[int64]func()

	stopOnce sync.Once
}

func newSandbox(agent *store.Agent, program *goja.Program, impersonated *session.Session) *Sandbox {
	ctx, cancel := context.WithCancel(context.Background())

	sb := &Sandbox{
		Agent:   agent,
		program: program,
		session: impersonated,
		vm:      goja.New(),
		jobs:    make(chan func(), 64),
		quit:    make(chan struct{}),
		crontab: cron.New(),
		logger:  slog.Default().With("component", "sandbox", "agent", agent.Name),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[int64]func()),
	}

	sb.install()
	return sb
}

// Start launches the event loop and cron scheduler, then evaluates the
// agent's script and returns its result. An exception thrown by the script
// surfaces as the returned error; work the script scheduled before throwing
// keeps running until Stop.
func (sb *Sandbox) Start(ctx context.Context) error {
	go sb.loop()
	sb.crontab.Start()

	errCh := make(chan error, 1)
	sb.enqueue(func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("script panic: %v", r)
			}
		}()
		_, err := sb.vm.RunProgram(sb.program)
		errCh <- err
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-sb.quit:
		return nil
	}
}

// Stop cancels in-flight session calls, stops cron entries and timers, and
// shuts down the event loop. Safe to call more than once.
func (sb *Sandbox) Stop() {
	sb.stopOnce.Do(func() {
		sb.crontab.Stop()
		sb.cancel()
		close(sb.quit)

		sb.timerMu.Lock()
		timers := sb.timers
		sb.timers = nil
		sb.timerMu.Unlock()
		for _, stop := range timers {
			stop()
		}
	})
}

// loop is the sandbox's single execution thread for all script code.
func (sb *Sandbox) loop() {
	for {
		select {
		case <-sb.quit:
			return
		case job := <-sb.jobs:
			sb.runJob(job)
		}
	}
}

// runJob confines a panicking callback to this sandbox.
func (sb *Sandbox) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			sb.logger.Error("agent callback panicked", "panic", r)
		}
	}()
	job()
}

func (sb *Sandbox) enqueue(job func()) {
	select {
	case sb.jobs <- job:
	case <-sb.quit:
	}
}

// callback invokes a script function on the event loop, logging thrown
// exceptions against this agent.
func (sb *Sandbox) callback(kind string, fn goja.Callable) {
	sb.enqueue(func() {
		if _, err := fn(goja.Undefined()); err != nil {
			sb.logger.Error("agent callback threw exception", "kind", kind, "error", err)
		}
	})
}

// install wires the capability surface into the VM.
func (sb *Sandbox) install() {
	logObj := sb.vm.NewObject()
	_ = logObj.Set("info", sb.logFn(slog.LevelInfo))
	_ = logObj.Set("warn", sb.logFn(slog.LevelWarn))
	_ = logObj.Set("error", sb.logFn(slog.LevelError))
	_ = sb.vm.Set("log", logObj)

	sessObj := sb.vm.NewObject()
	_ = sessObj.Set("principal", string(sb.session.Principal.ID))
	_ = sessObj.Set("send", sb.jsSend)
	_ = sessObj.Set("find", sb.jsFind)
	_ = sessObj.Set("remove", sb.jsRemove)
	_ = sb.vm.Set("session", sessObj)

	_ = sb.vm.Set("setTimeout", sb.jsSetTimeout)
	_ = sb.vm.Set("setInterval", sb.jsSetInterval)
	_ = sb.vm.Set("clearTimeout", sb.jsClearTimer)
	_ = sb.vm.Set("clearInterval", sb.jsClearTimer)
	_ = sb.vm.Set("cron", sb.jsCron)
}

func (sb *Sandbox) logFn(level slog.Level) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		sb.logger.Log(context.Background(), level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (sb *Sandbox) jsSend(call goja.FunctionCall) goja.Value {
	raw, ok := call.Argument(0).Export().(map[string]any)
	if !ok {
		panic(sb.vm.NewTypeError("send requires a message object"))
	}

	msg := &store.Message{}
	if v, ok := raw["to"].(string); ok {
		msg.To = principal.ID(v)
	}
	if v, ok := raw["type"].(string); ok {
		msg.Type = v
	}
	if v, ok := raw["link"].(string); ok {
		msg.Link = v
	}
	if v, ok := raw["body"].(map[string]any); ok {
		msg.Body = v
	}
	if t, ok := toTime(raw["index_until"]); ok {
		msg.IndexUntil = t
	}

	created, err := sb.session.SendMessage(sb.ctx, msg)
	if err != nil {
		panic(sb.vm.NewGoError(err))
	}
	return sb.vm.ToValue(messageToJS(created[0]))
}

func (sb *Sandbox) jsFind(call goja.FunctionCall) goja.Value {
	filter := store.MessageFilter{}
	if raw, ok := call.Argument(0).Export().(map[string]any); ok {
		filter.From = raw["from"]
		filter.To = raw["to"]
		if v, ok := raw["type"].(string); ok {
			filter.Type = v
		}
	}

	opts := store.FindOptions{}
	if raw, ok := call.Argument(1).Export().(map[string]any); ok {
		opts.Limit = toInt(raw["limit"])
		opts.Skip = toInt(raw["skip"])
	}

	found, err := sb.session.FindMessages(sb.ctx, filter, opts)
	if err != nil {
		panic(sb.vm.NewGoError(err))
	}

	out := make([]any, len(found))
	for i, msg := range found {
		out[i] = messageToJS(msg)
	}
	return sb.vm.ToValue(out)
}

func (sb *Sandbox) jsRemove(call goja.FunctionCall) goja.Value {
	query := store.RemoveQuery{}
	if raw, ok := call.Argument(0).Export().(map[string]any); ok {
		query.From = raw["from"]
		if v, ok := raw["type"].(string); ok {
			query.Type = v
		}
		if t, ok := toTime(raw["index_until"]); ok {
			query.IndexUntil = &t
		}
		if t, ok := toTime(raw["index_until_before"]); ok {
			query.IndexUntilBefore = &t
		}
	}

	removed, err := sb.session.RemoveMessages(sb.ctx, query)
	if err != nil {
		panic(sb.vm.NewGoError(err))
	}
	return sb.vm.ToValue(removed)
}

func (sb *Sandbox) jsSetTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(sb.vm.NewTypeError("setTimeout requires a function"))
	}
	delay := toDelay(call.Argument(1))

	id := sb.nextTimerID()
	timer := time.AfterFunc(delay, func() {
		sb.popTimer(id)
		sb.callback("timeout", fn)
	})
	sb.addTimer(id, func() { timer.Stop() })

	return sb.vm.ToValue(id)
}

func (sb *Sandbox) jsSetInterval(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(sb.vm.NewTypeError("setInterval requires a function"))
	}
	delay := toDelay(call.Argument(1))

	id := sb.nextTimerID()
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sb.callback("interval", fn)
			case <-stop:
				return
			case <-sb.quit:
				return
			}
		}
	}()
	sb.addTimer(id, func() { close(stop) })

	return sb.vm.ToValue(id)
}

func (sb *Sandbox) jsClearTimer(call goja.FunctionCall) goja.Value {
	if stop, ok := sb.popTimer(call.Argument(0).ToInteger()); ok {
		stop()
	}
	return goja.Undefined()
}

func (sb *Sandbox) jsCron(call goja.FunctionCall) goja.Value {
	expr := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(sb.vm.NewTypeError("cron requires a function"))
	}

	entryID, err := sb.crontab.AddFunc(expr, func() {
		sb.callback("cron", fn)
	})
	if err != nil {
		panic(sb.vm.NewGoError(fmt.Errorf("invalid cron expression %q: %w", expr, err)))
	}
	return sb.vm.ToValue(int64(entryID))
}

func (sb *Sandbox) nextTimerID() int64 {
	sb.timerMu.Lock()
	defer sb.timerMu.Unlock()
	sb.timerID++
	return sb.timerID
}

func (sb *Sandbox) addTimer(id int64, stop func()) {
	sb.timerMu.Lock()
	defer sb.timerMu.Unlock()
	if sb.timers == nil {
		// Stopped already; cancel immediately.
		stop()
		return
	}
	sb.timers[id] = stop
}

func (sb *Sandbox) popTimer(id int64) (func(), bool) {
	sb.timerMu.Lock()
	defer sb.timerMu.Unlock()
	stop, ok := sb.timers[id]
	if ok {
		delete(sb.timers, id)
	}
	return stop, ok
}

// messageToJS converts a message into the plain object shape scripts see.
func messageToJS(msg *store.Message) map[string]any {
	out := map[string]any{
		"id":          msg.ID,
		"from":        string(msg.From),
		"type":        msg.Type,
		"body":        msg.Body,
		"body_length": msg.BodyLength,
		"index_until": msg.IndexUntil.UTC().Format(time.RFC3339),
		"created_at":  msg.CreatedAt.UTC().Format(time.RFC3339),
	}
	if msg.To != "" {
		out["to"] = string(msg.To)
	}
	if msg.Link != "" {
		out["link"] = msg.Link
	}
	return out
}

// toTime accepts a script-supplied timestamp: a Date (exported as time.Time)
// or an RFC3339 string.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// toDelay converts a script-supplied millisecond delay, clamping to 1ms. An
// omitted or non-numeric delay exports as NaN, which must also land on the
// floor: a NaN duration would panic time.NewTicker and take the process down
// with it.
func toDelay(v goja.Value) time.Duration {
	ms := v.ToFloat()
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 1 {
		ms = 1
	}
	return time.Duration(ms * float64(time.Millisecond))
}
