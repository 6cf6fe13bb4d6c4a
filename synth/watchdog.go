package synth

import (
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultExecLimit bounds each uninterrupted stretch of interface script.
// Time spent inside suspended host calls does not count.
const DefaultExecLimit = 5 * time.Second

// ErrExecTimeout is returned when a script runs past the limit and is
// interrupted.
var ErrExecTimeout = errors.New("execution timed out")

var execLimit = DefaultExecLimit

const watchdogKey = "__hcWatchdog"

// watchdog interrupts the runtime when script runs too long. gen
// invalidates timers that fire after stop or suspend.
type watchdog struct {
	vm    *goja.Runtime
	limit time.Duration

	mu        sync.Mutex
	gen       int
	active    bool
	suspended int
	timer     *time.Timer
}

func newWatchdog(vm *goja.Runtime) (*watchdog, error) {
	w := &watchdog{vm: vm, limit: execLimit}
	err := vm.GlobalObject().DefineDataProperty(watchdogKey, vm.ToValue(w), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	return w, err
}

// start arms the watchdog for one entry into the runtime.
func (w *watchdog) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = true
	w.suspended = 0
	w.armLocked()
}

// stop disarms it and clears any interrupt left pending.
func (w *watchdog) stop() {
	w.mu.Lock()
	w.active = false
	w.disarmLocked()
	w.mu.Unlock()
	w.vm.ClearInterrupt()
}

func (w *watchdog) armLocked() {
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.limit, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.gen == gen && w.active && w.suspended == 0 {
			w.vm.Interrupt(ErrExecTimeout)
		}
	})
}

func (w *watchdog) disarmLocked() {
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *watchdog) suspend() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return func() {}
	}
	w.suspended++
	if w.suspended == 1 {
		w.disarmLocked()
	}
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.active || w.suspended == 0 {
			return
		}
		w.suspended--
		if w.suspended == 0 {
			w.armLocked()
		}
	}
}

// Suspend pauses the execution limit of vm while a host function blocks,
// for example on a model call. The returned func resumes it with a fresh
// budget:
//
//	defer synth.Suspend(vm)()
func Suspend(vm *goja.Runtime) (resume func()) {
	v := vm.GlobalObject().Get(watchdogKey)
	if v == nil {
		return func() {}
	}
	w, ok := v.Export().(*watchdog)
	if !ok {
		return func() {}
	}
	return w.suspend()
}
