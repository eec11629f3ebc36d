package controlplane

import (
	"context"
	"sync"

	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/logging"
	"github.com/hupe1980/runmesh/metrics"
)

// CallbackType names a control plane lifecycle point.
type CallbackType string

const (
	// CallbackRunCreated fires after a run was queued.
	CallbackRunCreated CallbackType = "run_created"
	// CallbackRunDispatched fires after a run was dispatched and its job submitted.
	CallbackRunDispatched CallbackType = "run_dispatched"
	// CallbackDispatchBlocked fires when the limiter sent a run back to the queue.
	CallbackDispatchBlocked CallbackType = "dispatch_blocked"
	// CallbackRunCanceled fires after a cancel request was applied.
	CallbackRunCanceled CallbackType = "run_canceled"
	// CallbackOnError fires when submitting or canceling a job failed.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the lifecycle point a callback runs for.
type CallbackContext struct {
	Type CallbackType
	Run  core.Run
	// Job is set for dispatch callbacks.
	Job    *core.RunnerJob
	Active int
	Max    int
	// QueueLen is the queue length after the operation.
	QueueLen int
	Err      error
}

// Callback observes control plane lifecycle points. Callbacks run
// synchronously after the state change; a returned error is logged and does
// not undo the change.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback adapts a function to Callback.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a function-based callback for callbackType.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// CallbackManager routes lifecycle points to registered callbacks in
// registration order. Safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callbacks.
func (cm *CallbackManager) RegisterCallback(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// ExecuteCallbacks runs the callbacks registered for cc.Type and stops at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, cc *CallbackContext) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[cc.Type]
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cc); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallbacks logs every lifecycle point at debug level, errors at error
// level. Dispatch outcomes go through LogDispatch when the logger provides it.
func LoggingCallbacks(logger logging.Logger) []Callback {
	logger = logging.OrNoOp(logger)

	log := func(ctx context.Context, cc *CallbackContext) error {
		args := []any{"run_id", cc.Run.ID, "session_id", cc.Run.SessionID, "status", string(cc.Run.Status), "active", cc.Active, "max", cc.Max}
		if cc.Job != nil {
			args = append(args, "job_id", cc.Job.JobID)
		}
		if cc.Err != nil {
			logger.Error("controlplane."+string(cc.Type), append(args, "error", cc.Err)...)
			return nil
		}
		if dl, ok := logger.(logging.DispatchLogger); ok && (cc.Type == CallbackRunDispatched || cc.Type == CallbackDispatchBlocked) {
			dl.LogDispatch(cc.Run.ID, cc.Type == CallbackRunDispatched, cc.Active, cc.Max)
			return nil
		}
		logger.Debug("controlplane."+string(cc.Type), args...)
		return nil
	}

	return []Callback{
		NewFunctionCallback(CallbackRunCreated, log),
		NewFunctionCallback(CallbackRunDispatched, log),
		NewFunctionCallback(CallbackDispatchBlocked, log),
		NewFunctionCallback(CallbackRunCanceled, log),
		NewFunctionCallback(CallbackOnError, log),
	}
}

// MetricsCallbacks feeds m from lifecycle points.
func MetricsCallbacks(m *metrics.Metrics) []Callback {
	gauges := func(cc *CallbackContext) {
		m.SetActive(cc.Active)
		m.SetQueueDepth(cc.QueueLen)
	}

	return []Callback{
		NewFunctionCallback(CallbackRunCreated, func(_ context.Context, cc *CallbackContext) error {
			m.RunCreated()
			gauges(cc)
			return nil
		}),
		NewFunctionCallback(CallbackRunDispatched, func(_ context.Context, cc *CallbackContext) error {
			m.DispatchAttempt("dispatched")
			gauges(cc)
			return nil
		}),
		NewFunctionCallback(CallbackDispatchBlocked, func(_ context.Context, cc *CallbackContext) error {
			m.DispatchAttempt("blocked")
			gauges(cc)
			return nil
		}),
		NewFunctionCallback(CallbackRunCanceled, func(_ context.Context, cc *CallbackContext) error {
			gauges(cc)
			return nil
		}),
	}
}
