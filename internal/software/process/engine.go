package process

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// Engine runs saga instances persisted through the instance repository.
// Every operation joins the caller's unit of work, so instance rows, history and the
// work items run on entry commit or roll back together with the caller's writes.
type Engine struct {
	logger      *logger.Logger
	uow         ports.UnitOfWork
	instances   ports.SagaInstanceRepository
	history     ports.SagaHistoryRepository
	definitions map[string]saga.Definition
	handlers    map[string]ports.WorkItemHandler
	now         func() time.Time
}

var _ ports.ProcessEngine = (*Engine)(nil)

// NewEngine creates an engine serving the given process definitions.
// handlers maps work item names (saga.WorkItemSendMessage, ...) to their executors.
func NewEngine(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	instances ports.SagaInstanceRepository,
	history ports.SagaHistoryRepository,
	handlers map[string]ports.WorkItemHandler,
	definitions ...saga.Definition,
) *Engine {
	defs := make(map[string]saga.Definition, len(definitions))
	for _, def := range definitions {
		defs[def.ID] = def
	}
	return &Engine{
		logger:      logger,
		uow:         uow,
		instances:   instances,
		history:     history,
		definitions: defs,
		handlers:    maps.Clone(handlers),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for timers.
func (engine *Engine) WithClock(now func() time.Time) *Engine {
	engine.now = now
	return engine
}

// StartSaga creates the instance for key in the initial state of processID.
func (engine *Engine) StartSaga(ctx context.Context, processID string, key saga.CorrelationKey, params map[string]any) (saga.InstanceRef, error) {
	def, ok := engine.definitions[processID]
	if !ok {
		return saga.InstanceRef{}, fmt.Errorf("process: %w: %q", saga.ErrUnknownProcess, processID)
	}
	if key.IsZero() {
		return saga.InstanceRef{}, fmt.Errorf("process: %w", saga.ErrEmptyCorrelation)
	}

	instance := &saga.Instance{
		ProcessID: def.ID,
		Key:       key,
		State:     def.Initial,
		Params:    maps.Clone(params),
	}
	if instance.Params == nil {
		instance.Params = map[string]any{}
	}

	err := engine.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := engine.armTimer(def, instance); err != nil {
			return err
		}
		if err := engine.instances.Insert(ctx, instance); err != nil {
			return fmt.Errorf("process: insert instance: %w", err)
		}
		if err := engine.record(ctx, instance, "", saga.TriggerStart, ""); err != nil {
			return err
		}
		return engine.runEntry(ctx, def, instance)
	})
	if err != nil {
		return saga.InstanceRef{}, err
	}

	engine.logger.Info(ctx, "saga_started", "Saga instance started", map[string]any{
		"instance_id": instance.ID,
		"process_id":  instance.ProcessID,
		"state":       instance.State,
		"expires_at":  instance.ExpiresAt,
	})
	return instance.Ref(), nil
}

// Signal moves the instance for key along the transition named by signal.
// payload is merged into the instance parameters before entry work items run.
// A signal the current state does not accept leaves the instance untouched and returns saga.ErrNoTransition,
// so callers sharing the unit of work can roll their own changes back.
func (engine *Engine) Signal(ctx context.Context, key saga.CorrelationKey, signal saga.Signal, payload map[string]any) error {
	return engine.uow.WithinTx(ctx, func(ctx context.Context) error {
		instance, err := engine.instances.FindByKey(ctx, key, true)
		if err != nil {
			return fmt.Errorf("process: signal %s: %w", signal, err)
		}
		def, ok := engine.definitions[instance.ProcessID]
		if !ok {
			return fmt.Errorf("process: %w: %q", saga.ErrUnknownProcess, instance.ProcessID)
		}

		next, ok := def.Next(instance.State, signal)
		if !ok {
			return fmt.Errorf("process: signal %s in state %s: %w", signal, instance.State, saga.ErrNoTransition)
		}

		if instance.Params == nil {
			instance.Params = map[string]any{}
		}
		maps.Copy(instance.Params, payload)
		return engine.transition(ctx, def, instance, next, saga.TriggerSignal, string(signal))
	})
}

// GetInstance returns the current reference of the instance for key.
func (engine *Engine) GetInstance(ctx context.Context, key saga.CorrelationKey) (saga.InstanceRef, error) {
	var ref saga.InstanceRef
	err := engine.uow.WithinTx(ctx, func(ctx context.Context) error {
		instance, err := engine.instances.FindByKey(ctx, key, false)
		if err != nil {
			return err
		}
		ref = instance.Ref()
		return nil
	})
	return ref, err
}

// FireDueTimers fires up to limit expired timers, one unit of work per instance.
// It returns how many instances moved.
func (engine *Engine) FireDueTimers(ctx context.Context, limit int) (int, error) {
	fired := 0
	for fired < limit {
		claimed := false
		err := engine.uow.WithinTx(ctx, func(ctx context.Context) error {
			due, err := engine.instances.ClaimExpired(ctx, engine.now(), 1)
			if err != nil {
				return fmt.Errorf("process: claim expired: %w", err)
			}
			if len(due) == 0 {
				return nil
			}
			claimed = true
			return engine.fireTimer(ctx, due[0])
		})
		if err != nil {
			return fired, err
		}
		if !claimed {
			return fired, nil
		}
		fired++
	}
	return fired, nil
}

// RunTimers polls for due timers every interval until ctx ends.
func (engine *Engine) RunTimers(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fired, err := engine.FireDueTimers(ctx, batch)
			if err != nil && !errors.Is(err, context.Canceled) {
				engine.logger.Error(ctx, "saga_timer_failed", "Failed to fire expiry timers", err, map[string]any{"fired": fired})
				continue
			}
			if fired > 0 {
				engine.logger.Info(ctx, "saga_timers_fired", "Expiry timers fired", map[string]any{"fired": fired})
			}
		}
	}
}

func (engine *Engine) fireTimer(ctx context.Context, instance *saga.Instance) error {
	ctx = logger.WithRideID(ctx, instance.Key.String())
	def, ok := engine.definitions[instance.ProcessID]
	if !ok {
		return fmt.Errorf("process: %w: %q", saga.ErrUnknownProcess, instance.ProcessID)
	}

	target, ok := def.TimerTarget(instance.State)
	if !ok {
		// stale timer left on a state that no longer has one
		instance.ExpiresAt = nil
		return engine.instances.Update(ctx, instance)
	}
	return engine.transition(ctx, def, instance, target, saga.TriggerTimer, "expiry")
}

func (engine *Engine) transition(ctx context.Context, def saga.Definition, instance *saga.Instance, to saga.State, trigger saga.Trigger, name string) error {
	from := instance.State
	instance.State = to
	instance.ExpiresAt = nil
	if err := engine.armTimer(def, instance); err != nil {
		return err
	}
	if err := engine.instances.Update(ctx, instance); err != nil {
		return fmt.Errorf("process: update instance: %w", err)
	}
	if err := engine.record(ctx, instance, from, trigger, name); err != nil {
		return err
	}

	engine.logger.Info(ctx, "saga_transition", fmt.Sprintf("Saga moved %s -> %s", from, to), map[string]any{
		"instance_id": instance.ID,
		"trigger":     trigger,
		"name":        name,
	})
	return engine.runEntry(ctx, def, instance)
}

// armTimer sets ExpiresAt when the current state carries the expiry timer.
func (engine *Engine) armTimer(def saga.Definition, instance *saga.Instance) error {
	if !def.HasTimer(instance.State) {
		return nil
	}
	d, err := saga.ParseExpiry(instance.Params[saga.ParamExpiryDuration])
	if err != nil {
		return fmt.Errorf("process: state %s: %w", instance.State, err)
	}
	at := engine.now().Add(d)
	instance.ExpiresAt = &at
	return nil
}

func (engine *Engine) record(ctx context.Context, instance *saga.Instance, from saga.State, trigger saga.Trigger, name string) error {
	err := engine.history.Append(ctx, &saga.Transition{
		InstanceID: instance.ID,
		From:       from,
		To:         instance.State,
		Trigger:    trigger,
		Name:       name,
	})
	if err != nil {
		return fmt.Errorf("process: record transition: %w", err)
	}
	return nil
}

// runEntry executes the work items declared on entry of the instance's state, in order.
func (engine *Engine) runEntry(ctx context.Context, def saga.Definition, instance *saga.Instance) error {
	for _, spec := range def.OnEntry(instance.State) {
		handler, ok := engine.handlers[spec.Name]
		if !ok {
			return fmt.Errorf("process: no handler registered for work item %q", spec.Name)
		}

		params := maps.Clone(instance.Params)
		maps.Copy(params, spec.Params)
		item := saga.WorkItem{
			InstanceID: instance.ID,
			ProcessID:  instance.ProcessID,
			Key:        instance.Key,
			State:      instance.State,
			Name:       spec.Name,
			Params:     params,
		}

		result, err := handler.Execute(ctx, item)
		if err != nil {
			return fmt.Errorf("process: work item %s on %s: %w", spec.Name, instance.State, err)
		}
		engine.logger.Debug(ctx, "work_item_completed", "Work item completed", map[string]any{
			"instance_id": instance.ID,
			"work_item":   spec.Name,
			"state":       instance.State,
			"result":      result,
		})
	}
	return nil
}
