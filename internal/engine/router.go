package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/duewatch/internal/model"
)

// Reply is the outcome of one inbound command.
type Reply struct {
	Command string    `json:"command"`
	OK      bool      `json:"ok"`
	Data    any       `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
}

// Err returns the reply's failure as an error, or nil when OK.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	return &Error{Code: r.Code, Command: r.Command, Message: r.Error}
}

func failure(command string, err error) Reply {
	r := Reply{Command: command, OK: false, Error: err.Error()}
	var ee *Error
	if errors.As(err, &ee) {
		r.Code = ee.Code
	}
	return r
}

// handleMessage decodes raw and dispatches it to one handler.
//
// Rejected messages are logged and answered with a failed Reply; they never
// affect later messages.
func (e *Engine) handleMessage(ctx context.Context, raw []byte) Reply {
	msg, err := e.decoder.Decode(raw)
	if err != nil {
		var ee *Error
		cmd := ""
		if errors.As(err, &ee) {
			cmd = ee.Command
		}
		slog.Warn("inbound message rejected", "command", cmd, "error", err)
		return failure(cmd, err)
	}

	data, err := e.dispatch(ctx, msg)
	if err != nil {
		if !IsNotActive(err) {
			err = handlerFailed(msg.Command(), err)
		}
		slog.Error("command failed", "command", msg.Command(), "error", err)
		return failure(msg.Command(), err)
	}

	slog.Debug("command handled", "command", msg.Command())
	return Reply{Command: msg.Command(), OK: true, Data: data}
}

// dispatch runs the handler for msg, converting a panic into an error.
func (e *Engine) dispatch(ctx context.Context, msg Message) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch m := msg.(type) {
	case ScheduleSync:
		return nil, e.registerSync(ctx, m.Tag)

	case SaveData:
		return nil, e.saveData(ctx, m)

	case ScheduleNotification:
		return e.scheduleNotification(ctx, m)

	case CancelNotification:
		removed, err := e.cancelNotifications(ctx, m.Tag)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": removed}, nil

	case ForceCheck:
		active, err := e.ensureActive(ctx)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, notActive(CmdForceCheck)
		}
		report := e.runCycle(ctx, TriggerManual)
		return report, nil

	case ActivateNow:
		if err := e.activateNow(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"instance": e.instance}, nil

	case DebugConfig:
		return e.settings.Debug(ctx)

	default:
		return nil, unknownCommand(msg.Command())
	}
}

// saveData persists m.Data into collection m.Key under m.ID or "current".
func (e *Engine) saveData(ctx context.Context, m SaveData) error {
	key := m.ID
	if key == "" {
		key = model.KeyCurrent
	}
	if err := e.store.Put(ctx, m.Key, key, m.Data); err != nil {
		return fmt.Errorf("save %s/%s: %w", m.Key, key, err)
	}
	slog.Info("data saved", "collection", m.Key, "key", key, "bytes", len(m.Data))
	return nil
}
