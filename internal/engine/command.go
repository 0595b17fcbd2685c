package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketgate/mp-gateway/internal/model"
	"github.com/marketgate/mp-gateway/internal/policy"
	"github.com/marketgate/mp-gateway/internal/remote"
	"github.com/marketgate/mp-gateway/internal/util"
)

var (
	// ErrCommandInFlight: a command with the same idempotency key is still
	// running; the caller must wait for its terminal state.
	ErrCommandInFlight = errors.New("command with this idempotency key is in flight")
	ErrInvalidCommand  = errors.New("invalid command request")
)

// CommandRequest is one write action. IdempotencyKey is mandatory:
// resubmission with the same key returns the stored result instead of
// repeating the remote side effect.
type CommandRequest struct {
	ConnectionID   int64
	Type           model.CommandType
	TargetID       string
	IdempotencyKey string
	Actor          string
	Payload        []byte
}

// CommandHandler executes exactly one write action once, with observable
// audit.
type CommandHandler struct {
	conns    ConnectionStore
	commands CommandStore
	remote   remote.Client

	profile policy.Profile
	sleep   sleepFunc
	log     *zap.Logger
}

func NewCommandHandler(conns ConnectionStore, commands CommandStore, client remote.Client,
	profile policy.Profile, log *zap.Logger) *CommandHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandHandler{
		conns:    conns,
		commands: commands,
		remote:   client,
		profile:  profile,
		sleep:    sleepContext,
		log:      log,
	}
}

// Execute runs the command. replayed=true means an earlier submission with
// the same key already reached a terminal state and its stored row is
// returned unchanged; the remote call is not repeated. A failed command is
// returned with Status=failed and a nil error: the submission itself
// succeeded and the caller inspects the stored outcome.
func (h *CommandHandler) Execute(ctx context.Context, req CommandRequest) (cmd *model.Command, replayed bool, err error) {
	if err := validate(req); err != nil {
		return nil, false, err
	}

	existing, err := h.commands.GetByKey(ctx, req.ConnectionID, req.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		if existing.Status.Terminal() {
			return existing, true, nil
		}
		return nil, false, ErrCommandInFlight
	}

	conn, err := h.conns.GetByID(ctx, req.ConnectionID)
	if err != nil {
		return nil, false, fmt.Errorf("load connection %d: %w", req.ConnectionID, err)
	}
	if conn == nil {
		return nil, false, fmt.Errorf("connection %d not found", req.ConnectionID)
	}

	c := &model.Command{
		ID:             util.NewID(),
		ConnectionID:   req.ConnectionID,
		Type:           req.Type,
		TargetID:       req.TargetID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         model.CommandRunning,
		Actor:          req.Actor,
		Request:        req.Payload,
	}
	created, err := h.commands.CreateRunning(ctx, c)
	if err != nil {
		return nil, false, fmt.Errorf("create command: %w", err)
	}
	if !created {
		// Lost the unique-key race to a concurrent submission.
		winner, err := h.commands.GetByKey(ctx, req.ConnectionID, req.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if winner != nil && winner.Status.Terminal() {
			return winner, true, nil
		}
		return nil, false, ErrCommandInFlight
	}

	resp, callErr := callRemote(ctx, h.profile, h.sleep, func(ctx context.Context) (remote.Response, error) {
		return h.remote.Execute(ctx, conn, req.Type, req.TargetID, req.Payload)
	})
	if callErr != nil {
		// The remote error body stays verbatim in the command row so the
		// caller can distinguish the exact reason; a retryable classification
		// invites a resubmission under the same key.
		msg := callErr.Error()
		if err := h.commands.Fail(ctx, c.ID, msg); err != nil {
			h.log.Error("command fail update", zap.String("command_id", c.ID), zap.Error(err))
			return nil, false, err
		}
		c.Status = model.CommandFailed
		c.Error = &msg
		return c, false, nil
	}

	var update *model.EntityStatusUpdate
	var audit *model.AuditEntry
	if newStatus, ok := req.Type.StatusEffect(); ok {
		update = &model.EntityStatusUpdate{
			ConnectionID: req.ConnectionID,
			ResourceType: req.Type.TargetResource(),
			RemoteID:     req.TargetID,
			NewStatus:    newStatus,
		}
		audit = &model.AuditEntry{
			ConnectionID: req.ConnectionID,
			ResourceType: req.Type.TargetResource(),
			RemoteID:     req.TargetID,
			NewStatus:    newStatus,
			ExecutorApp:  model.ExecutorCommand,
			ExecutorUser: req.Actor,
			Evidence:     resp.Body,
			CreatedAt:    time.Now(),
		}
	}

	if err := h.commands.CompleteSuccess(ctx, c.ID, resp.Body, update, audit); err != nil {
		return nil, false, fmt.Errorf("complete command %s: %w", c.ID, err)
	}
	c.Status = model.CommandSuccess
	c.Response = resp.Body
	return c, false, nil
}

func validate(req CommandRequest) error {
	switch {
	case !req.Type.Valid():
		return fmt.Errorf("%w: unknown command type %q", ErrInvalidCommand, req.Type)
	case req.TargetID == "":
		return fmt.Errorf("%w: missing target id", ErrInvalidCommand)
	case req.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidCommand)
	default:
		return nil
	}
}
