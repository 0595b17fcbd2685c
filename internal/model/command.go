package model

import (
	"strings"
	"time"
)

type CommandType string

const (
	CommandAnswerQuestion CommandType = "answer_question"
	CommandApproveClaim   CommandType = "approve_claim"
	CommandRejectClaim    CommandType = "reject_claim"
	CommandUpdateTracking CommandType = "update_tracking"
	CommandPushInventory  CommandType = "push_inventory"
	CommandPushPrice      CommandType = "push_price"
)

func (t CommandType) String() string { return string(t) }

func (t CommandType) Valid() bool {
	switch t {
	case CommandAnswerQuestion, CommandApproveClaim, CommandRejectClaim,
		CommandUpdateTracking, CommandPushInventory, CommandPushPrice:
		return true
	default:
		return false
	}
}

// ParseCommandType normalizes input; returns (value, true) if valid.
func ParseCommandType(s string) (CommandType, bool) {
	t := CommandType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// TargetResource is the resource class whose entity a command affects.
func (t CommandType) TargetResource() ResourceType {
	switch t {
	case CommandAnswerQuestion:
		return ResourceQuestions
	case CommandApproveClaim, CommandRejectClaim:
		return ResourceClaims
	case CommandUpdateTracking:
		return ResourceOrders
	default:
		return ResourceProducts
	}
}

// StatusEffect is the projected entity status a successful command produces.
// Inventory/price pushes do not change entity status and return ("", false).
func (t CommandType) StatusEffect() (string, bool) {
	switch t {
	case CommandAnswerQuestion:
		return "answered", true
	case CommandApproveClaim:
		return "approved", true
	case CommandRejectClaim:
		return "rejected", true
	case CommandUpdateTracking:
		return "shipped", true
	default:
		return "", false
	}
}

type CommandStatus string

// Commands are inserted directly in `running`; there is no queued phase.
const (
	CommandRunning CommandStatus = "running"
	CommandSuccess CommandStatus = "success"
	CommandFailed  CommandStatus = "failed"
)

func (s CommandStatus) String() string { return string(s) }

func (s CommandStatus) Terminal() bool { return s == CommandSuccess || s == CommandFailed }

// Command is one requested write action against a connection. The unique
// (connection_id, idempotency_key) pair makes retried submissions safe:
// a resubmission returns the stored row instead of repeating the remote call.
type Command struct {
	ID             string        `db:"id"`
	ConnectionID   int64         `db:"connection_id"`
	Type           CommandType   `db:"command_type"`
	TargetID       string        `db:"target_id"`
	IdempotencyKey string        `db:"idempotency_key"`
	Status         CommandStatus `db:"status"`
	Actor          string        `db:"actor"`
	Request        []byte        `db:"request"`
	Response       []byte        `db:"response"`
	Error          *string       `db:"error"`
	CreatedAt      time.Time     `db:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}
