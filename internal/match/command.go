package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"hunt-arena/server/internal/geom"
	"hunt-arena/server/internal/orders"
	"hunt-arena/server/internal/telemetry"
)

// CommandType enumerates the order commands observers may send.
type CommandType string

const (
	CommandWalk       CommandType = "walk"
	CommandFollow     CommandType = "follow"
	CommandAttack     CommandType = "attack"
	CommandAttackMove CommandType = "attack_move"
	CommandBuild      CommandType = "build"
	CommandCast       CommandType = "cast"
	CommandHold       CommandType = "hold"
	CommandStop       CommandType = "stop"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to
	// per-actor throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the command buffer is saturated.
	CommandRejectQueueFull = "queue_full"
	// CommandRejectInvalid indicates the command is missing required fields.
	CommandRejectInvalid = "invalid_command"
	// CommandRejectUnknownActor indicates the actor is not a live unit.
	CommandRejectUnknownActor = "unknown_actor"
	// CommandRejectImmobile indicates the actor is a structure.
	CommandRejectImmobile = "immobile"
	// CommandRejectUnknownType indicates a build of an undeclared or
	// non-structure unit type.
	CommandRejectUnknownType = "unknown_unit_type"
)

const (
	commandBufferOccupancyMetricKey = "match_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "match_command_buffer_overflow_total"
)

var errInvalidCommand = errors.New("invalid command")

// Command is an order request captured for the next tick.
type Command struct {
	OriginTick uint64      `json:"originTick,omitempty"`
	ActorID    string      `json:"actorId"`
	Type       CommandType `json:"type"`
	IssuedAt   time.Time   `json:"-"`
	// Queue appends the order behind the actor's current ones.
	Queue    bool    `json:"queue,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	TargetID string  `json:"targetId,omitempty"`
	UnitType string  `json:"unitType,omitempty"`
	OrderID  string  `json:"orderId,omitempty"`
	// Duration is the channel time of a cast, in seconds.
	Duration float64 `json:"duration,omitempty"`
}

// Order converts the command into an order. Stop has no order and returns
// nil.
func (c Command) Order() (orders.Order, error) {
	switch c.Type {
	case CommandWalk:
		return &orders.Walk{Target: geom.Pt(c.X, c.Y)}, nil
	case CommandFollow:
		if c.TargetID == "" {
			return nil, fmt.Errorf("%w: follow needs a target", errInvalidCommand)
		}
		return &orders.Walk{TargetID: c.TargetID}, nil
	case CommandAttack:
		if c.TargetID == "" {
			return nil, fmt.Errorf("%w: attack needs a target", errInvalidCommand)
		}
		return &orders.Attack{TargetID: c.TargetID}, nil
	case CommandAttackMove:
		return &orders.AttackMove{Target: geom.Pt(c.X, c.Y)}, nil
	case CommandBuild:
		if c.UnitType == "" {
			return nil, fmt.Errorf("%w: build needs a unit type", errInvalidCommand)
		}
		return &orders.Build{UnitType: c.UnitType, X: c.X, Y: c.Y}, nil
	case CommandCast:
		if c.OrderID == "" || c.Duration < 0 {
			return nil, fmt.Errorf("%w: cast needs an order id and a duration", errInvalidCommand)
		}
		cast := &orders.Cast{OrderID: c.OrderID, Remaining: c.Duration, TargetID: c.TargetID}
		if c.TargetID == "" && (c.X != 0 || c.Y != 0) {
			target := geom.Pt(c.X, c.Y)
			cast.Target = &target
		}
		return cast, nil
	case CommandHold:
		return &orders.Hold{}, nil
	case CommandStop:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errInvalidCommand, c.Type)
	}
}

// CommandBuffer stores staged commands in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type CommandBuffer struct {
	mu      sync.Mutex
	data    []Command
	head    int
	tail    int
	count   int
	metrics telemetry.Metrics
}

// NewCommandBuffer constructs a ring buffer with the provided capacity.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		data:    make([]Command, capacity),
		metrics: metrics,
	}
}

// Push stages a command, returning false if the buffer is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(commandBufferOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged commands in FIFO order and clears the buffer.
func (b *CommandBuffer) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	commands := make([]Command, b.count)
	for i := 0; i < b.count; i++ {
		commands[i] = b.data[(b.head+i)%len(b.data)]
		b.data[(b.head+i)%len(b.data)] = Command{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return commands
}

// Len reports the number of staged commands.
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *CommandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
}
