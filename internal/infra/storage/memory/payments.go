package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"stayengine/internal/app/policies"
	"stayengine/internal/domain/shared/money"
)

var ErrSandboxDeclined = errors.New("sandbox: payment declined")

// Operation names used by the sandbox gateway.
const (
	OpAuthorize = "authorize"
	OpCapture   = "capture"
	OpVoid      = "void"
	OpRefund    = "refund"
	OpPayout    = "payout"
)

// Instruction is one money movement accepted by the sandbox.
type Instruction struct {
	Op        string
	Key       string
	Reference string
	Target    string
	Amount    money.Money
}

// SandboxGateway is a PaymentGateway for development and tests. It dedups by
// idempotency key and can be told to fail the next calls of an operation.
type SandboxGateway struct {
	mu       sync.Mutex
	byKey    map[string]Instruction
	log      []Instruction
	failures map[string]int
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{byKey: make(map[string]Instruction), failures: make(map[string]int)}
}

// FailNext makes the next n calls of op return ErrSandboxDeclined.
func (g *SandboxGateway) FailNext(op string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = n
}

// Instructions returns the distinct instructions accepted so far.
func (g *SandboxGateway) Instructions() []Instruction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Instruction, len(g.log))
	copy(out, g.log)
	return out
}

// Count returns how many distinct instructions of op were accepted.
func (g *SandboxGateway) Count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, in := range g.log {
		if in.Op == op {
			n++
		}
	}
	return n
}

func (g *SandboxGateway) Authorize(ctx context.Context, key, bookingID string, amount money.Money) (string, error) {
	return g.apply(ctx, OpAuthorize, key, bookingID, amount)
}

func (g *SandboxGateway) Capture(ctx context.Context, key, authorizationID string, amount money.Money) (string, error) {
	return g.apply(ctx, OpCapture, key, authorizationID, amount)
}

func (g *SandboxGateway) Void(ctx context.Context, key, authorizationID string) error {
	_, err := g.apply(ctx, OpVoid, key, authorizationID, money.Money{})
	return err
}

func (g *SandboxGateway) Refund(ctx context.Context, key, captureID string, amount money.Money) (string, error) {
	return g.apply(ctx, OpRefund, key, captureID, amount)
}

func (g *SandboxGateway) Payout(ctx context.Context, key, hostID string, amount money.Money) (string, error) {
	return g.apply(ctx, OpPayout, key, hostID, amount)
}

func (g *SandboxGateway) apply(ctx context.Context, op, key, target string, amount money.Money) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("sandbox: %s without idempotency key", op)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.byKey[key]; ok {
		return prev.Reference, nil
	}
	if g.failures[op] > 0 {
		g.failures[op]--
		return "", fmt.Errorf("%w: %s", ErrSandboxDeclined, op)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("sandbox: %s with negative amount", op)
	}
	in := Instruction{Op: op, Key: key, Reference: op + "_" + uuid.NewString(), Target: target, Amount: amount}
	g.byKey[key] = in
	g.log = append(g.log, in)
	return in.Reference, nil
}

var _ policies.PaymentGateway = (*SandboxGateway)(nil)
