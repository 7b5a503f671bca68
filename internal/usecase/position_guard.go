package usecase

import "sync"

// PositionGuard serializes order execution with brokerage reconciliation.
// Execute holds it from submission until the fill is booked and
// SyncWithBrokerage holds it from the brokerage read until positions are
// replaced, so a sync observes either the state before an order or the state
// after its fill was recorded.
type PositionGuard struct {
	mu sync.Mutex
}

func NewPositionGuard() *PositionGuard { return &PositionGuard{} }

func (g *PositionGuard) Lock()   { g.mu.Lock() }
func (g *PositionGuard) Unlock() { g.mu.Unlock() }
