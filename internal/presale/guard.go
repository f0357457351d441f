package presale

import (
	"context"

	"presale-ledger/internal/domain"
)

type guardKey struct{}

// guardMark records the engines with a mutating call in progress on a context chain.
type guardMark struct {
	engine *Engine
	parent *guardMark
}

// enter marks ctx as carrying a mutating call of e. A context already marked
// by e is a reentrant call.
func (e *Engine) enter(ctx context.Context) (context.Context, error) {
	parent, _ := ctx.Value(guardKey{}).(*guardMark)
	for m := parent; m != nil; m = m.parent {
		if m.engine == e {
			return ctx, domain.ErrReentrantCall
		}
	}
	return context.WithValue(ctx, guardKey{}, &guardMark{engine: e, parent: parent}), nil
}

func (e *Engine) requireOwner(caller domain.Address) error {
	if caller != e.cfg.Owner {
		return &domain.NotOwnerError{Caller: caller}
	}
	return nil
}

// phaseAt derives the lifecycle phase of l at unix time now.
func (e *Engine) phaseAt(l *ledger, now int64) domain.Phase {
	switch {
	case l.state.Settlement.IsSettled():
		return l.state.Settlement
	case now < e.cfg.StartTime:
		return domain.PhasePending
	case now < e.cfg.EndTime:
		return domain.PhaseActive
	default:
		return domain.PhaseEnded
	}
}

func (e *Engine) requirePurchaseWindow(now int64) error {
	if now < e.cfg.StartTime || now >= e.cfg.EndTime {
		return domain.ErrInvalidPurchaseWindow
	}
	return nil
}

func (e *Engine) requireClaimWindow(l *ledger, now int64) error {
	if l.state.ClaimTime == 0 || now < l.state.ClaimTime {
		return domain.ErrClaimWindowNotOpen
	}
	return nil
}

func (e *Engine) requireEnded(now int64) error {
	if now < e.cfg.EndTime {
		return domain.ErrSaleNotEnded
	}
	return nil
}
