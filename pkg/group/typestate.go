package group

import (
	"context"

	"github.com/go-ethercat/master/pkg/subdevice"
)

// Init is a group whose PDI layout is fixed and SyncManagers/FMMUs are
// programmed, but whose devices have not yet been asked into SAFE-OP/OP. It
// does not expose the PDI.
type Init struct{ *shared }

// PreOp is reached once every device has acknowledged PRE-OP. It does not
// expose the PDI either; only the OP handle does, so that borrowing a
// process-data slice before it is live is a compile error rather than a
// runtime hazard.
type PreOp struct{ *shared }

// SafeOp is reached once every device has acknowledged SAFE-OP.
type SafeOp struct{ *shared }

// Op is reached once every device has acknowledged OP, which this package
// requires running at least one cyclic exchange first.
type Op struct{ *shared }

func (s *shared) transitionAll(ctx context.Context, target subdevice.ALState) error {
	for _, l := range s.layouts {
		if err := s.cfgr.Transition(ctx, l.sd, target); err != nil {
			return err
		}
	}
	return nil
}

// IntoPreOp transitions every device in the group to PRE-OP.
func (g *Init) IntoPreOp(ctx context.Context) (*PreOp, error) {
	if err := g.transitionAll(ctx, subdevice.ALStatePreOp); err != nil {
		return nil, err
	}
	return &PreOp{g.shared}, nil
}

// IntoSafeOp transitions every device in the group to SAFE-OP.
func (g *PreOp) IntoSafeOp(ctx context.Context) (*SafeOp, error) {
	if err := g.transitionAll(ctx, subdevice.ALStateSafeOp); err != nil {
		return nil, err
	}
	return &SafeOp{g.shared}, nil
}

// IntoInit tears the group back down to INIT directly from PRE-OP, the
// supplemental teardown path for releasing a group before it ever reaches
// SAFE-OP/OP (e.g. aborting a bring-up sequence partway through).
func (g *PreOp) IntoInit(ctx context.Context) (*Init, error) {
	if err := g.transitionAll(ctx, subdevice.ALStateInit); err != nil {
		return nil, err
	}
	return &Init{g.shared}, nil
}

// Free is an alias for IntoInit named for callers that just want to tear
// the group down without holding onto the returned Init handle.
func (g *PreOp) Free(ctx context.Context) error {
	_, err := g.IntoInit(ctx)
	return err
}

// IntoOp runs one cyclic tx_rx (required so outputs are valid before
// devices accept OP) and then transitions every device to OP.
func (g *SafeOp) IntoOp(ctx context.Context) (*Op, error) {
	op := &Op{g.shared}
	if _, err := op.TxRx(ctx); err != nil {
		return nil, err
	}
	if err := g.transitionAll(ctx, subdevice.ALStateOp); err != nil {
		return nil, err
	}
	return op, nil
}

// IntoInit tears the group back down to INIT directly from SAFE-OP,
// without ever reaching OP.
func (g *SafeOp) IntoInit(ctx context.Context) (*Init, error) {
	if err := g.transitionAll(ctx, subdevice.ALStateInit); err != nil {
		return nil, err
	}
	return &Init{g.shared}, nil
}

// Free is an alias for IntoInit named for callers that just want to tear
// the group down without holding onto the returned Init handle.
func (g *SafeOp) Free(ctx context.Context) error {
	_, err := g.IntoInit(ctx)
	return err
}

// IntoInit tears the group back down to INIT, the supplemental teardown
// path for releasing a group and its devices cleanly (e.g. before
// reconfiguring the bus).
func (g *Op) IntoInit(ctx context.Context) (*Init, error) {
	if err := g.transitionAll(ctx, subdevice.ALStateInit); err != nil {
		return nil, err
	}
	return &Init{g.shared}, nil
}

// Free is an alias for IntoInit named for callers that just want to tear
// the group down without holding onto the returned Init handle.
func (g *Op) Free(ctx context.Context) error {
	_, err := g.IntoInit(ctx)
	return err
}

// ExpectedWKC returns the group's expected working counter, the sum of
// every device's input/output contribution.
func (s *shared) ExpectedWKC() uint16 { return s.expectedWKC }

// Devices returns the group's SubDevices in ring order.
func (s *shared) Devices() []*subdevice.SubDevice {
	out := make([]*subdevice.SubDevice, len(s.layouts))
	for i, l := range s.layouts {
		out[i] = l.sd
	}
	return out
}
