package dc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	ethercat "github.com/go-ethercat/master"
	"github.com/go-ethercat/master/pkg/pdu"
)

// Aligner drives distributed-clock bring-up for one bus: static drift
// compensation against a reference SubDevice, and dynamic SYNC0/SYNC1
// programming per device.
type Aligner struct {
	loop             *pdu.Loop
	cfg              ethercat.Config
	logger           *log.Entry
	referenceStation uint16
}

// NewAligner returns an Aligner that uses referenceStation's system time
// register as the clock every other device aligns to. referenceStation
// should be the first DC-capable device encountered during bus bring-up.
func NewAligner(loop *pdu.Loop, cfg ethercat.Config, logger *log.Entry, referenceStation uint16) *Aligner {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Aligner{loop: loop, cfg: cfg, logger: logger.WithField("component", "dc"), referenceStation: referenceStation}
}

// StaticSyncResult summarises one StaticDriftCompensation run: the round
// trip latency observed on each FRMW, from which propagation delay is
// estimated.
type StaticSyncResult struct {
	Iterations int
	MinRoundTrip  time.Duration
	MaxRoundTrip  time.Duration
	MeanRoundTrip time.Duration
}

// StaticDriftCompensation issues iterations FRMW reads of the reference
// device's system time register. Each FRMW causes every downstream device
// to copy the value it forwards into its own system time register in the
// same frame, converging every clock on the bus toward the reference's
// value. The default iteration count is cfg.DCStaticSyncIterations.
func (a *Aligner) StaticDriftCompensation(ctx context.Context, iterations int) (StaticSyncResult, error) {
	if iterations <= 0 {
		iterations = a.cfg.DCStaticSyncIterations
	}

	var min, max, sum time.Duration
	buf := make([]byte, 8)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		_, wkc, err := pdu.FRMW(a.loop, a.referenceStation, regSystemTime, buf).Receive(ctx)
		if err != nil {
			return StaticSyncResult{}, err
		}
		if wkc == 0 {
			return StaticSyncResult{}, ethercat.ErrNoDCReference
		}
		elapsed := time.Since(start)
		sum += elapsed
		if i == 0 || elapsed < min {
			min = elapsed
		}
		if elapsed > max {
			max = elapsed
		}
	}

	result := StaticSyncResult{
		Iterations:    iterations,
		MinRoundTrip:  min,
		MaxRoundTrip:  max,
		MeanRoundTrip: sum / time.Duration(iterations),
	}
	a.logger.Infof("[DC] static drift compensation complete: iterations=%v min=%v max=%v mean=%v",
		result.Iterations, result.MinRoundTrip, result.MaxRoundTrip, result.MeanRoundTrip)
	return result, nil
}
