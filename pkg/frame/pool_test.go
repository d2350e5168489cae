package frame

import (
	"errors"
	"testing"

	ethercat "github.com/go-ethercat/master"
	"github.com/stretchr/testify/assert"
)

func TestSlotLifecycle(t *testing.T) {
	p := NewPool(2, 64)
	s, err := p.Claim()
	assert.NoError(t, err)
	assert.Equal(t, StateCreated, s.State())

	gen := s.Generation()
	assert.True(t, s.MatchesGeneration(gen))

	assert.True(t, s.Finalize(60))
	assert.Equal(t, StateSendable, s.State())

	var sent *Slot
	p.EachSendable(func(slot *Slot) { sent = slot })
	assert.Same(t, s, sent)
	assert.Equal(t, StateSending, s.State())

	assert.True(t, s.MarkSent())
	assert.Equal(t, StateSent, s.State())

	assert.True(t, s.ClaimForRx())
	assert.Equal(t, StateRxBusy, s.State())

	assert.True(t, s.CompleteRx(0x01, [4]byte{1, 2, 3, 4}, []byte{0xAA}, 1))
	assert.Equal(t, StateRxDone, s.State())

	select {
	case <-s.Wake():
	default:
		t.Fatal("expected waker to have fired")
	}

	assert.True(t, s.BeginProcessing())
	data, wkc := s.Response()
	assert.Equal(t, []byte{0xAA}, data)
	assert.Equal(t, uint16(1), wkc)

	s.Release()
	assert.Equal(t, StateNone, s.State())
	assert.False(t, s.MatchesGeneration(gen))
}

func TestPoolClaimExhaustionAndIndexReuse(t *testing.T) {
	p := NewPool(1, 8)
	s1, err := p.Claim()
	assert.NoError(t, err)

	_, err = p.Claim()
	assert.ErrorIs(t, err, ethercat.ErrIndexInUse)

	gen1 := s1.Generation()
	s1.Release()
	s2, err := p.Claim()
	assert.NoError(t, err)
	assert.Equal(t, s1.Index(), s2.Index())
	assert.NotEqual(t, gen1, s2.Generation())
}

func TestAbandonSendWakesCaller(t *testing.T) {
	p := NewPool(1, 8)
	s, _ := p.Claim()
	s.Finalize(8)
	p.EachSendable(func(*Slot) {})
	sendErr := errors.New("injected send failure")
	assert.True(t, s.AbandonSend(sendErr))
	assert.Equal(t, StateRxDone, s.State())
	select {
	case <-s.Wake():
	default:
		t.Fatal("expected waker to have fired on abandon")
	}

	assert.True(t, s.BeginProcessing())
	assert.ErrorIs(t, s.Err(), sendErr)
}

// TestAbandonSendErrorDoesNotLeakIntoNextOccupant guards against the
// stale-response hazard: a slot that was abandoned, released and
// reclaimed must not carry its previous occupant's error (or any other
// response field) forward to the new claim.
func TestAbandonSendErrorDoesNotLeakIntoNextOccupant(t *testing.T) {
	p := NewPool(1, 8)
	s, _ := p.Claim()
	s.Finalize(8)
	p.EachSendable(func(*Slot) {})
	assert.True(t, s.AbandonSend(errors.New("injected send failure")))
	assert.True(t, s.BeginProcessing())
	s.Release()

	s2, err := p.Claim()
	assert.NoError(t, err)
	assert.Same(t, s, s2)
	assert.True(t, s2.Finalize(8))
	p.EachSendable(func(*Slot) {})
	assert.True(t, s2.MarkSent())
	assert.True(t, s2.ClaimForRx())
	assert.True(t, s2.CompleteRx(0x01, [4]byte{1, 2, 3, 4}, []byte{0xAA}, 1))
	assert.True(t, s2.BeginProcessing())
	assert.NoError(t, s2.Err())
}
