package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceMovesTime(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	assert.Equal(t, start, clk.Now())
	clk.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clk.Now())
}

func TestFake_TickerFiresOnDeadline(t *testing.T) {
	clk := NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(5 * time.Second)
	defer ticker.Stop()

	// Before the deadline nothing fires
	clk.Advance(3 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clk.Advance(2 * time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its deadline")
	}
}

func TestFake_TickerFiresOncePerAdvance(t *testing.T) {
	clk := NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	// Crossing many deadlines in one jump still delivers a single tick
	clk.Advance(10 * time.Second)

	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("ticker fired more than once per advance")
	default:
	}

	// The next deadline is re-aligned past the jump
	clk.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after re-alignment")
	}
}

func TestFake_StoppedTickerNeverFires(t *testing.T) {
	clk := NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clk.NewTicker(time.Second)
	ticker.Stop()

	clk.Advance(10 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestReal_Now(t *testing.T) {
	clk := New()
	before := time.Now()
	now := clk.Now()
	require.False(t, now.Before(before))
}
