package learning

import (
	"testing"
	"time"
)

func TestCUSUM_StableSeriesNoShift(t *testing.T) {
	cusum := NewCUSUM()
	now := time.Now()

	noise := []float64{0.1, -0.1, 0.05, -0.05, 0.0}
	for i := 0; i < 50; i++ {
		value := 10.0 + noise[i%len(noise)]
		result := cusum.Update(value, now.Add(time.Duration(i)*time.Second))
		if result.Direction != ShiftNone {
			t.Fatalf("Unexpected shift %v at observation %d", result.Direction, i)
		}
	}
}

func TestCUSUM_DetectsUpwardShift(t *testing.T) {
	cusum := NewCUSUM()
	now := time.Now()

	noise := []float64{0.1, -0.1, 0.05, -0.05, 0.02, -0.02}
	for i := 0; i < 30; i++ {
		cusum.Update(10.0+noise[i%len(noise)], now.Add(time.Duration(i)*time.Second))
	}

	// Sustained jump well above the fitted sigma
	var last ShiftResult
	for i := 30; i < 45; i++ {
		last = cusum.Update(50.0, now.Add(time.Duration(i)*time.Second))
	}

	if last.Direction != ShiftUpward {
		t.Fatalf("Expected upward shift, got %v", last.Direction)
	}
	if last.Severity <= 0 {
		t.Errorf("Expected positive severity, got %f", last.Severity)
	}
	if last.Sustained <= 0 {
		t.Errorf("Expected sustained duration to accumulate, got %v", last.Sustained)
	}
}

func TestCUSUM_DetectsDownwardShift(t *testing.T) {
	cusum := NewCUSUM()
	now := time.Now()

	noise := []float64{0.1, -0.1, 0.05, -0.05, 0.02, -0.02}
	for i := 0; i < 30; i++ {
		cusum.Update(100.0+noise[i%len(noise)], now.Add(time.Duration(i)*time.Second))
	}

	var last ShiftResult
	for i := 30; i < 45; i++ {
		last = cusum.Update(50.0, now.Add(time.Duration(i)*time.Second))
	}

	if last.Direction != ShiftDownward {
		t.Fatalf("Expected downward shift, got %v", last.Direction)
	}
}

func TestCUSUM_SustainedGrowsAcrossUpdates(t *testing.T) {
	cusum := NewCUSUM()
	now := time.Now()

	noise := []float64{0.1, -0.1, 0.05, -0.05}
	for i := 0; i < 30; i++ {
		cusum.Update(10.0+noise[i%len(noise)], now.Add(time.Duration(i)*time.Second))
	}

	var first, second ShiftResult
	for i := 30; i < 40; i++ {
		first = cusum.Update(40.0, now.Add(time.Duration(i)*time.Second))
	}
	for i := 40; i < 50; i++ {
		second = cusum.Update(40.0, now.Add(time.Duration(i)*time.Second))
	}

	if first.Direction != ShiftUpward || second.Direction != ShiftUpward {
		t.Fatal("Expected sustained upward shift")
	}
	if second.Sustained <= first.Sustained {
		t.Errorf("Expected sustained duration to grow: %v then %v", first.Sustained, second.Sustained)
	}
}

func TestCUSUM_Reset(t *testing.T) {
	cusum := NewCUSUM()
	now := time.Now()

	for i := 0; i < 20; i++ {
		cusum.Update(float64(i*10), now.Add(time.Duration(i)*time.Second))
	}

	cusum.Reset()

	if cusum.positiveSum != 0 || cusum.negativeSum != 0 {
		t.Error("Expected sums cleared after reset")
	}
	if len(cusum.observations) != 0 {
		t.Error("Expected observation history cleared after reset")
	}
}

func TestShiftDirection_String(t *testing.T) {
	if ShiftUpward.String() != "upward" {
		t.Errorf("Expected 'upward', got %s", ShiftUpward.String())
	}
	if ShiftDownward.String() != "downward" {
		t.Errorf("Expected 'downward', got %s", ShiftDownward.String())
	}
	if ShiftNone.String() != "none" {
		t.Errorf("Expected 'none', got %s", ShiftNone.String())
	}
}
