package core

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizePlayerID(t *testing.T) {
	id, err := NormalizePlayerID(" Alice ")
	if err != nil || id != "Alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizePlayerID("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValidateScore(t *testing.T) {
	for _, ok := range []float64{0, 1, 10.5, math.MaxFloat64} {
		if err := ValidateScore(ok); err != nil {
			t.Fatalf("score %v: unexpected err %v", ok, err)
		}
	}
	for _, bad := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := ValidateScore(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("score %v: expected invalid input, got %v", bad, err)
		}
	}
}

func TestParseScore(t *testing.T) {
	if v, err := ParseScore(" 42 "); err != nil || v != 42 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := ParseScore("abc"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := ParseScore("-3"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValidateEntry(t *testing.T) {
	p, err := ValidateEntry("  bob", 3)
	if err != nil || p != "bob" {
		t.Fatalf("got %v %v", p, err)
	}
	if _, err := ValidateEntry("bob", -0.5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
