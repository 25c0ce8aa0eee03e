package utils

import (
	"math"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("héllo wörld", 4); got != "héll..." {
		t.Errorf("multi-byte truncate: got %s", got)
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault("", "N/A") != "N/A" {
		t.Error("empty should fall back")
	}
	if OrDefault("Shelf 3", "N/A") != "Shelf 3" {
		t.Error("non-empty should pass through")
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	norm := NormalizeL2(v)
	if math.Abs(norm-5) > 1e-9 {
		t.Errorf("norm = %f, want 5", norm)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v", v)
	}
	zero := []float32{0, 0}
	if NormalizeL2(zero) != 0 || zero[0] != 0 {
		t.Error("zero vector should be unchanged")
	}
}
