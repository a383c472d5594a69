package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestForwardFromYaw(t *testing.T) {
	cases := []struct {
		name string
		yaw  float64
		want mgl64.Vec3
	}{
		{"zero", 0, mgl64.Vec3{0, 0, -1}},
		{"quarter left", math.Pi / 2, mgl64.Vec3{-1, 0, 0}},
		{"half", math.Pi, mgl64.Vec3{0, 0, 1}},
		{"quarter right", -math.Pi / 2, mgl64.Vec3{1, 0, 0}},
	}
	for _, tc := range cases {
		got := ForwardFromYaw(tc.yaw)
		assertVec(t, tc.name, got, tc.want)
		if math.Abs(got.Len()-1) > 1e-12 {
			t.Fatalf("%s: |forward| = %v", tc.name, got.Len())
		}
	}
}

func TestWrapAngle(t *testing.T) {
	if got := WrapAngle(5 * math.Pi); math.Abs(got-math.Pi) > 1e-12 {
		t.Fatalf("WrapAngle(5π) = %v, want π", got)
	}
	if got := WrapAngle(-3 * math.Pi); math.Abs(got+math.Pi) > 1e-12 {
		t.Fatalf("WrapAngle(-3π) = %v, want -π", got)
	}
	if got := WrapAngle(1e6); math.Abs(got) >= TwoPi {
		t.Fatalf("WrapAngle(1e6) = %v not folded", got)
	}
}

func TestClampLength(t *testing.T) {
	v, clamped := ClampLength(mgl64.Vec3{3, 0, 4}, 10)
	if clamped || v != (mgl64.Vec3{3, 0, 4}) {
		t.Fatalf("short vector changed: %v %v", v, clamped)
	}

	v, clamped = ClampLength(mgl64.Vec3{30, 0, 40}, 10)
	if !clamped {
		t.Fatalf("long vector not clamped")
	}
	assertVec(t, "clamped", v, mgl64.Vec3{6, 0, 8})

	if v, clamped = ClampLength(mgl64.Vec3{}, 0); clamped || v != (mgl64.Vec3{}) {
		t.Fatalf("zero vector: %v %v", v, clamped)
	}
}

func TestOrbitPath(t *testing.T) {
	pts := OrbitPath(12, 128)
	if len(pts) != 128 {
		t.Fatalf("len = %d, want 128", len(pts))
	}
	assertVec(t, "first", pts[0], mgl64.Vec3{12, 0, 0})
	assertVec(t, "quarter", pts[32], mgl64.Vec3{0, 0, -12})
	for i, p := range pts {
		if math.Abs(p.Len()-12) > 1e-9 || p.Y() != 0 {
			t.Fatalf("point %d = %v off the orbit circle", i, p)
		}
	}

	if got := len(OrbitPath(5, 1)); got != 3 {
		t.Fatalf("degenerate segment count gave %d points, want 3", got)
	}
}

func TestOrbitPathMatchesOrbitTransform(t *testing.T) {
	sys := newTestSystem(t, earthAndMoon()...)
	earth := mustLookup(t, sys, "Earth")
	pts := OrbitPath(earth.Def.Distance, 16)

	for i, p := range pts {
		earth.OrbitAngle = TwoPi * float64(i) / 16
		assertVec(t, "orbit sample", sys.WorldPosition(earth.ID), p)
	}
}
