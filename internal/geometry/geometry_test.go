package geometry

import (
	"math"
	"testing"

	"github.com/chiliwax/QrCodeReader-v2/pkg/types"
)

var vp = types.Viewport{Width: 200, Height: 200}

// at places a zero-size box whose centre is dist pixels right of the viewport centre.
func at(payload string, dist float64) types.Detection {
	return types.Detection{
		Payload: payload,
		Bounds:  &types.Rect{Origin: &types.Point{X: 100 + dist, Y: 100}},
	}
}

func TestDistanceFromCenter(t *testing.T) {
	d := types.Detection{Bounds: &types.Rect{
		Origin: &types.Point{X: 0, Y: 0},
		Size:   types.Size{Width: 60, Height: 80},
	}}
	// centre (30,40), viewport centre (100,100): hypot(70,60)
	want := math.Hypot(70, 60)
	if got := DistanceFromCenter(d, vp); math.Abs(got-want) > 1e-9 {
		t.Fatalf("distance = %v, want %v", got, want)
	}
}

func TestDistanceWithoutOriginIsInfinite(t *testing.T) {
	if got := DistanceFromCenter(types.Detection{}, vp); !math.IsInf(got, 1) {
		t.Fatalf("no bounds: got %v", got)
	}
	noOrigin := types.Detection{Bounds: &types.Rect{Size: types.Size{Width: 10, Height: 10}}}
	if got := DistanceFromCenter(noOrigin, vp); !math.IsInf(got, 1) {
		t.Fatalf("no origin: got %v", got)
	}
}

func TestMostCentered(t *testing.T) {
	if _, ok := MostCentered(nil, vp); ok {
		t.Fatal("empty input must yield none")
	}

	best, ok := MostCentered([]types.Detection{at("a", 50), at("b", 10), at("c", 30)}, vp)
	if !ok || best.Payload != "b" {
		t.Fatalf("got %q ok=%v, want b", best.Payload, ok)
	}
}

func TestMostCenteredTieKeepsFirst(t *testing.T) {
	best, _ := MostCentered([]types.Detection{at("first", 20), at("second", -20)}, vp)
	if best.Payload != "first" {
		t.Fatalf("tie resolved to %q", best.Payload)
	}
}

func TestMostCenteredPrefersBounded(t *testing.T) {
	best, _ := MostCentered([]types.Detection{{Payload: "unbounded"}, at("far", 500)}, vp)
	if best.Payload != "far" {
		t.Fatalf("got %q", best.Payload)
	}
}
