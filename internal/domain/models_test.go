package domain

import "testing"

func TestFaceRegionArea(t *testing.T) {
	tests := []struct {
		region FaceRegion
		want   int
	}{
		{FaceRegion{X: 5, Y: 5, Width: 50, Height: 60}, 3000},
		{FaceRegion{Width: 0, Height: 10}, 0},
	}
	for _, tt := range tests {
		if got := tt.region.Area(); got != tt.want {
			t.Errorf("%+v.Area() = %d, want %d", tt.region, got, tt.want)
		}
	}
}
