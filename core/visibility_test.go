package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/avue/model"
)

// pathFixture places an installation point due north of the support, at
// exactly distanceM along the meridian.
func pathFixture(distanceM float64) (model.Support, model.InstallationPoint) {
	support := model.Support{ID: "sup-1", Location: model.Coordinate{Lat: 45, Lon: 5}}
	dLat := toDegrees(distanceM / 1000 / EarthRadiusKm)
	point := model.InstallationPoint{
		Location: model.Coordinate{Lat: 45 + dLat, Lon: 5},
		HeightM:  6,
	}
	return support, point
}

func flatProfile(total float64, n int, height float64) model.TerrainProfile {
	samples := make([]model.ProfileSample, n)
	for i := range samples {
		samples[i] = model.ProfileSample{
			DistanceM: math.Trunc(total * float64(i) / float64(n-1)),
			HeightM:   height,
		}
	}
	return model.TerrainProfile{Samples: samples}
}

func TestEvaluate_FlatTerrainIsVisible(t *testing.T) {
	support, point := pathFixture(2000)
	antenna := model.Antenna{HeightM: 30}
	profile := flatProfile(2000, 7, 100)

	res, err := Evaluate(antenna, support, profile, point)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Visible() {
		t.Fatalf("Visibility = %v, want visible", res.Visibility)
	}
	if res.Obstruction != -1 {
		t.Fatalf("Obstruction = %d, want -1", res.Obstruction)
	}
	if len(res.Ray) != profile.Len() {
		t.Fatalf("len(Ray) = %d, want %d", len(res.Ray), profile.Len())
	}
	if math.Abs(res.Ray[0].HeightM-130) > 1e-9 {
		t.Fatalf("ray at support = %v, want 130", res.Ray[0].HeightM)
	}
	if last := res.Ray[len(res.Ray)-1].HeightM; math.Abs(last-106) > 0.1 {
		t.Fatalf("ray at installation point = %v, want ~106", last)
	}
}

func TestEvaluate_RaisedMiddleSampleIsMasked(t *testing.T) {
	support, point := pathFixture(2000)
	antenna := model.Antenna{HeightM: 30}
	profile := flatProfile(2000, 7, 100)
	profile.Samples[3].HeightM = 200

	res, err := Evaluate(antenna, support, profile, point)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Visibility != model.VisibilityMasked {
		t.Fatalf("Visibility = %v, want masked", res.Visibility)
	}
	if res.Obstruction != 3 {
		t.Fatalf("Obstruction = %d, want 3", res.Obstruction)
	}
	if ray := res.Ray[3].HeightM; ray < 110 || ray > 130 {
		t.Fatalf("ray at middle sample = %v, want between 110 and 130", ray)
	}
}

func TestEvaluate_SingleObstructionOnlyChangesThatSample(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for round := 0; round < 200; round++ {
		total := 500 + r.Float64()*9500
		support, point := pathFixture(total)
		point.HeightM = 1 + r.Float64()*20
		antenna := model.Antenna{HeightM: 5 + r.Float64()*60}

		n := 3 + r.Intn(60)
		base := 50 + r.Float64()*500
		profile := flatProfile(total, n, base)
		// End elevations set the ray; keep intermediate samples strictly below it.
		zStart := base + antenna.HeightM
		zEnd := base + point.HeightM
		for i := 1; i < n-1; i++ {
			d := profile.Samples[i].DistanceM
			ray := zStart + (zEnd-zStart)*d/total
			profile.Samples[i].HeightM = ray - 0.5 - r.Float64()*40
		}

		baseline, err := Evaluate(antenna, support, profile, point)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !baseline.Visible() {
			t.Fatalf("round %d: expected visible with every sample under the ray", round)
		}

		idx := 1 + r.Intn(n-2)
		blocked := model.TerrainProfile{Samples: append([]model.ProfileSample(nil), profile.Samples...)}
		blocked.Samples[idx].HeightM = baseline.Ray[idx].HeightM + 0.25

		res, err := Evaluate(antenna, support, blocked, point)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if res.Visibility != model.VisibilityMasked || res.Obstruction != idx {
			t.Fatalf("round %d: got %v at %d, want masked at %d", round, res.Visibility, res.Obstruction, idx)
		}
		for i := range res.Ray {
			if res.Ray[i] != baseline.Ray[i] {
				t.Fatalf("round %d: ray sample %d changed: %v vs %v", round, i, res.Ray[i], baseline.Ray[i])
			}
		}
		diff := 0
		for i := range blocked.Samples {
			if blocked.Samples[i] != profile.Samples[i] {
				diff++
			}
		}
		if diff != 1 {
			t.Fatalf("round %d: %d profile samples differ, want 1", round, diff)
		}
	}
}

func TestEvaluate_SampleOnTheRayIsNotAnObstruction(t *testing.T) {
	support, point := pathFixture(2000)
	antenna := model.Antenna{HeightM: 30}
	point.HeightM = 30
	profile := flatProfile(2000, 5, 100)
	profile.Samples[2].HeightM = 130

	res, err := Evaluate(antenna, support, profile, point)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Visible() {
		t.Fatalf("grazing sample: Visibility = %v, want visible", res.Visibility)
	}
}

// Mixing kilometres into the slope while distances are metres makes the
// line almost flat at the antenna height; this guards against that.
func TestEvaluate_SlopeUsesMetres(t *testing.T) {
	support, point := pathFixture(5000)
	antenna := model.Antenna{HeightM: 100}
	point.HeightM = 2
	profile := flatProfile(5000, 11, 0)
	// Ray falls from 100 m to 2 m; at 4500 m it is ~11.8 m.
	profile.Samples[9].HeightM = 30

	res, err := Evaluate(antenna, support, profile, point)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Visibility != model.VisibilityMasked {
		t.Fatalf("Visibility = %v, want masked", res.Visibility)
	}
	want := 100 + (2.0-100.0)*profile.Samples[9].DistanceM/Distance(support.Location, point.Location, Meters)
	if math.Abs(res.Ray[9].HeightM-want) > 1e-9 {
		t.Fatalf("ray at 4500 m = %v, want %v", res.Ray[9].HeightM, want)
	}
}

func TestEvaluate_InputErrors(t *testing.T) {
	support, point := pathFixture(2000)
	antenna := model.Antenna{HeightM: 30}

	tests := []struct {
		name    string
		support model.Support
		point   model.InstallationPoint
		profile model.TerrainProfile
	}{
		{name: "empty profile", support: support, point: point},
		{name: "single sample", support: support, point: point, profile: model.TerrainProfile{Samples: []model.ProfileSample{{DistanceM: 0, HeightM: 100}}}},
		{name: "coincident endpoints", support: support, point: model.InstallationPoint{Location: support.Location}, profile: flatProfile(2000, 3, 0)},
		{name: "bad installation point", support: support, point: model.InstallationPoint{Location: model.Coordinate{Lat: -95}}, profile: flatProfile(2000, 3, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(antenna, tt.support, tt.profile, tt.point)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}
