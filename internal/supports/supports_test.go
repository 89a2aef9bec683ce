package supports

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendBody = `{"supports":[
  {"supId":1234,"lat":45.19,"lon":5.72,"antennes":[
    {"haut":24.5,"aer_ids":[
      {"aer_id":11,"azimut":120,"operators":["ORANGE","SFR"]},
      {"aer_id":12,"azimut":-1,"operators":["FREE MOBILE"]}
    ],"isVisible":1},
    {"haut":30,"aer_ids":[{"aer_id":13,"operators":["BOUYGUES TELECOM"]}]}
  ]},
  {"supId":"A-2","lat":45.2,"lon":5.73,"antennes":[]}
]}`

func TestDecodeBackendDocument(t *testing.T) {
	doc, err := Decode([]byte(backendBody))
	require.NoError(t, err)

	sups, err := doc.Model()
	require.NoError(t, err)
	require.Len(t, sups, 2)

	first := sups[0]
	assert.Equal(t, "1234", first.ID)
	assert.Equal(t, model.Coordinate{Lat: 45.19, Lon: 5.72}, first.Location)
	require.Len(t, first.Antennas, 2)
	assert.Equal(t, 24.5, first.Antennas[0].HeightM)

	eq := first.Antennas[0].Equipment
	require.Len(t, eq, 2)
	assert.Equal(t, "11", eq[0].ID)
	assert.Equal(t, 120.0, eq[0].BearingDeg)
	assert.Equal(t, []model.Operator{"ORANGE", "SFR"}, eq[0].Operators)
	assert.True(t, eq[1].Omnidirectional())
	assert.True(t, first.Antennas[1].Equipment[0].Omnidirectional(), "missing azimut is omnidirectional")

	assert.Equal(t, "A-2", sups[1].ID)
}

func TestModelRejectsMissingID(t *testing.T) {
	doc, err := Decode([]byte(`{"supports":[{"lat":1,"lon":1}]}`))
	require.NoError(t, err)
	_, err = doc.Model()
	assert.Error(t, err)
}

func TestFromModelKeepsOmnidirectionalImplicit(t *testing.T) {
	sups := []model.Support{{
		ID:       "9",
		Location: model.Coordinate{Lat: 1, Lon: 2},
		Antennas: []model.Antenna{{HeightM: 10, Equipment: []model.Equipment{
			{ID: "a", BearingDeg: model.OmnidirectionalBearing, Operators: []model.Operator{"SFR"}},
			{ID: "b", BearingDeg: 90, Operators: []model.Operator{"ORANGE"}},
		}}},
	}}
	doc := FromModel(sups)
	eq := doc.Supports[0].Antennas[0].Equipment
	assert.Nil(t, eq[0].Azimuth)
	require.NotNil(t, eq[1].Azimuth)
	assert.Equal(t, 90.0, *eq[1].Azimuth)

	back, err := doc.Model()
	require.NoError(t, err)
	assert.Equal(t, sups, back)
}

func TestFormatRadius(t *testing.T) {
	tests := map[float64]string{
		10:    "10.0",
		5:     "5.00",
		0.5:   "0.500",
		2.346: "2.35",
		123.4: "123",
		9.999: "10.0",
	}
	for in, want := range tests {
		if got := FormatRadius(in); got != want {
			t.Fatalf("FormatRadius(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestBackendRequestsSupportsRoute(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(backendBody))
	}))
	defer srv.Close()

	b, err := NewBackend(srv.URL + "/")
	require.NoError(t, err)

	sups, err := b.Supports(context.Background(), model.Coordinate{Lat: 45.1885, Lon: 5.7245}, 5)
	require.NoError(t, err)
	assert.Len(t, sups, 2)
	assert.Equal(t, "/supports/45.1885/5.7245/5.00", path.Load())
}

func TestBackendRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend(srv.URL,
		WithMaxRetries(1),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	require.NoError(t, err)

	_, err = b.Supports(context.Background(), model.Coordinate{Lat: 45, Lon: 5}, 1)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBackendRejectsBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"supports":"nope"}`))
	}))
	defer srv.Close()

	b, err := NewBackend(srv.URL, WithMaxRetries(3))
	require.NoError(t, err)
	_, err = b.Supports(context.Background(), model.Coordinate{Lat: 45, Lon: 5}, 1)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestNewBackendRequiresAbsoluteURL(t *testing.T) {
	_, err := NewBackend("supports.local")
	assert.Error(t, err)
}

func TestCatalogReturnsSupportsInsideBox(t *testing.T) {
	center := model.Coordinate{Lat: 45.1885, Lon: 5.7245}
	north := core.Destination(center, 4.9, 0)
	east := core.Destination(center, 4.9, 90)
	far := core.Destination(center, 9, 45)

	cat, err := NewCatalog([]model.Support{
		{ID: "north", Location: north},
		{ID: "far", Location: far},
		{ID: "east", Location: east},
	})
	require.NoError(t, err)

	sups, err := cat.Supports(context.Background(), center, 5)
	require.NoError(t, err)
	ids := make([]string, 0, len(sups))
	for _, s := range sups {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"north", "east"}, ids)
}

func TestCatalogAcrossAntimeridian(t *testing.T) {
	center := model.Coordinate{Lat: -17.0, Lon: 179.98}
	cat, err := NewCatalog([]model.Support{
		{ID: "west", Location: core.Destination(center, 3, 270)},
		{ID: "east", Location: core.Destination(center, 3, 90)},
		{ID: "elsewhere", Location: model.Coordinate{Lat: -17.0, Lon: 0}},
	})
	require.NoError(t, err)
	require.Less(t, core.Destination(center, 3, 90).Lon, 0.0)

	sups, err := cat.Supports(context.Background(), center, 5)
	require.NoError(t, err)
	ids := make([]string, 0, len(sups))
	for _, s := range sups {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"west", "east"}, ids)
}

func TestCatalogRejectsInvalidEntries(t *testing.T) {
	_, err := NewCatalog([]model.Support{{ID: "x", Location: model.Coordinate{Lat: 91}}})
	assert.Error(t, err)

	_, err = NewCatalog([]model.Support{
		{ID: "x", Location: model.Coordinate{Lat: 1, Lon: 1}},
		{ID: "x", Location: model.Coordinate{Lat: 2, Lon: 2}},
	})
	assert.Error(t, err)
}

func TestLoadCatalogYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "supports.yaml")
	yamlDoc := `
supports:
  - supId: 77
    lat: 45.19
    lon: 5.72
    antennes:
      - haut: 18
        aer_ids:
          - aer_id: 1
            azimut: 45
            operators: [SFR]
          - aer_id: 2
            operators: [ORANGE]
`
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlDoc), 0o600))
	jsonPath := filepath.Join(dir, "supports.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(backendBody), 0o600))

	cat, err := LoadCatalog(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
	sups, err := cat.Supports(context.Background(), model.Coordinate{Lat: 45.19, Lon: 5.72}, 1)
	require.NoError(t, err)
	require.Len(t, sups, 1)
	assert.Equal(t, "77", sups[0].ID)
	assert.Equal(t, 45.0, sups[0].Antennas[0].Equipment[0].BearingDeg)
	assert.True(t, sups[0].Antennas[0].Equipment[1].Omnidirectional())

	cat, err = LoadCatalog(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.Len())
}
