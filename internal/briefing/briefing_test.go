package briefing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/balloonpredict/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testResult() *models.PredictionResult {
	return &models.PredictionResult{
		ID: "abc",
		Launch: models.LaunchSpec{
			Coordinates: models.Coordinates{Latitude: 40.7128, Longitude: -74.006, Altitude: 10},
			LaunchTime:  t0,
			Balloon: models.BalloonConfiguration{
				Volume: 4, BurstAltitude: 30000, AscentRate: 5, PayloadWeight: 1, DragCoefficient: 0.5,
			},
		},
		BurstSite: models.Site{
			Coordinates: models.Coordinates{Latitude: 40.8, Longitude: -73.5, Altitude: 30000},
			Time:        t0.Add(100 * time.Minute),
		},
		LandingSite: models.Site{
			Coordinates:         models.Coordinates{Latitude: 40.9, Longitude: -73.1, Altitude: 0},
			Time:                t0.Add(140 * time.Minute),
			UncertaintyRadiusKm: 12.34,
		},
		Metrics: models.FlightMetrics{
			Duration:         140 * time.Minute,
			AscentDuration:   100 * time.Minute,
			DescentDuration:  40 * time.Minute,
			DirectDistanceKm: 77.2,
			BearingDeg:       74,
			TotalDistanceKm:  80.1,
		},
		Uncertainty: &models.UncertaintyAnalysis{
			LandingRadiusKm:     12.34,
			BurstRadiusKm:       8.1,
			ConfidenceLevel:     0.95,
			Samples:             100,
			ContributingFactors: []string{"forecast wind error of 2.0 m/s RMS"},
		},
		Quality: models.QualityAssessment{
			WeatherDataQuality: models.QualityFair,
			Coverage:           0.8,
			DegradedMode:       true,
			Warnings:           []string{"launch site is outside the forecast grid"},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(testResult())

	for _, want := range []string{
		"Launch: 40.7128, -74.0060 at 10 m, 2025-06-01 12:00 UTC",
		"Landing: 40.9000, -73.1000 at 0 m, 14:20 UTC, ±12.3 km",
		"Flight: 2h20m total (1h40m ascent, 40m descent), 77.2 km direct at bearing 074°",
		"95% of 100 simulated flights land within 12.3 km",
		"Weather data: fair quality, 80% coverage, degraded",
		"Warning: launch site is outside the forecast grid",
	} {
		assert.Contains(t, p, want)
	}
	assert.Equal(t, p, BuildPrompt(testResult()))
}

func TestBuildPromptWithoutUncertainty(t *testing.T) {
	res := testResult()
	res.Uncertainty = nil
	assert.Contains(t, BuildPrompt(res), "Uncertainty: not available")
}

func TestGenerate(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Expect landing near Montauk.  "}}]}`))
	}))
	defer srv.Close()

	g, err := NewGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/"}, nil)
	require.NoError(t, err)

	text, err := g.Generate(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, "Expect landing near Montauk.", text)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Landing: 40.9000")
}

func TestNewGeneratorNeedsKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewGenerator(Config{}, nil)
	assert.Error(t, err)
}
