package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_predictions_total",
			Help: "Total predictions by outcome",
		},
		[]string{"status"},
	)

	PredictionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "balloonpredict_prediction_duration_seconds",
			Help:    "Wall time of a full prediction",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "balloonpredict_phase_duration_seconds",
			Help:    "Wall time of each prediction phase",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"phase"},
	)

	PredictionQuality = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_prediction_quality_total",
			Help: "Predictions by weather data quality",
		},
		[]string{"quality"},
	)

	MonteCarloSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_montecarlo_samples_total",
			Help: "Monte Carlo samples by outcome",
		},
		[]string{"status"},
	)

	WeatherCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_weather_cache_requests_total",
			Help: "Weather grid cache lookups",
		},
		[]string{"result"},
	)

	WeatherAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_weather_api_calls_total",
			Help: "Forecast API calls by source and status",
		},
		[]string{"source", "status"},
	)

	WeatherAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "balloonpredict_weather_api_latency_seconds",
			Help:    "Forecast API latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	WeatherPointsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_weather_points_ingested_total",
			Help: "Forecast points stored",
		},
		[]string{"source"},
	)

	WeatherPointsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_weather_points_rejected_total",
			Help: "Forecast points dropped by validation",
		},
		[]string{"source", "reason"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_publish_total",
			Help: "Prediction publish attempts",
		},
		[]string{"status"},
	)

	BriefingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balloonpredict_briefings_total",
			Help: "Flight briefing generations",
		},
		[]string{"status"},
	)
)
