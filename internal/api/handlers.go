package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/predict"
)

// PredictOptions adjusts the engine for one request. Unset fields keep the
// server's configuration.
type PredictOptions struct {
	Samples         *int     `json:"samples,omitempty"`
	RMSWindError    *float64 `json:"rmsWindError,omitempty"`
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`
	SkipUncertainty *bool    `json:"skipUncertainty,omitempty"`
	Briefing        bool     `json:"briefing,omitempty"`
}

type PredictRequest struct {
	Launch  models.LaunchSpec `json:"launch"`
	Options *PredictOptions   `json:"options,omitempty"`
}

type PredictResponse struct {
	*models.PredictionResult
	Briefing string `json:"briefing,omitempty"`
}

type ErrorResponse struct {
	Error      string             `json:"error"`
	Kind       string             `json:"kind,omitempty"`
	Violations []models.Violation `json:"violations,omitempty"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, s.log)

	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	cfg := s.cfg.Predict
	if req.Options != nil {
		cfg = req.Options.apply(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	res, err := predict.New(s.provider, cfg, predict.WithLogger(log)).Predict(ctx, req.Launch)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			log.Error(ctx, "api: prediction failed", logging.Err(err))
		}
		writeJSON(w, status, ErrorResponse{
			Error:      err.Error(),
			Kind:       models.KindOf(err).String(),
			Violations: models.ViolationsOf(err),
		})
		return
	}

	resp := PredictResponse{PredictionResult: res}
	if req.Options != nil && req.Options.Briefing && s.briefer != nil {
		text, err := s.briefer.Generate(ctx, res)
		if err != nil {
			log.Warn(ctx, "api: briefing failed", logging.Err(err))
		} else {
			resp.Briefing = text
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res); err != nil {
			log.Warn(ctx, "api: publish failed", logging.String("id", res.ID), logging.Err(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (o *PredictOptions) apply(cfg predict.Config) predict.Config {
	if o.Samples != nil {
		cfg.MonteCarlo.Samples = *o.Samples
	}
	if o.RMSWindError != nil {
		cfg.MonteCarlo.RMSWindError = *o.RMSWindError
	}
	if o.ConfidenceLevel != nil {
		cfg.MonteCarlo.ConfidenceLevel = *o.ConfidenceLevel
	}
	if o.Seed != nil {
		cfg.MonteCarlo.Seed = *o.Seed
	}
	if o.SkipUncertainty != nil {
		cfg.SkipUncertainty = *o.SkipUncertainty
	}
	return cfg
}

// statusFor maps prediction failures onto HTTP statuses. Bad requests and
// flights that never finish are the caller's problem; anything else is ours.
func statusFor(err error) int {
	switch models.KindOf(err) {
	case models.KindInvalidInput, models.KindInsufficientSamples:
		return http.StatusBadRequest
	case models.KindAscentTimeout, models.KindDescentTimeout:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type HealthStatus struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Store    string `json:"store,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", Provider: "standard-atmosphere"}
	if s.provider != nil {
		health.Provider = s.provider.Name()
	}
	if s.store != nil {
		health.Store = "ok"
		if err := s.store.Ping(r.Context()); err != nil {
			health.Status = "error"
			health.Store = "unreachable"
			health.Error = err.Error()
		}
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
