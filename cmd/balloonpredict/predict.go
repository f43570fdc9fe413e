package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/predict"
	"github.com/lox/balloonpredict/internal/store"
)

type PredictCmd struct {
	Launch  string `arg:"" optional:"" help:"Launch spec JSON file (stdin when omitted or -)"`
	Samples int    `help:"Monte Carlo samples (0 keeps the tuned value)"`
	Seed    uint64 `help:"Monte Carlo seed (0 keeps the tuned value)"`
	Quick   bool   `help:"Skip uncertainty analysis"`
	Indent  bool   `help:"Indent the JSON output" default:"true" negatable:""`

	Weather  WeatherFlags  `embed:""`
	Briefing BriefingFlags `embed:""`
	Kafka    KafkaFlags    `embed:""`
}

type predictOutput struct {
	*models.PredictionResult
	Briefing string `json:"briefing,omitempty"`
}

func (c *PredictCmd) Run(rt *Runtime) error {
	ctx, log := rt.Ctx, rt.Log

	launch, err := readLaunch(c.Launch)
	if err != nil {
		return err
	}

	cfg := rt.Config
	if c.Samples > 0 {
		cfg.MonteCarlo.Samples = c.Samples
	}
	if c.Seed != 0 {
		cfg.MonteCarlo.Seed = c.Seed
	}
	if c.Quick {
		cfg.SkipUncertainty = true
	}

	var st *store.Store
	if c.Weather.Source == "store" {
		st, err = store.Open(ctx, c.Weather.DB, log)
		if err != nil {
			return err
		}
		defer st.Close()
	}
	provider, err := c.Weather.provider(ctx, st, log)
	if err != nil {
		return err
	}
	briefer, err := c.Briefing.generator(log)
	if err != nil {
		return err
	}

	res, err := predict.New(provider, cfg, predict.WithLogger(log)).Predict(ctx, launch)
	if err != nil {
		if vs := models.ViolationsOf(err); len(vs) > 0 {
			for _, v := range vs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Field, v.Message)
			}
		}
		return err
	}

	out := predictOutput{PredictionResult: res}
	if briefer != nil {
		if out.Briefing, err = briefer.Generate(ctx, res); err != nil {
			log.Warn(ctx, "briefing failed", logging.Err(err))
		}
	}
	if pub := c.Kafka.publisher(); pub != nil {
		defer pub.Close()
		if err := pub.Publish(ctx, res); err != nil {
			log.Warn(ctx, "publish failed", logging.String("id", res.ID), logging.Err(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	if c.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func readLaunch(path string) (models.LaunchSpec, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return models.LaunchSpec{}, fmt.Errorf("open launch spec: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeLaunch(r)
}

func decodeLaunch(r io.Reader) (models.LaunchSpec, error) {
	var launch models.LaunchSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&launch); err != nil {
		return models.LaunchSpec{}, fmt.Errorf("decode launch spec: %w", err)
	}
	return launch, nil
}
