package main

import (
	"fmt"
	"os"
	"time"

	"github.com/lox/balloonpredict/internal/ingest"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/store"
)

type IngestCmd struct {
	Site      string        `help:"Site name recorded with the run" default:"adhoc"`
	Latitude  float64       `help:"Site latitude" name:"lat"`
	Longitude float64       `help:"Site longitude" name:"lon"`
	Radius    float64       `help:"Half-width of the grid in degrees"`
	Horizon   time.Duration `help:"Forecast horizon to fetch" default:"${horizon}"`
	File      string        `help:"Load a CSV or JSON profile instead of fetching Open-Meteo" type:"existingfile"`
	Source    string        `help:"Source name to store a --file profile under" default:"open-meteo"`

	DB           string `help:"SQLite database path" default:"data/balloonpredict.db" type:"path" env:"BALLOONPREDICT_DB"`
	OpenMeteoURL string `name:"openmeteo-url" help:"Open-Meteo GFS endpoint" default:"${openmeteo_url}" env:"OPENMETEO_URL"`
	Runs         int    `help:"Print this many recent ingest runs and exit"`
}

func (c *IngestCmd) Run(rt *Runtime) error {
	ctx, log := rt.Ctx, rt.Log

	st, err := store.Open(ctx, c.DB, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if c.Runs > 0 {
		runs, err := st.RecentIngestRuns(ctx, c.Runs)
		if err != nil {
			return err
		}
		for _, r := range runs {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.ErrorMessage.String
			}
			fmt.Printf("%s  %-12s  fetched=%d stored=%d  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05Z"), r.Source,
				r.RecordsFetched.Int64, r.RecordsStored.Int64, status)
		}
		return nil
	}

	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		points, err := ingest.ParseProfile(c.File, f)
		if err != nil {
			return err
		}
		kept, flags := ingest.FilterPoints(c.Source, points)
		n, err := st.SavePoints(ctx, c.Source, kept)
		if err != nil {
			return err
		}
		log.Info(ctx, "profile stored",
			logging.String("file", c.File),
			logging.String("source", c.Source),
			logging.Int("points", n),
			logging.Int("rejected", len(points)-len(kept)),
			logging.String("flags", ingest.QualityFlagsToJSON(flags)),
		)
		return nil
	}

	om := ingest.NewOpenMeteo(ingest.WithBaseURL(c.OpenMeteoURL), ingest.WithLogger(log))
	refresher := ingest.NewRefresher(st, om, nil, ingest.RefresherConfig{Horizon: c.Horizon}, log)
	return refresher.Refresh(ctx, ingest.Site{
		Name:      c.Site,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		RadiusDeg: c.Radius,
	})
}
