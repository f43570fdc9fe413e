package briefing

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/balloonpredict/internal/models"
)

const systemPrompt = `You write short pre-flight briefings for high-altitude balloon launch teams.
Use plain language and metric units. Say where the balloon is expected to burst and land,
how far and in which direction it travels, how long recovery teams have, and how much to
trust the prediction. Do not invent numbers that are not in the data. At most 120 words.`

// BuildPrompt renders the facts of a prediction for the briefing model. The
// output depends only on the result, so identical predictions give identical
// prompts.
func BuildPrompt(res *models.PredictionResult) string {
	var b strings.Builder
	l := res.Launch

	fmt.Fprintf(&b, "Launch: %.4f, %.4f at %.0f m, %s UTC\n",
		l.Latitude, l.Longitude, l.Altitude, l.LaunchTime.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Balloon: burst altitude %.0f m, ascent mode %s, ascent rate %.1f m/s, payload %.2f kg\n",
		l.Balloon.BurstAltitude, l.Balloon.EffectiveAscentMode(), l.Balloon.AscentRate, l.Balloon.PayloadWeight)

	writeSite(&b, "Burst", res.BurstSite)
	writeSite(&b, "Landing", res.LandingSite)

	m := res.Metrics
	fmt.Fprintf(&b, "Flight: %s total (%s ascent, %s descent), %.1f km direct at bearing %03.0f°, %.1f km along track\n",
		fmtDuration(m.Duration), fmtDuration(m.AscentDuration), fmtDuration(m.DescentDuration),
		m.DirectDistanceKm, m.BearingDeg, m.TotalDistanceKm)

	if u := res.Uncertainty; u != nil {
		fmt.Fprintf(&b, "Uncertainty: %.0f%% of %d simulated flights land within %.1f km (burst within %.1f km)\n",
			u.ConfidenceLevel*100, u.Samples, u.LandingRadiusKm, u.BurstRadiusKm)
		if len(u.ContributingFactors) > 0 {
			fmt.Fprintf(&b, "Factors: %s\n", strings.Join(u.ContributingFactors, "; "))
		}
	} else {
		b.WriteString("Uncertainty: not available\n")
	}

	q := res.Quality
	fmt.Fprintf(&b, "Weather data: %s quality, %.0f%% coverage", q.WeatherDataQuality, q.Coverage*100)
	if q.DegradedMode {
		b.WriteString(", degraded")
	}
	b.WriteString("\n")
	for _, w := range q.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	return b.String()
}

func writeSite(b *strings.Builder, label string, s models.Site) {
	fmt.Fprintf(b, "%s: %.4f, %.4f at %.0f m, %s UTC", label, s.Latitude, s.Longitude, s.Altitude,
		s.Time.UTC().Format("15:04"))
	if s.UncertaintyRadiusKm > 0 {
		fmt.Fprintf(b, ", ±%.1f km", s.UncertaintyRadiusKm)
	}
	b.WriteString("\n")
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
