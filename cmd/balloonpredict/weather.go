package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lox/balloonpredict/internal/briefing"
	"github.com/lox/balloonpredict/internal/ingest"
	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/publish"
	"github.com/lox/balloonpredict/internal/store"
	"github.com/lox/balloonpredict/internal/weather"
)

type WeatherFlags struct {
	Source       string `help:"Weather source" enum:"none,open-meteo,store,file,ftp" default:"open-meteo" env:"WEATHER_SOURCE"`
	File         string `help:"Profile file (CSV or JSON) for --source=file" type:"path" env:"WEATHER_FILE"`
	OpenMeteoURL string `name:"openmeteo-url" help:"Open-Meteo GFS endpoint" default:"${openmeteo_url}" env:"OPENMETEO_URL"`

	FTPAddr     string `name:"ftp-addr" help:"FTP server host:port for --source=ftp" env:"FTP_ADDR"`
	FTPPath     string `name:"ftp-path" help:"Profile path on the FTP server" env:"FTP_PATH"`
	FTPUser     string `name:"ftp-user" help:"FTP user (anonymous when empty)" env:"FTP_USER"`
	FTPPassword string `name:"ftp-password" help:"FTP password" env:"FTP_PASSWORD"`

	DB          string `help:"SQLite database path" default:"data/balloonpredict.db" type:"path" env:"BALLOONPREDICT_DB"`
	StoreSource string `help:"Stored source read by --source=store" default:"open-meteo"`

	Cache     string        `help:"Grid cache" enum:"none,memory,redis" default:"memory" env:"WEATHER_CACHE"`
	CacheTTL  time.Duration `help:"Grid cache TTL" default:"1h" env:"WEATHER_CACHE_TTL"`
	RedisAddr string        `help:"Redis address for --cache=redis" default:"localhost:6379" env:"REDIS_ADDR"`
}

func (f WeatherFlags) openMeteo(log logging.Logger) *ingest.OpenMeteo {
	return ingest.NewOpenMeteo(ingest.WithBaseURL(f.OpenMeteoURL), ingest.WithLogger(log))
}

// provider builds the configured weather source. st is only needed for
// --source=store and may be nil otherwise. A nil provider means predictions
// run on the standard atmosphere.
func (f WeatherFlags) provider(ctx context.Context, st *store.Store, log logging.Logger) (weather.Provider, error) {
	var p weather.Provider
	switch f.Source {
	case "none":
		return nil, nil
	case "open-meteo":
		p = f.openMeteo(log)
	case "store":
		if st == nil {
			return nil, errors.New("--source=store needs a database")
		}
		p = st.Provider(f.StoreSource)
	case "file":
		if f.File == "" {
			return nil, errors.New("--source=file needs --file")
		}
		p = &ingest.FileSource{Path: f.File, Log: log}
	case "ftp":
		if f.FTPAddr == "" || f.FTPPath == "" {
			return nil, errors.New("--source=ftp needs --ftp-addr and --ftp-path")
		}
		p = &ingest.FTPSource{Addr: f.FTPAddr, Path: f.FTPPath, User: f.FTPUser, Password: f.FTPPassword, Log: log}
	default:
		return nil, fmt.Errorf("unknown weather source %q", f.Source)
	}

	cache := f.cache(ctx, log)
	if cache == nil {
		return p, nil
	}
	return weather.NewCachedProvider(p, cache, log), nil
}

// cache returns the configured grid cache. An unreachable Redis falls back to
// the in-process cache.
func (f WeatherFlags) cache(ctx context.Context, log logging.Logger) weather.Cache {
	switch f.Cache {
	case "memory":
		return weather.NewMemoryCache(f.CacheTTL, weather.DefaultCacheMaxEntries)
	case "redis":
		rc, err := f.redisCache(ctx, redis.NewClient(&redis.Options{Addr: f.RedisAddr}))
		if err != nil {
			log.Warn(ctx, "redis unavailable, using memory cache", logging.String("addr", f.RedisAddr), logging.Err(err))
			return weather.NewMemoryCache(f.CacheTTL, weather.DefaultCacheMaxEntries)
		}
		return rc
	}
	return nil
}

// redisCache wraps client once it answers a ping. The client is closed when
// it does not.
func (f WeatherFlags) redisCache(ctx context.Context, client *redis.Client) (*weather.RedisCache, error) {
	rc := weather.NewRedisCache(client, "balloonpredict:grid:", f.CacheTTL)
	if err := rc.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return rc, nil
}

type BriefingFlags struct {
	Briefing      bool   `help:"Generate a plain-language briefing"`
	OpenAIModel   string `name:"openai-model" help:"Briefing model" default:"gpt-4o-mini" env:"OPENAI_MODEL"`
	OpenAIBaseURL string `name:"openai-base-url" help:"OpenAI-compatible API base URL" env:"OPENAI_BASE_URL"`
}

func (f BriefingFlags) generator(log logging.Logger) (*briefing.Generator, error) {
	if !f.Briefing {
		return nil, nil
	}
	return briefing.NewGenerator(briefing.Config{Model: f.OpenAIModel, BaseURL: f.OpenAIBaseURL}, log)
}

type KafkaFlags struct {
	KafkaBrokers []string `help:"Kafka brokers to publish results to" env:"KAFKA_BROKERS"`
	KafkaTopic   string   `help:"Kafka topic for results" default:"balloon-predictions" env:"KAFKA_TOPIC"`
}

func (f KafkaFlags) publisher() *publish.Kafka {
	if len(f.KafkaBrokers) == 0 {
		return nil
	}
	return publish.NewKafka(f.KafkaBrokers, f.KafkaTopic)
}
