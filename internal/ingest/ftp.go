package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lox/balloonpredict/internal/logging"
	"github.com/lox/balloonpredict/internal/models"
	"github.com/lox/balloonpredict/internal/weather"
)

const defaultFTPTimeout = 30 * time.Second

// FTPSource serves forecast profiles published as CSV or JSON files on an FTP
// server. The whole file is read on every fetch; wrap it in a cache.
type FTPSource struct {
	Addr     string
	Path     string
	User     string
	Password string
	Timeout  time.Duration
	Log      logging.Logger
}

func (s *FTPSource) Name() string { return "ftp:" + path.Base(s.Path) }

func (s *FTPSource) Fetch(ctx context.Context, q weather.Query) (*weather.Grid, error) {
	body, err := s.retrieve(ctx)
	if err != nil {
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: s.Name(), Err: err}
	}
	points, err := ParseProfile(s.Path, body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return profileGrid(ctx, s.Name(), points, q, s.Log)
}

func (s *FTPSource) retrieve(ctx context.Context) (io.Reader, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultFTPTimeout
	}
	conn, err := ftp.Dial(s.Addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := s.User, s.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(s.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	b, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ftp read: %w", err)
	}
	return bytes.NewReader(b), nil
}

// FileSource serves forecast profiles from a local CSV or JSON file.
type FileSource struct {
	Path string
	Log  logging.Logger
}

func (s *FileSource) Name() string { return "file:" + path.Base(s.Path) }

func (s *FileSource) Fetch(ctx context.Context, q weather.Query) (*weather.Grid, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: s.Name(), Err: err}
	}
	defer f.Close()

	points, err := ParseProfile(s.Path, f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return profileGrid(ctx, s.Name(), points, q, s.Log)
}

// profileGrid validates a parsed profile and builds the part of it q needs.
func profileGrid(ctx context.Context, source string, points []weather.Point, q weather.Query, log logging.Logger) (*weather.Grid, error) {
	if log == nil {
		log = logging.Noop()
	}
	kept, flags := FilterPoints(source, points)
	if len(flags) > 0 {
		log.Warn(ctx, "profile: dropped implausible points",
			logging.String("source", source),
			logging.Int("dropped", len(points)-len(kept)),
			logging.String("flags", QualityFlagsToJSON(flags)),
		)
	}
	grid, err := weather.BuildGrid(source, weather.CompleteTimes(weather.Select(kept, q)))
	if err != nil {
		return nil, &models.Error{Kind: models.KindDataUnavailable, Op: source, Err: err}
	}
	return grid, nil
}
