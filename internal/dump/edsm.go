// Package dump reads the nightly bulk dumps published by EDSM and EDDB.
package dump

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"galos/internal/galaxy"
	"galos/internal/ingest"
	"galos/internal/logger"
)

// EDSMPopulatedURL is the EDSM nightly dump of populated systems.
const EDSMPopulatedURL = "https://www.edsm.net/dump/systemsPopulated.json.gz"

const edsmDateLayout = "2006-01-02 15:04:05"

type edsmSystem struct {
	ID     uint64  `json:"id"`
	ID64   *uint64 `json:"id64"`
	Name   string  `json:"name"`
	Coords *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"coords"`
	Population uint64 `json:"population"`
	Security   string `json:"security"`
	Government string `json:"government"`
	Allegiance string `json:"allegiance"`
	Economy    string `json:"economy"`
	// Only populated systems carry the second economy.
	SecondEconomy string `json:"secondEconomy"`
	Date          string `json:"date"`
	UpdateTime    *struct {
		Information string `json:"information"`
	} `json:"updateTime"`
}

func (s edsmSystem) record() (ingest.Record, error) {
	if s.ID64 == nil || *s.ID64 == 0 {
		return ingest.Record{}, fmt.Errorf("%w: %q has no id64", ingest.ErrInvalidRecord, s.Name)
	}
	if s.Coords == nil {
		return ingest.Record{}, fmt.Errorf("%w: %q has no coordinates", ingest.ErrInvalidRecord, s.Name)
	}
	date := s.Date
	if s.UpdateTime != nil && s.UpdateTime.Information != "" {
		date = s.UpdateTime.Information
	}
	updatedAt, err := time.ParseInLocation(edsmDateLayout, date, time.UTC)
	if err != nil {
		return ingest.Record{}, fmt.Errorf("%w: %q date %q", ingest.ErrInvalidRecord, s.Name, date)
	}
	return ingest.Record{
		System: galaxy.System{
			Address:          *s.ID64,
			Name:             s.Name,
			Position:         galaxy.Coordinate{X: s.Coords.X, Y: s.Coords.Y, Z: s.Coords.Z},
			Population:       s.Population,
			Security:         galaxy.ParseSecurity(s.Security),
			Government:       galaxy.ParseGovernment(s.Government),
			Allegiance:       galaxy.ParseAllegiance(s.Allegiance),
			PrimaryEconomy:   galaxy.ParseEconomy(s.Economy),
			SecondaryEconomy: galaxy.ParseEconomy(s.SecondEconomy),
		},
		UpdatedAt: updatedAt,
		Source:    "EDSM",
	}, nil
}

// LoadEDSM reads an EDSM systems dump from a file path or an http(s) URL.
// fn is called for every valid system; it returns the number of records
// handed to fn.
func LoadEDSM(ctx context.Context, src string, fn func(ingest.Record) error) (int, error) {
	r, err := Open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return ReadEDSM(ctx, r, fn)
}

// ReadEDSM reads a dump laid out as a JSON array with one system per line.
// Malformed lines are logged and skipped.
func ReadEDSM(ctx context.Context, r io.Reader, fn func(ingest.Record) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 4*1024*1024)

	n, line := 0, 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		raw = bytes.TrimSuffix(raw, []byte(","))
		if len(raw) == 0 || bytes.Equal(raw, []byte("[")) || bytes.Equal(raw, []byte("]")) {
			continue
		}

		var s edsmSystem
		if err := json.Unmarshal(raw, &s); err != nil {
			logger.Warn("EDSM", fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		rec, err := s.record()
		if err != nil {
			logger.Warn("EDSM", fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := fn(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, scanner.Err()
}

// Open opens a dump from a file path or an http(s) URL. Sources ending in
// .gz are inflated.
func Open(ctx context.Context, src string) (io.ReadCloser, error) {
	rc, err := fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(src, ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("gunzip %s: %w", src, err)
	}
	return &gzipReadCloser{Reader: zr, src: rc}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.src.Close(); err == nil {
		err = cerr
	}
	return err
}

// downloadClient bounds the wait for response headers but not the body, so a
// multi-gigabyte dump can stream for as long as it takes.
var downloadClient = newDownloadClient(30 * time.Second)

func newDownloadClient(headerTimeout time.Duration) *resty.Client {
	return resty.New().
		SetTransport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
		}).
		SetLogger(restyLogger{}).
		SetHeader("User-Agent", "galos").
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
}

// restyLogger sends the client's retry and error notes to the app log.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logger.Error("Dump", fmt.Sprintf(format, v...)) }
func (restyLogger) Warnf(format string, v ...interface{})  { logger.Warn("Dump", fmt.Sprintf(format, v...)) }
func (restyLogger) Debugf(format string, v ...interface{}) { logger.Debug("Dump", fmt.Sprintf(format, v...)) }

func fetch(ctx context.Context, src string) (io.ReadCloser, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.Open(src)
	}
	logger.Info("Dump", "Downloading "+src)
	resp, err := downloadClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(src)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", src, err)
	}
	if resp.StatusCode() != http.StatusOK {
		resp.RawBody().Close()
		return nil, fmt.Errorf("download %s: HTTP %d", src, resp.StatusCode())
	}
	return resp.RawBody(), nil
}
