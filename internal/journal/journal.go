// Package journal reads Elite Dangerous player journal events. The same event
// shapes arrive over EDDN, so both feeds share the parser and the Importer.
package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"galos/internal/galaxy"
	"galos/internal/ingest"
	"galos/internal/logger"
)

// Event names the importer understands.
const (
	EventLocation    = "Location"
	EventFSDJump     = "FSDJump"
	EventCarrierJump = "CarrierJump"
)

// ErrUnsupported is returned by ParseEvent for events that carry no system data.
var ErrUnsupported = errors.New("unsupported journal event")

// Event is the system-bearing part of a Location, FSDJump or CarrierJump entry.
type Event struct {
	Timestamp           time.Time `json:"timestamp"`
	Event               string    `json:"event"`
	StarSystem          string    `json:"StarSystem"`
	SystemAddress       uint64    `json:"SystemAddress"`
	StarPos             []float64 `json:"StarPos"`
	Population          uint64    `json:"Population"`
	SystemSecurity      string    `json:"SystemSecurity"`
	SystemGovernment    string    `json:"SystemGovernment"`
	SystemAllegiance    string    `json:"SystemAllegiance"`
	SystemEconomy       string    `json:"SystemEconomy"`
	SystemSecondEconomy string    `json:"SystemSecondEconomy"`

	// FSDJump only.
	JumpDist  *float64 `json:"JumpDist,omitempty"`
	FuelUsed  *float64 `json:"FuelUsed,omitempty"`
	FuelLevel *float64 `json:"FuelLevel,omitempty"`
}

// ParseEvent decodes one journal line. Events other than Location, FSDJump
// and CarrierJump return ErrUnsupported.
func ParseEvent(line []byte) (Event, error) {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Event{}, fmt.Errorf("decode journal entry: %w", err)
	}
	switch head.Event {
	case EventLocation, EventFSDJump, EventCarrierJump:
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupported, head.Event)
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", head.Event, err)
	}
	return ev, nil
}

// Record converts the event into an ingest record.
func (e Event) Record(source string) (ingest.Record, error) {
	if e.SystemAddress == 0 {
		return ingest.Record{}, fmt.Errorf("%w: %s %q has no SystemAddress", ingest.ErrInvalidRecord, e.Event, e.StarSystem)
	}
	if len(e.StarPos) != 3 {
		return ingest.Record{}, fmt.Errorf("%w: %s %q has %d coordinates", ingest.ErrInvalidRecord, e.Event, e.StarSystem, len(e.StarPos))
	}
	return ingest.Record{
		System: galaxy.System{
			Address:          e.SystemAddress,
			Name:             e.StarSystem,
			Position:         galaxy.Coordinate{X: e.StarPos[0], Y: e.StarPos[1], Z: e.StarPos[2]},
			Population:       e.Population,
			Security:         galaxy.ParseSecurity(e.SystemSecurity),
			Government:       galaxy.ParseGovernment(e.SystemGovernment),
			Allegiance:       galaxy.ParseAllegiance(e.SystemAllegiance),
			PrimaryEconomy:   galaxy.ParseEconomy(e.SystemEconomy),
			SecondaryEconomy: galaxy.ParseEconomy(e.SystemSecondEconomy),
		},
		UpdatedAt: e.Timestamp.UTC(),
		Source:    source,
	}, nil
}

// Jump returns the observed jump for FSDJump and CarrierJump events.
// FSDJump burns hydrogen; carrier jumps cost the ship nothing.
func (e Event) Jump() (galaxy.Jump, bool) {
	switch e.Event {
	case EventFSDJump:
		cost := &galaxy.Cost{Fuel: galaxy.FuelHydrogen}
		if e.JumpDist != nil {
			cost.Distance = *e.JumpDist
		}
		if e.FuelUsed != nil {
			cost.Used = *e.FuelUsed
		}
		if e.FuelLevel != nil {
			cost.Level = *e.FuelLevel
		}
		return galaxy.NewJump(e.SystemAddress, cost, e.Timestamp), true
	case EventCarrierJump:
		return galaxy.NewJump(e.SystemAddress, nil, e.Timestamp), true
	default:
		return galaxy.Jump{}, false
	}
}

// JumpStore records observed jumps.
type JumpStore interface {
	InsertJump(ctx context.Context, j galaxy.Jump) error
	LinkJump(ctx context.Context, from, to uuid.UUID) error
}

// Importer applies events to the system store and the jump log. It is not
// safe for concurrent use.
type Importer struct {
	sink   *ingest.Sink
	jumps  JumpStore
	source string

	// Chain links each recorded jump to the previous one. Set it for a single
	// commander's journal, not for a multi-commander feed.
	Chain bool
	prev  uuid.NullUUID

	Events int
	Jumps  int
}

// NewImporter returns an importer that tags its log lines with source.
func NewImporter(sink *ingest.Sink, jumps JumpStore, source string) *Importer {
	return &Importer{sink: sink, jumps: jumps, source: source}
}

// Apply stores the event's system and, for jump events, the jump. Failures
// are logged and skipped; only a done ctx is returned.
func (im *Importer) Apply(ctx context.Context, ev Event) error {
	rec, err := ev.Record(im.source)
	if err != nil {
		logger.Warn(im.source, err.Error())
		return nil
	}
	if err := im.sink.Put(ctx, rec); err != nil {
		return err
	}
	im.Events++

	j, ok := ev.Jump()
	if !ok || im.jumps == nil {
		return nil
	}
	if err := im.jumps.InsertJump(ctx, j); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Error(im.source, fmt.Sprintf("Record jump to %s: %v", ev.StarSystem, err))
		return nil
	}
	im.Jumps++

	if im.Chain && im.prev.Valid {
		if err := im.jumps.LinkJump(ctx, im.prev.UUID, j.ID); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn(im.source, fmt.Sprintf("Link jump %s: %v", j.ID, err))
		}
	}
	im.prev = uuid.NullUUID{UUID: j.ID, Valid: true}
	return nil
}

// Import reads journal lines from r and applies every supported event.
// Malformed lines are logged and skipped.
func (im *Importer) Import(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		ev, err := ParseEvent(raw)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			logger.Warn(im.source, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := im.Apply(ctx, ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ImportFile imports a single journal file.
func (im *Importer) ImportFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := im.Import(ctx, f); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// Files expands paths into journal files. Directories contribute their
// Journal.*.log files; the result is in chronological (name) order.
func Files(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "Journal.*.log"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
