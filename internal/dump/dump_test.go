package dump

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"galos/internal/galaxy"
	"galos/internal/ingest"
	"galos/internal/logger"
)

const edsmSample = `[
    {"id":27,"id64":10477373803,"name":"Sol","coords":{"x":0,"y":0,"z":0},"allegiance":"Federation","government":"Democracy","state":"Boom","economy":"Service","secondEconomy":"Industrial","security":"High","population":22780871769,"date":"2020-07-30 12:34:56"},
    {"id":28,"id64":1178708478315,"name":"Alpha Centauri","coords":{"x":3.03125,"y":-0.09375,"z":3.15625},"date":"2020-07-29 08:00:00"},
    {"id":29,"name":"No Address","coords":{"x":1,"y":1,"z":1},"date":"2020-07-29 08:00:00"},
    {"id":30,"id64":42,
    {"id":31,"id64":99,"name":"Updated","coords":{"x":5,"y":5,"z":5},"date":"2015-01-01 00:00:00","updateTime":{"information":"2020-08-01 10:00:00"}}
]
`

const eddbSample = `id,edsm_id,name,x,y,z,population,is_populated,government_id,government,allegiance_id,allegiance,security_id,security,primary_economy_id,primary_economy,power,power_state,power_state_id,needs_permit,updated_at,simbad_ref,controlling_minor_faction_id,controlling_minor_faction,reserve_type_id,reserve_type,ed_system_address
17072,27,Sol,0,0,0,22780919531,1,144,Democracy,3,Federation,48,High,4,High Tech,,,,1,1596148190,Sol,586,Mother Gaia,,,10477373803
1,12345,Unmapped,1.5,-2.25,3,,0,,,,,,,,,,,,0,1596148190,,,,,,
2,12346,Broken,abc,0,0,,0,,,,,,,,,,,,0,1596148190,,,,,,
0,12347,Zero,0,0,0,,0,,,,,,,,,,,,0,1596148190,,,,,,
`

func collect(out *[]ingest.Record) func(ingest.Record) error {
	return func(r ingest.Record) error {
		*out = append(*out, r)
		return nil
	}
}

func TestReadEDSM(t *testing.T) {
	logger.SetOutput(io.Discard)
	var got []ingest.Record
	n, err := ReadEDSM(context.Background(), strings.NewReader(edsmSample), collect(&got))
	if err != nil {
		t.Fatalf("ReadEDSM: %v", err)
	}
	if n != 3 || len(got) != 3 {
		t.Fatalf("records = %d (%d), want 3", n, len(got))
	}

	sol := got[0].System
	if sol.Address != 10477373803 || sol.Name != "Sol" || sol.Population != 22780871769 {
		t.Errorf("Sol = %+v", sol)
	}
	if sol.Security != galaxy.SecurityHigh || sol.PrimaryEconomy != galaxy.EconomyService || sol.SecondaryEconomy != galaxy.EconomyIndustrial {
		t.Errorf("Sol enums = %q %q %q", sol.Security, sol.PrimaryEconomy, sol.SecondaryEconomy)
	}
	if want := time.Date(2020, 7, 30, 12, 34, 56, 0, time.UTC); !got[0].UpdatedAt.Equal(want) {
		t.Errorf("Sol UpdatedAt = %v, want %v", got[0].UpdatedAt, want)
	}
	if got[1].System.Position != (galaxy.Coordinate{X: 3.03125, Y: -0.09375, Z: 3.15625}) {
		t.Errorf("Alpha Centauri position = %+v", got[1].System.Position)
	}
	if want := time.Date(2020, 8, 1, 10, 0, 0, 0, time.UTC); !got[2].UpdatedAt.Equal(want) {
		t.Errorf("updateTime not preferred: %v", got[2].UpdatedAt)
	}
}

func TestReadEDSM_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	n, err := ReadEDSM(context.Background(), strings.NewReader(edsmSample), func(ingest.Record) error { return stop })
	if !errors.Is(err, stop) || n != 0 {
		t.Errorf("ReadEDSM = %d, %v; want 0, stop", n, err)
	}
}

func TestLoadEDSM_GzipFileAndURL(t *testing.T) {
	logger.SetOutput(io.Discard)
	dir := t.TempDir()
	path := filepath.Join(dir, "systemsPopulated.json.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(edsmSample)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	f.Close()

	ctx := context.Background()
	var fromFile []ingest.Record
	if n, err := LoadEDSM(ctx, path, collect(&fromFile)); err != nil || n != 3 {
		t.Fatalf("LoadEDSM(file) = %d, %v; want 3", n, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dump/systemsPopulated.json.gz" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}))
	defer srv.Close()

	var fromURL []ingest.Record
	if n, err := LoadEDSM(ctx, srv.URL+"/dump/systemsPopulated.json.gz", collect(&fromURL)); err != nil || n != 3 {
		t.Fatalf("LoadEDSM(url) = %d, %v; want 3", n, err)
	}
	if _, err := LoadEDSM(ctx, srv.URL+"/missing.json", collect(&fromURL)); err == nil {
		t.Error("LoadEDSM of a 404 should fail")
	}
}

func TestFetch_HeaderTimeout(t *testing.T) {
	logger.SetOutput(io.Discard)
	saved := downloadClient
	downloadClient = newDownloadClient(50 * time.Millisecond).SetRetryCount(0)
	t.Cleanup(func() { downloadClient = saved })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	if _, err := Open(context.Background(), srv.URL+"/systems.json"); err == nil {
		t.Fatal("Open of a stalled server should fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Open waited %v for headers", elapsed)
	}
}

func TestLoadEDDB(t *testing.T) {
	logger.SetOutput(io.Discard)
	var got []ingest.Record
	n, err := LoadEDDB(context.Background(), strings.NewReader(eddbSample), collect(&got))
	if err != nil {
		t.Fatalf("LoadEDDB: %v", err)
	}
	if n != 2 {
		t.Fatalf("records = %d, want 2", n)
	}

	sol := got[0].System
	if sol.Address != 10477373803 || sol.Name != "Sol" || sol.Population != 22780919531 {
		t.Errorf("Sol = %+v", sol)
	}
	if sol.Government != galaxy.GovernmentDemocracy || sol.Allegiance != galaxy.AllegianceFederation ||
		sol.Security != galaxy.SecurityHigh || sol.PrimaryEconomy != galaxy.EconomyHighTech {
		t.Errorf("Sol enums = %q %q %q %q", sol.Government, sol.Allegiance, sol.Security, sol.PrimaryEconomy)
	}
	if !got[0].UpdatedAt.Equal(time.Unix(1596148190, 0)) {
		t.Errorf("UpdatedAt = %v", got[0].UpdatedAt)
	}

	unmapped := got[1].System
	if int64(unmapped.Address) != -1 {
		t.Errorf("fallback address = %d, want -1 as uint64", int64(unmapped.Address))
	}
	if unmapped.Population != 0 || unmapped.Position != (galaxy.Coordinate{X: 1.5, Y: -2.25, Z: 3}) {
		t.Errorf("Unmapped = %+v", unmapped)
	}
}

func TestLoadEDDB_MissingColumn(t *testing.T) {
	_, err := LoadEDDB(context.Background(), strings.NewReader("id,name,x,y\n1,A,0,0\n"), collect(new([]ingest.Record)))
	if err == nil || !strings.Contains(err.Error(), `"z"`) {
		t.Errorf("err = %v, want missing column z", err)
	}
}
