package chipdb

import (
	"strings"
	"testing"
)

const sampleCSV = `name,jedec_mfr,jedec_id0,jedec_id1,read_us,write_ms,write_ms_max,erase_ms,erase_ms_max
W25Q32JV,0xEF,0x40,0x16,8,0.7,3,45,400
W25Q64JV,0xEF,0x40,0x17,8,0.7,3,45,400
SST26VF032B,0xBF,0x26,0x42,5,1.2,1.5,18,25
MX25L3233F,0xC2,0x20,0x16,6,0.6,3,30,200
broken row,0xEF,nothex,0x16,8,0.7,3,45,400
short,0xEF,0x40
NODATA1,0x01,0x02,0x03,0,0.7,3,45,400
`

func loadSample(t *testing.T) []Entry {
	t.Helper()
	entries, err := Load(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	entries := loadSample(t)
	if len(entries) != 5 {
		t.Fatalf("loaded %d entries, want 5", len(entries))
	}

	e := entries[0]
	if e.Name != "W25Q32JV" || e.Manufacturer != 0xEF ||
		e.DeviceID != [2]byte{0x40, 0x16} {
		t.Errorf("first entry: %+v", e)
	}
	if e.ReadUs != 8 || e.ProgramMs != 0.7 || e.ProgramMaxMs != 3 ||
		e.EraseMs != 45 || e.EraseMaxMs != 400 {
		t.Errorf("first entry timings: %+v", e)
	}
}

func TestScoreIdentityBonus(t *testing.T) {
	entries := loadSample(t)
	obs := Observation{
		Manufacturer: 0xEF, MemoryType: 0x40, Capacity: 0x16,
		ReadUs: 8, ProgramMs: 0.7, EraseMs: 45,
	}

	exact := Score(entries[0], obs)   // same id, same timings
	partial := Score(entries[1], obs) // manufacturer only
	foreign := Score(entries[3], obs) // no id overlap

	if exact != idMatchBonus {
		t.Errorf("exact match score %v, want %v", exact, idMatchBonus)
	}
	if !(exact < partial && partial < foreign) {
		t.Errorf("score ordering broken: exact=%v partial=%v foreign=%v", exact, partial, foreign)
	}
}

func TestScoreTimingPenalty(t *testing.T) {
	e := Entry{ReadUs: 10, ProgramMs: 1, EraseMs: 50}

	near := Score(e, Observation{ReadUs: 11, ProgramMs: 1.1, EraseMs: 55})
	wide := Score(e, Observation{ReadUs: 30, ProgramMs: 5, EraseMs: 500})

	if near >= wide {
		t.Errorf("closer timings should score lower: %v >= %v", near, wide)
	}
}

func TestTopMatches(t *testing.T) {
	entries := loadSample(t)
	obs := Observation{
		Manufacturer: 0xEF, MemoryType: 0x40, Capacity: 0x16,
		ReadUs: 8, ProgramMs: 0.7, EraseMs: 45,
	}

	matches := TopMatches(entries, obs, 3)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].Entry.Name != "W25Q32JV" {
		t.Errorf("best match %q, want the exact-id part", matches[0].Entry.Name)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score < matches[i-1].Score {
			t.Error("matches not sorted by ascending score")
		}
	}
	for _, m := range matches {
		if m.Entry.Name == "NODATA1" {
			t.Error("entry without timing data was ranked")
		}
	}
}

func TestTopMatchesClampsN(t *testing.T) {
	entries := loadSample(t)
	obs := Observation{ReadUs: 8, ProgramMs: 0.7, EraseMs: 45}

	if got := TopMatches(entries, obs, 0); len(got) != 1 {
		t.Errorf("n=0 returned %d matches, want 1", len(got))
	}
	if got := TopMatches(entries, obs, 100); len(got) != 4 {
		t.Errorf("n=100 returned %d matches, want all 4 rankable", len(got))
	}
}
