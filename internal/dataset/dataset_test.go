package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fairroc/internal/storage"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	csvData := `score,label,privileged
0.9,1,1
0.3,0,true
0.55,yes,0
0.1,false,no
`
	path := writeTempFile(t, "data.csv", csvData)

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load CSV: %v", err)
	}
	if ds.Len() != 4 {
		t.Fatalf("Expected 4 instances, got %d", ds.Len())
	}

	wantScores := []float64{0.9, 0.3, 0.55, 0.1}
	wantLabels := []bool{true, false, true, false}
	wantPriv := []bool{true, true, false, false}
	for i := range wantScores {
		if ds.Scores[i] != wantScores[i] {
			t.Errorf("Instance %d: expected score %f, got %f", i, wantScores[i], ds.Scores[i])
		}
		if ds.Labels[i] != wantLabels[i] {
			t.Errorf("Instance %d: expected label %v, got %v", i, wantLabels[i], ds.Labels[i])
		}
		if ds.Privileged[i] != wantPriv[i] {
			t.Errorf("Instance %d: expected privileged %v, got %v", i, wantPriv[i], ds.Privileged[i])
		}
	}
}

func TestLoadCSV_ExtraColumnsIgnored(t *testing.T) {
	csvData := `id,score,label,privileged,note
a,0.5,1,0,first
b,0.6,0,1,second
`
	path := writeTempFile(t, "data.csv", csvData)

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load CSV: %v", err)
	}
	if ds.Len() != 2 {
		t.Errorf("Expected 2 instances, got %d", ds.Len())
	}
}

func TestLoadCSV_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "missing column",
			content: "score,label\n0.5,1\n",
			wantMsg: "privileged",
		},
		{
			name:    "bad score",
			content: "score,label,privileged\nnope,1,0\n",
			wantMsg: "bad score",
		},
		{
			name:    "bad label",
			content: "score,label,privileged\n0.5,maybe,0\n",
			wantMsg: "bad label",
		},
		{
			name:    "score out of range",
			content: "score,label,privileged\n1.5,1,0\n",
			wantMsg: "outside [0, 1]",
		},
		{
			name:    "empty body",
			content: "score,label,privileged\n",
			wantMsg: "empty",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, "data.csv", tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestLoadJSONL(t *testing.T) {
	jsonl := `{"score":0.8,"label":true,"privileged":true}
{"score":0.4,"label":false,"privileged":false}
{"score":0.6,"label":true,"privileged":false}
`
	path := writeTempFile(t, "data.jsonl", jsonl)

	ds, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load JSONL: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Expected 3 instances, got %d", ds.Len())
	}
	if ds.Scores[1] != 0.4 || ds.Labels[1] || ds.Privileged[1] {
		t.Errorf("Instance 1 mismatch: score %f, label %v, privileged %v",
			ds.Scores[1], ds.Labels[1], ds.Privileged[1])
	}
}

func TestLoadJSONL_Malformed(t *testing.T) {
	path := writeTempFile(t, "data.jsonl", `{"score":0.8,"label":true}{"broken`)
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed JSONL, got nil")
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeTempFile(t, "data.parquet", "whatever")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unsupported extension, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadFromStore(t *testing.T) {
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	insts := []storage.ScoredInstance{
		{ModelID: "m", Timestamp: base, Score: 0.2, Label: false, Privileged: true},
		{ModelID: "m", Timestamp: base.Add(time.Minute), Score: 0.7, Label: true, Privileged: false},
		{ModelID: "other", Timestamp: base, Score: 0.9, Label: true, Privileged: true},
	}
	if err := store.StoreInstances(insts); err != nil {
		t.Fatalf("Failed to store instances: %v", err)
	}

	ds, err := LoadFromStore(store, "m", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to load from store: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("Expected 2 instances, got %d", ds.Len())
	}
	if ds.Scores[0] != 0.2 || ds.Scores[1] != 0.7 {
		t.Errorf("Unexpected scores %v", ds.Scores)
	}
}

func TestLoadFromStore_Empty(t *testing.T) {
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	_, err = LoadFromStore(store, "missing", time.Unix(0, 0), time.Now())
	if err == nil {
		t.Error("Expected error for empty stored dataset, got nil")
	}
}

func TestDataset_Validate(t *testing.T) {
	ds := &Dataset{
		Scores:     []float64{0.5, 0.6},
		Labels:     []bool{true},
		Privileged: []bool{true, false},
	}
	if err := ds.Validate(); err == nil {
		t.Error("Expected error for misaligned dataset, got nil")
	}
}
