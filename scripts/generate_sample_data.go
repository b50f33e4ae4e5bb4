// Generates a synthetic biased validation set for exercising the calibration
// CLI: privileged instances receive systematically higher scores, so plain
// thresholding violates statistical parity.
//
// Usage: go run scripts/generate_sample_data.go -out data/sample.csv -n 2000
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
)

func main() {
	var (
		outPath = flag.String("out", "data/sample.csv", "Output CSV path")
		n       = flag.Int("n", 2000, "Number of instances")
		seed    = flag.Int64("seed", 42, "Random seed")
		bias    = flag.Float64("bias", 0.15, "Score bonus applied to privileged instances")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	file, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"score", "label", "privileged"}); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	for i := 0; i < *n; i++ {
		privileged := rng.Float64() < 0.5
		label := rng.Float64() < 0.5

		// A noisy but informative scorer, with a group-dependent shift.
		score := 0.35 + rng.NormFloat64()*0.15
		if label {
			score += 0.25
		}
		if privileged {
			score += *bias
		}
		score = clamp(score, 0, 1)

		record := []string{
			fmt.Sprintf("%.6f", score),
			boolBit(label),
			boolBit(privileged),
		}
		if err := writer.Write(record); err != nil {
			log.Fatalf("failed to write record: %v", err)
		}
	}

	log.Printf("wrote %d instances to %s", *n, *outPath)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolBit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
