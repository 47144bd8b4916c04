// Test Data Generator for Vantage
//
// This tool generates synthetic point clouds as CSV files for exercising the
// vantage build and search commands.
//
// Usage:
//
//	go run cmd/vantage-test-data/main.go [options]
//
// Options:
//
//	-mode      Generation mode: uniform, clusters (default: clusters)
//	-count     Number of points to generate (default: 5000)
//	-dims      Point dimensions (default: 8)
//	-clusters  Number of natural clusters for 'clusters' mode (default: 20)
//	-spread    Standard deviation of points around their cluster center (default: 0.05)
//	-queries   Also generate this many query points near the data (default: 0)
//	-output    Output directory (default: ./data/test)
//	-seed      Random seed for reproducibility (default: 42)
//
// Examples:
//
//	# Generate 5000 uniform random points
//	go run cmd/vantage-test-data/main.go -mode uniform -count 5000
//
//	# Generate 10000 points in 50 tight clusters plus 500 queries
//	go run cmd/vantage-test-data/main.go -count 10000 -clusters 50 -queries 500
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	mode := flag.String("mode", "clusters", "Generation mode: uniform, clusters")
	count := flag.Int("count", 5000, "Number of points to generate")
	dims := flag.Int("dims", 8, "Point dimensions")
	numClusters := flag.Int("clusters", 20, "Number of natural clusters")
	spread := flag.Float64("spread", 0.05, "Cluster spread (standard deviation)")
	queries := flag.Int("queries", 0, "Number of query points to generate")
	outputDir := flag.String("output", "./data/test", "Output directory")
	seed := flag.Int64("seed", 42, "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	log.Printf("Vantage test data generator")
	log.Printf("   Mode: %s", *mode)
	log.Printf("   Seed: %d", *seed)
	log.Printf("   Count: %d, dims: %d", *count, *dims)

	var points [][]float32
	switch *mode {
	case "uniform":
		points = generateUniform(rng, *count, *dims)
	case "clusters":
		log.Printf("   Clusters: %d, spread: %g", *numClusters, *spread)
		points = generateClustered(rng, *count, *dims, *numClusters, float32(*spread))
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Creating output directory: %v", err)
	}

	pointsPath := filepath.Join(*outputDir, "points.csv")
	if err := writeCSV(pointsPath, points); err != nil {
		log.Fatalf("Writing points: %v", err)
	}
	log.Printf("Wrote %d points to %s", len(points), pointsPath)

	if *queries > 0 {
		// Queries are existing points plus a little noise, so every query
		// has a close, nontrivial nearest neighbor.
		qs := make([][]float32, *queries)
		for i := range qs {
			base := points[rng.Intn(len(points))]
			q := make([]float32, *dims)
			for d := range q {
				q[d] = base[d] + float32(rng.NormFloat64())*0.01
			}
			qs[i] = q
		}
		queriesPath := filepath.Join(*outputDir, "queries.csv")
		if err := writeCSV(queriesPath, qs); err != nil {
			log.Fatalf("Writing queries: %v", err)
		}
		log.Printf("Wrote %d queries to %s", len(qs), queriesPath)
	}
}

func generateUniform(rng *rand.Rand, count, dims int) [][]float32 {
	points := make([][]float32, count)
	for i := range points {
		p := make([]float32, dims)
		for d := range p {
			p[d] = rng.Float32()
		}
		points[i] = p
	}
	return points
}

func generateClustered(rng *rand.Rand, count, dims, clusters int, spread float32) [][]float32 {
	centers := generateUniform(rng, clusters, dims)
	points := make([][]float32, count)
	for i := range points {
		center := centers[i%clusters]
		p := make([]float32, dims)
		for d := range p {
			p[d] = center[d] + float32(rng.NormFloat64())*spread
		}
		points[i] = p
	}
	// Shuffle so cluster membership does not correlate with row order.
	rng.Shuffle(len(points), func(i, j int) {
		points[i], points[j] = points[j], points[i]
	})
	return points
}

func writeCSV(path string, points [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	row := make([]string, 0, 16)
	for _, p := range points {
		row = row[:0]
		for _, c := range p {
			row = append(row, strconv.FormatFloat(float64(c), 'g', -1, 32))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
