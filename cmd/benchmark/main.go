// Benchmark tool for replaying test cases against a dmnsim server.
//
// Usage:
//
//	go run ./cmd/benchmark -dmn table.dmn -decision d1 -csv cases.csv -url http://localhost:8080
//
// This tool:
//  1. Reads a DMN document and a CSV of input variables (one case per row)
//  2. Sends each case to /api/dmn/evaluate
//  3. Compares the matched rows with the optional "expected" column
//  4. Reports how often every rule row fired and which never did
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EvaluateRequest is the dmnsim API request format
type EvaluateRequest struct {
	DMNXml     string         `json:"dmnXml"`
	DecisionID string         `json:"decisionId"`
	Variables  map[string]any `json:"variables"`
}

// EvaluateResponse is the part of the dmnsim API response the benchmark reads
type EvaluateResponse struct {
	MatchedRuleIndexes []int `json:"matchedRuleIndexes"`
}

// Parse response, used to learn how many rows the table has
type parseResponse struct {
	Decisions []struct {
		ID    string `json:"id"`
		Rules []struct {
			Index int `json:"index"`
		} `json:"rules"`
	} `json:"decisions"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	Expected       int64 // cases that carried an expectation
	Mismatches     int64
	NoMatch        int64

	ProcessingTimeMs int64

	mu       sync.Mutex
	ruleHits map[int]int64
}

func (m *Metrics) hit(indexes []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range indexes {
		m.ruleHits[i]++
	}
}

func main() {
	dmnPath := flag.String("dmn", "", "Path to the DMN document")
	decisionID := flag.String("decision", "", "Decision id to evaluate")
	csvPath := flag.String("csv", "", "Path to the CSV of input variables")
	baseURL := flag.String("url", "http://localhost:8080", "dmnsim base URL")
	limit := flag.Int("limit", 0, "Maximum cases to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	if *dmnPath == "" || *decisionID == "" || *csvPath == "" {
		fmt.Println("Usage: benchmark -dmn table.dmn -decision d1 -csv cases.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|             DMNSIM BENCHMARK - Rule Coverage                  |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nDocument:    %s\n", *dmnPath)
	fmt.Printf("Decision:    %s\n", *decisionID)
	fmt.Printf("Cases:       %s\n", *csvPath)
	fmt.Printf("dmnsim URL:  %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: dmnsim not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure dmnsim is running:")
		fmt.Println("  go run ./cmd/dmnsim")
		os.Exit(1)
	}
	fmt.Println("OK dmnsim is healthy")

	doc, err := os.ReadFile(*dmnPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to read document: %v\n", err)
		os.Exit(1)
	}

	ruleCount, err := countRules(*baseURL, string(doc), *decisionID)
	if err != nil {
		fmt.Printf("ERROR: Failed to parse document: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK decision %s has %d rules\n", *decisionID, ruleCount)

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	cases, err := readCases(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK loaded %d cases\n", len(cases))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(cases, *baseURL, string(doc), *decisionID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, ruleCount, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func countRules(baseURL, doc, decisionID string) (int, error) {
	body, err := json.Marshal(map[string]string{"dmnXml": doc})
	if err != nil {
		return 0, err
	}
	resp, err := http.Post(baseURL+"/api/dmn/parse", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, err
	}
	for _, d := range parsed.Decisions {
		if d.ID == decisionID {
			return len(d.Rules), nil
		}
	}
	return 0, fmt.Errorf("decision %q not found in document", decisionID)
}

func runBenchmark(cases []Case, baseURL, doc, decisionID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{ruleHits: make(map[int]int64)}

	work := make(chan Case, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := evaluateCase(client, baseURL, doc, decisionID, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", c.Line, err)
					}
					continue
				}

				metrics.hit(result.MatchedRuleIndexes)
				if len(result.MatchedRuleIndexes) == 0 {
					atomic.AddInt64(&metrics.NoMatch, 1)
				}

				status := " "
				if c.Expected != nil {
					atomic.AddInt64(&metrics.Expected, 1)
					status = "+"
					if !sameRows(c.Expected, result.MatchedRuleIndexes) {
						atomic.AddInt64(&metrics.Mismatches, 1)
						status = "x"
					}
				}

				if verbose {
					fmt.Printf("%s line %-6d | matched: %-12v | expected: %v\n",
						status, c.Line, result.MatchedRuleIndexes, c.Expected)
				}
			}
		}()
	}

	for _, c := range cases {
		work <- c
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateCase(client *http.Client, baseURL, doc, decisionID string, c Case) (*EvaluateResponse, error) {
	req := EvaluateRequest{
		DMNXml:     doc,
		DecisionID: decisionID,
		Variables:  c.Variables,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/dmn/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, ruleCount int, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nCASES\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   No Row Matched:   %d\n", m.NoMatch)
	if m.Expected > 0 {
		fmt.Printf("   Expectations:     %d checked, %d mismatched\n", m.Expected, m.Mismatches)
	}

	fmt.Printf("\nRULE COVERAGE\n")
	rows := make([]int, 0, len(m.ruleHits))
	for row := range m.ruleHits {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	for _, row := range rows {
		fmt.Printf("   Row %-4d fired %d times\n", row, m.ruleHits[row])
	}

	unfired := unfiredRows(m.ruleHits, ruleCount)
	if len(unfired) > 0 {
		fmt.Printf("   Never fired:      %v\n", unfired)
	} else {
		fmt.Println("   Every row fired at least once")
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f eval/sec\n", tps)
	}

	fmt.Println()
}
