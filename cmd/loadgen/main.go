// cmd/loadgen fires concurrent purchase attempts against a running server
// and reports the outcome histogram, useful for confirming no overselling
// and no double purchase happen under concurrent load.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type metrics struct {
	requestsSent      int64
	requestsCompleted int64

	success          int64
	alreadyPurchased int64
	outOfStock       int64
	saleNotActive    int64
	invalidUserID    int64
	clientErrors4xx  int64
	serverErrors5xx  int64
	networkErrors    int64
}

func (m *metrics) recordResult(statusCode int, result string) {
	atomic.AddInt64(&m.requestsCompleted, 1)
	switch result {
	case "success":
		atomic.AddInt64(&m.success, 1)
	case "already_purchased":
		atomic.AddInt64(&m.alreadyPurchased, 1)
	case "out_of_stock":
		atomic.AddInt64(&m.outOfStock, 1)
	case "sale_not_active":
		atomic.AddInt64(&m.saleNotActive, 1)
	case "invalid_user_id":
		atomic.AddInt64(&m.invalidUserID, 1)
	}
	switch {
	case statusCode >= 500:
		atomic.AddInt64(&m.serverErrors5xx, 1)
	case statusCode >= 400 && result == "":
		atomic.AddInt64(&m.clientErrors4xx, 1)
	}
}

func (m *metrics) recordNetworkError() {
	atomic.AddInt64(&m.requestsCompleted, 1)
	atomic.AddInt64(&m.networkErrors, 1)
}

func (m *metrics) printFinal(duration time.Duration) {
	sent := atomic.LoadInt64(&m.requestsSent)
	completed := atomic.LoadInt64(&m.requestsCompleted)

	fmt.Printf("\n=== LOAD TEST RESULTS ===\n")
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Requests sent: %d\n", sent)
	fmt.Printf("Requests completed: %d (%.2f%%)\n", completed, float64(completed)/float64(sent)*100)

	fmt.Printf("\n--- Outcomes ---\n")
	fmt.Printf("success:            %d\n", atomic.LoadInt64(&m.success))
	fmt.Printf("already_purchased:  %d\n", atomic.LoadInt64(&m.alreadyPurchased))
	fmt.Printf("out_of_stock:       %d\n", atomic.LoadInt64(&m.outOfStock))
	fmt.Printf("sale_not_active:    %d\n", atomic.LoadInt64(&m.saleNotActive))
	fmt.Printf("invalid_user_id:    %d\n", atomic.LoadInt64(&m.invalidUserID))

	fmt.Printf("\n--- Failures ---\n")
	fmt.Printf("5xx server errors:  %d\n", atomic.LoadInt64(&m.serverErrors5xx))
	fmt.Printf("network errors:     %d\n", atomic.LoadInt64(&m.networkErrors))

	fmt.Printf("\n--- Invariant check ---\n")
	success := atomic.LoadInt64(&m.success)
	fmt.Printf("items sold (success count, compare against configured total stock): %d\n", success)
}

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:3001", "server base URL")
		totalUsers = flag.Int("users", 1000, "number of distinct synthetic users")
		concurrent = flag.Int("concurrency", 100, "max in-flight requests")
		repeatEach = flag.Int("repeat", 1, "purchase attempts per user (>1 exercises double-purchase rejection)")
		userPrefix = flag.String("prefix", "loadgen_user_", "synthetic user id prefix")
	)
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrent * 2,
			MaxIdleConnsPerHost: *concurrent,
			MaxConnsPerHost:     *concurrent,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	url := *baseURL + "/api/sale/purchase"
	total := *totalUsers * *repeatEach

	fmt.Printf("Starting load test: %d users x %d attempts = %d requests, concurrency %d\n",
		*totalUsers, *repeatEach, total, *concurrent)

	var m metrics
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrent)
	start := time.Now()

	for u := 0; u < *totalUsers; u++ {
		userID := fmt.Sprintf("%s%d", *userPrefix, u)
		for a := 0; a < *repeatEach; a++ {
			wg.Add(1)
			sem <- struct{}{}
			atomic.AddInt64(&m.requestsSent, 1)

			go func(userID string) {
				defer wg.Done()
				defer func() { <-sem }()

				body, _ := json.Marshal(map[string]string{"user_id": userID})
				resp, err := client.Post(url, "application/json", bytes.NewReader(body))
				if err != nil {
					m.recordNetworkError()
					return
				}
				defer resp.Body.Close()

				var decoded struct {
					Result string `json:"result"`
				}
				json.NewDecoder(resp.Body).Decode(&decoded)
				m.recordResult(resp.StatusCode, decoded.Result)
			}(userID)
		}
	}

	wg.Wait()
	m.printFinal(time.Since(start))
}
