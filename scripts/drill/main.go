// Drill exercises the failover proxy end to end: normal routing through the
// primary, failover under injected chaos, an operator pool swap, and
// recovery after chaos stops. Run two scripts/backend instances and the
// proxy first.
//
// Usage:
//
//	go run ./scripts/drill -proxy http://localhost:8080 \
//	    -primary http://localhost:9001 -standby http://localhost:9002
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		proxyURL   = flag.String("proxy", "http://localhost:8080", "Failover proxy URL")
		primaryURL = flag.String("primary", "http://localhost:9001", "Primary backend URL (chaos target)")
		requests   = flag.Int("requests", 20, "Requests per phase")
		cooldown   = flag.Duration("cooldown", 3*time.Second, "Configured proxy cooldown, for the recovery wait")
	)
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║         FAILOVER & POOL SWAP DRILL                             ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: Normal routing
	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Routing ━━━" + colorReset)
	pools := sendBatch(client, *proxyURL, *requests)
	report(pools)
	if pools["blue"]+pools["green"] == 0 {
		fmt.Println(colorRed + "  ✗ No responses! Is the proxy running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  ✓ Traffic flowing" + colorReset)
	fmt.Println()

	// PHASE 2: Chaos on the primary, traffic must keep succeeding
	fmt.Println(colorBlue + "━━━ PHASE 2: Primary Chaos ━━━" + colorReset)
	if err := chaos(client, *primaryURL, "start"); err != nil {
		fmt.Printf(colorRed+"  ✗ Could not start chaos: %v\n"+colorReset, err)
		os.Exit(1)
	}
	fmt.Printf("  Chaos started on %s\n", *primaryURL)

	failures := 0
	pools = make(map[string]int)
	for i := 0; i < *requests; i++ {
		pool, status, err := sendRequest(client, *proxyURL)
		if err != nil || status >= 500 {
			failures++
			continue
		}
		pools[pool]++
	}
	report(pools)
	if failures > 0 {
		fmt.Printf(colorYellow+"  %d request(s) failed during failover\n"+colorReset, failures)
	} else {
		fmt.Println(colorGreen + "  ✓ Zero client-visible failures under chaos" + colorReset)
	}
	fmt.Println()

	// PHASE 3: Operator swap while chaos is still running
	fmt.Println(colorBlue + "━━━ PHASE 3: Pool Swap ━━━" + colorReset)
	status, err := adminStatus(client, *proxyURL)
	if err != nil {
		fmt.Printf(colorRed+"  ✗ Status query failed: %v\n"+colorReset, err)
		os.Exit(1)
	}
	fmt.Printf("  Current status: %s\n", status)

	if err := swap(client, *proxyURL, "green"); err != nil {
		fmt.Printf(colorYellow+"  Swap to green: %v\n"+colorReset, err)
	} else {
		fmt.Println(colorGreen + "  ✓ Swapped primary to green" + colorReset)
	}
	fmt.Println()

	// PHASE 4: Stop chaos, wait out the cooldown, verify recovery
	fmt.Println(colorBlue + "━━━ PHASE 4: Recovery ━━━" + colorReset)
	if err := chaos(client, *primaryURL, "stop"); err != nil {
		fmt.Printf(colorYellow+"  Could not stop chaos: %v\n"+colorReset, err)
	}
	fmt.Printf("  Waiting %s for the cooldown to elapse...\n", *cooldown)
	time.Sleep(*cooldown + 500*time.Millisecond)

	pools = sendBatch(client, *proxyURL, *requests)
	report(pools)
	fmt.Println(colorGreen + "  ✓ Drill complete" + colorReset)
}

func sendBatch(client *http.Client, proxyURL string, n int) map[string]int {
	pools := make(map[string]int)
	for i := 0; i < n; i++ {
		pool, status, err := sendRequest(client, proxyURL)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if status >= 500 {
			fmt.Printf(colorRed+"  Request %d: Status=%d\n"+colorReset, i+1, status)
			continue
		}
		pools[pool]++
	}
	return pools
}

func sendRequest(client *http.Client, proxyURL string) (pool string, status int, err error) {
	resp, err := client.Get(proxyURL + "/version")
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.Header.Get("X-Pool"), resp.StatusCode, nil
}

func report(pools map[string]int) {
	fmt.Println("  Pool distribution:")
	for pool, count := range pools {
		fmt.Printf("    %s → %d requests\n", pool, count)
	}
}

func chaos(client *http.Client, backendURL, action string) error {
	resp, err := client.Post(backendURL+"/chaos/"+action, "text/plain", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func adminStatus(client *http.Client, proxyURL string) (string, error) {
	resp, err := client.Get(proxyURL + "/admin/status")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func swap(client *http.Client, proxyURL, target string) error {
	resp, err := client.PostForm(proxyURL+"/admin/swap", url.Values{"target": {target}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
