package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var phrases = []string{
	"今日返工好攰呀",
	"我同朋友嗌完交，好唔開心",
	"考試終於考完喇！",
	"琴晚瞓唔著，成晚諗嘢",
	"我唔想活落去",
}

func main() {
	gateway := flag.String("gateway", "ws://localhost:8000/ws/session", "companion WebSocket URL")
	concurrency := flag.Int("concurrency", 10, "number of concurrent sessions")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	mode := flag.String("mode", "text", "turn input: text or speech")
	timeout := flag.Duration("timeout", 60*time.Second, "per-turn reply timeout")
	flag.Parse()

	if *mode != "text" && *mode != "speech" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}

	fmt.Printf("Load test: %d concurrent sessions for %s\n", *concurrency, *duration)
	fmt.Printf("Gateway: %s | Mode: %s\n\n", *gateway, *mode)

	var mu sync.Mutex
	var results []turnResult
	var wg sync.WaitGroup

	deadline := time.Now().Add(*duration)

	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for time.Now().Before(deadline) {
				r := runSession(*gateway, *mode, *timeout)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	printSummary(results)
}

type turnResult struct {
	success   bool
	outcome   string
	alerted   bool
	latencyMs float64
	err       string
}

type serverEvent struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// terminal bubble kinds end a turn.
var terminal = map[string]bool{"reply": true, "backend_error": true, "transport_failure": true}

func runSession(gateway, mode string, timeout time.Duration) turnResult {
	conn, _, err := websocket.DefaultDialer.Dial(gateway, nil)
	if err != nil {
		return turnResult{err: fmt.Sprintf("dial: %v", err)}
	}
	defer conn.Close()

	hello, _ := json.Marshal(map[string]any{"speech_supported": true, "lang": "yue-Hant-HK"})
	if err = conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return turnResult{err: fmt.Sprintf("send hello: %v", err)}
	}

	text := phrases[rand.Intn(len(phrases))]
	start := time.Now()
	if err = sendTurn(conn, mode, text); err != nil {
		return turnResult{err: err.Error()}
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	res := turnResult{}
	for {
		var ev serverEvent
		if err = conn.ReadJSON(&ev); err != nil {
			res.err = fmt.Sprintf("read: %v", err)
			return res
		}
		if ev.Type == "crisis_alert" {
			res.alerted = true
			continue
		}
		if ev.Type != "bubble" || !terminal[ev.Kind] {
			continue
		}
		res.success = ev.Kind == "reply"
		res.outcome = ev.Kind
		res.latencyMs = float64(time.Since(start).Microseconds()) / 1000
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return res
	}
}

func sendTurn(conn *websocket.Conn, mode, text string) error {
	var msgs []any
	if mode == "text" {
		msgs = []any{map[string]any{"type": "text", "text": text}}
	} else {
		msgs = []any{
			map[string]any{"type": "start"},
			map[string]any{
				"type":         "speech_result",
				"result_index": 0,
				"results":      [][]map[string]any{{{"transcript": text, "confidence": 0.9}}},
			},
			map[string]any{"type": "stop"},
		}
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			return fmt.Errorf("send turn: %w", err)
		}
	}
	return nil
}

func printSummary(results []turnResult) {
	var succeeded, failed, alerts int
	outcomes := map[string]int{}
	var latencies []float64

	for _, r := range results {
		if r.alerted {
			alerts++
		}
		if r.outcome != "" {
			outcomes[r.outcome]++
		}
		if !r.success {
			failed++
			continue
		}
		succeeded++
		latencies = append(latencies, r.latencyMs)
	}

	fmt.Printf("\n=== Load Test Results ===\n")
	fmt.Printf("Turns replied:   %d\n", succeeded)
	fmt.Printf("Turns failed:    %d\n", failed)
	fmt.Printf("Crisis alerts:   %d\n", alerts)
	for _, k := range []string{"backend_error", "transport_failure"} {
		if outcomes[k] > 0 {
			fmt.Printf("  %-18s %d\n", k+":", outcomes[k])
		}
	}
	if total := len(results); total > 0 {
		fmt.Printf("Success rate:    %.1f%%\n", 100*float64(succeeded)/float64(total))
	}

	if len(latencies) == 0 {
		fmt.Println("No successful turns to report latency")
		return
	}

	fmt.Printf("\n%-6s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	fmt.Printf("%-6s %8.0fms %8.0fms %8.0fms\n", "Reply", percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
