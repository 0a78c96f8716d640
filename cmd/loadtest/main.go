// Command loadtest measures insert and query throughput through the
// connection manager.
//
// Configure via environment variables:
//
//	N=50000        total number of insert+query pairs
//	K=1000         number of distinct keys
//	B=1000         batch size for progress reporting
//	BACKEND=mem    "mem", "redis" or "nats"
//	URLS=...       comma separated urls for redis and nats
//	POOL=15        pool size
//
// NOTE: run redis: docker run --rm --net=host redis:7-alpine
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/trvinh99/redis-actor/core/app"
	"github.com/trvinh99/redis-actor/core/pool"
	"github.com/trvinh99/redis-actor/ports/kv"
)

// === Config ===

var (
	logLevel    = slog.LevelWarn
	N           = getEnvInt("N", 50_000)
	numKeys     = getEnvInt("K", 1_000)
	batchSize   = getEnvInt("B", 1_000)
	poolSize    = getEnvInt("POOL", pool.DefaultMaxSize)
	backendType = getEnv("BACKEND", "mem")
	urls        = getEnv("URLS", "")
)

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	fmt.Printf("Ops:     %d\n", N)
	fmt.Printf("Keys:    %d\n", numKeys)
	fmt.Printf("Pool:    %d\n", poolSize)
	fmt.Printf("Backend: %s\n", backendType)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := app.Config{Context: ctx, Log: log, PoolSize: poolSize}
	switch backendType {
	case "redis":
		cfg.URLs = splitURLs(urls, "redis://127.0.0.1:6379")
	case "nats":
		cfg.URLs = splitURLs(urls, "nats://127.0.0.1:4222")
		cfg.NATSBucket = "loadtest"
	default:
		net := kv.NewMemNetwork()
		net.Server("mem://loadtest")
		cfg.URLs = []string{"mem://loadtest"}
		cfg.Dialer = net
	}

	a, err := app.Run(cfg)
	checkErr(err)
	defer a.Stop()
	checkErr(a.WaitReady(ctx))
	c := a.Client()

	// === START ===

	fmt.Println("==================================")
	fmt.Println("Starting ...")

	startAt := time.Now()
	lastTime := startAt
	value := []byte(strings.Repeat("x", 64))

	for i := 1; i <= N; i++ {
		key := fmt.Sprintf("key-%d", i%numKeys)
		checkErr(c.Insert(ctx, key, value, 0))
		_, err := c.Query(ctx, key)
		checkErr(err)

		if i%100 == 0 {
			print(".")
		}
		if i%batchSize == 0 {
			mu := getMemUsage()
			n := time.Now()
			took := n.Sub(lastTime)
			fmt.Printf(" | %5d ops | %6d ms |  %6d ops/s | (%d / %d) MiB mem (sys) |\n", batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), mu.Alloc/1024/1024, mu.Sys/1024/1024)
			lastTime = n
		}
	}

	// === stats ===
	println("")
	println("==========================================")

	took := time.Since(startAt)
	st, err := c.Status(ctx)
	checkErr(err)

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("      version: %d\n", st.Version)
	fmt.Printf("  connections: %d (%d idle)\n", st.Pool.Connections, st.Pool.Idle)
	fmt.Printf("   avg. ops/s: %d\n", int(float64(N)/took.Seconds()))
}

func splitURLs(raw, fallback string) []string {
	if raw == "" {
		return []string{fallback}
	}
	return strings.Split(raw, ",")
}

// === stats helpers ===

type MemUsage struct {
	Alloc uint64 // bytes allocated and not yet freed (heap)
	Sys   uint64 // total bytes obtained from OS
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{Alloc: m.Alloc, Sys: m.Sys}
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
