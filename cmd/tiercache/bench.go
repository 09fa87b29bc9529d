package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiercache/tiercache"
)

var benchFlags struct {
	workers   int
	duration  time.Duration
	readPct   int
	keys      int
	valueSize int
	preload   int
	zipfS     float64
	seed      int64
	tier      string
	verbose   bool
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a synthetic workload against the cache",
	Long: `Run a mixed get/set workload against a cache built from --config
(or built-in defaults) and print an operations and stats summary.

Keys follow a Zipf distribution so hot keys dominate, which is what a
client-side cache sees in practice.`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchFlags.workers, "workers", 8, "number of worker goroutines")
	benchCmd.Flags().DurationVar(&benchFlags.duration, "duration", 10*time.Second, "benchmark duration")
	benchCmd.Flags().IntVar(&benchFlags.readPct, "reads", 80, "read percentage [0..100]")
	benchCmd.Flags().IntVar(&benchFlags.keys, "keys", 10_000, "keyspace size")
	benchCmd.Flags().IntVar(&benchFlags.valueSize, "value-size", 512, "value size in bytes")
	benchCmd.Flags().IntVar(&benchFlags.preload, "preload", 0, "preload entries before the run (0 = keys/2)")
	benchCmd.Flags().Float64Var(&benchFlags.zipfS, "zipf-s", 1.1, "Zipf s > 1 (skew)")
	benchCmd.Flags().Int64Var(&benchFlags.seed, "seed", time.Now().UnixNano(), "random seed")
	benchCmd.Flags().StringVar(&benchFlags.tier, "tier", string(tiercache.TierHybrid), "target tier: volatile | scoped | durable | hybrid")
	benchCmd.Flags().BoolVar(&benchFlags.verbose, "verbose", false, "debug logging")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, _ []string) error {
	readPct := benchFlags.readPct
	if readPct < 0 || readPct > 100 {
		return fmt.Errorf("--reads must be in [0..100], got %d", readPct)
	}
	if benchFlags.keys <= 0 {
		return fmt.Errorf("--keys must be positive, got %d", benchFlags.keys)
	}
	workers := benchFlags.workers
	if workers <= 0 {
		workers = 1
	}
	keysMax := uint64(benchFlags.keys - 1)
	if keysMax == 0 {
		keysMax = 1
	}

	setupLogging(benchFlags.verbose)

	cfg, err := loadBenchConfig()
	if err != nil {
		return err
	}

	c, err := tiercache.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	tier := tiercache.Tier(benchFlags.tier)

	// Preload part of the keyspace so reads start with a realistic hit rate.
	preload := benchFlags.preload
	if preload == 0 {
		preload = benchFlags.keys / 2
	}
	base := make([]byte, benchFlags.valueSize)
	rand.New(rand.NewSource(benchFlags.seed)).Read(base)
	for i := 0; i < preload; i++ {
		key := "bench:k:" + strconv.Itoa(i)
		err := c.SetWithOptions(cmd.Context(), key, base, tiercache.SetOptions{
			Tier: tier,
			Tags: []string{"bench"},
		})
		if err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}

	var reads, writes, hits, misses, failures, total uint64
	ctx, cancel := context.WithTimeout(cmd.Context(), benchFlags.duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(benchFlags.seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, benchFlags.zipfS, 1.0, keysMax)
			val := make([]byte, benchFlags.valueSize)
			localR.Read(val)

			keyByZipf := func() string {
				return "bench:k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPct {
					atomic.AddUint64(&reads, 1)
					var out []byte
					found, err := c.GetWithOptions(ctx, keyByZipf(), &out, tiercache.GetOptions{Tier: tier})
					switch {
					case err == nil && found:
						atomic.AddUint64(&hits, 1)
					case err == nil:
						atomic.AddUint64(&misses, 1)
					case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
						return
					default:
						atomic.AddUint64(&failures, 1)
					}
					continue
				}

				atomic.AddUint64(&writes, 1)
				err := c.SetWithOptions(ctx, keyByZipf(), val, tiercache.SetOptions{
					Tier: tier,
					Tags: []string{"bench"},
				})
				switch {
				case err == nil:
				case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					return
				default:
					atomic.AddUint64(&failures, 1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	printBenchReport(cmd, c, tier, elapsed, benchReport{
		total:    atomic.LoadUint64(&total),
		reads:    atomic.LoadUint64(&reads),
		writes:   atomic.LoadUint64(&writes),
		hits:     atomic.LoadUint64(&hits),
		misses:   atomic.LoadUint64(&misses),
		failures: atomic.LoadUint64(&failures),
	})
	return nil
}

type benchReport struct {
	total    uint64
	reads    uint64
	writes   uint64
	hits     uint64
	misses   uint64
	failures uint64
}

func printBenchReport(cmd *cobra.Command, c *tiercache.Cache, tier tiercache.Tier, elapsed time.Duration, r benchReport) {
	hitRate := 0.0
	if r.reads > 0 {
		hitRate = float64(r.hits) / float64(r.reads) * 100
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tier=%s workers=%d keys=%d value-size=%d dur=%v seed=%d\n",
		tier, benchFlags.workers, benchFlags.keys, benchFlags.valueSize, elapsed.Round(time.Millisecond), benchFlags.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  reads=%d  writes=%d  failures=%d\n",
		r.total, float64(r.total)/elapsed.Seconds(), r.reads, r.writes, r.failures)
	fmt.Fprintf(out, "client hits=%d  misses=%d  hit-rate=%.2f%%\n", r.hits, r.misses, hitRate)

	stats := c.Stats()
	fmt.Fprintf(out, "cache hits=%d misses=%d hit-rate=%.2f%% sets=%d evictions=%d expirations=%d\n",
		stats.Hits, stats.Misses, stats.HitRate*100, stats.Sets, stats.Evictions, stats.Expirations)
	for _, t := range []tiercache.Tier{tiercache.TierVolatile, tiercache.TierScoped, tiercache.TierDurable} {
		ts, ok := stats.Tiers[t]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-8s entries=%d bytes=%d\n", t, ts.Entries, ts.SizeBytes)
	}
	if stats.DurableFallback {
		fmt.Fprintln(out, "  durable tier ran on its in-memory fallback")
	}
}
