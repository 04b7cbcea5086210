package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arjunsk/stratakv/pkg/extent"
	"github.com/arjunsk/stratakv/pkg/layer"
	"github.com/arjunsk/stratakv/pkg/log"
	"github.com/arjunsk/stratakv/pkg/memlayer"
	"github.com/arjunsk/stratakv/pkg/merger"
)

var rootCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Drive concurrent extent writes and merged scans against a layer stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.Int("writers", 8, "concurrent writer goroutines")
	flags.Int("readers", 32, "concurrent scan goroutines")
	flags.Duration("duration", 30*time.Second, "time per round")
	flags.Uint64("key-range", 1<<30, "byte range extents are drawn from")
	flags.Uint64("extent-size", 64<<10, "max extent width")
	flags.Int("value-size", 32, "value payload bytes")
	flags.String("log-level", "info", "debug, info, warn, error")
	_ = viper.BindPFlags(flags)
	viper.SetEnvPrefix("stratakv")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log.Init(log.Config{Level: viper.GetString("log-level"), Console: true})

	writers := viper.GetInt("writers")
	readers := viper.GetInt("readers")
	duration := viper.GetDuration("duration")
	keyRange := viper.GetUint64("key-range")
	extentSize := viper.GetUint64("extent-size")
	valueSize := viper.GetInt("value-size")

	log.Infof("** new run %s **", time.Now().Format("2006_01_02_15_04_05"))
	log.Infof("writers=%d readers=%d duration=%s keyRange=%d", writers, readers, duration, keyRange)

	for rc := readers; rc <= 4*readers; rc *= 2 {
		if err := round(ctx, writers, rc, duration, keyRange, extentSize, valueSize); err != nil {
			return err
		}
	}
	return nil
}

func round(ctx context.Context, writers, readers int, duration time.Duration, keyRange, extentSize uint64, valueSize int) error {
	mem := memlayer.New[extent.Key, []byte]()
	stack := layer.IntoLayerRefs([]layer.Layer[extent.Key, []byte]{mem.AsLayer()})

	pool, err := ants.NewPool(writers+readers, ants.WithPreAlloc(true))
	if err != nil {
		return err
	}
	defer pool.Release()

	var writeOps, scanOps, scanned atomic.Int64
	var seq atomic.Uint64
	deadline := time.Now().Add(duration)
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		threadRand := rand.New(rand.NewSource(int64(i)))
		if err := pool.Submit(func() {
			defer wg.Done()
			val := make([]byte, valueSize)
			for time.Now().Before(deadline) {
				start := threadRand.Uint64() % keyRange
				width := 1 + threadRand.Uint64()%extentSize
				key := extent.New(start, start+width)
				item := layer.Item[extent.Key, []byte]{Key: key, Value: val, Sequence: seq.Add(1)}
				if err := mem.MergeInto(ctx, item, extent.At(start), extent.MergeNewestWins[[]byte]); err != nil {
					log.Errorf("merge_into: %v", err)
					return
				}
				writeOps.Add(1)
			}
		}); err != nil {
			wg.Done()
			return err
		}
	}

	for i := 0; i < readers; i++ {
		wg.Add(1)
		threadRand := rand.New(rand.NewSource(int64(1000 + i)))
		if err := pool.Submit(func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				token := mem.Lock()
				if token == nil {
					return
				}
				offset := threadRand.Uint64() % keyRange
				stream, err := merger.Seek(ctx, stack, layer.Included(extent.At(offset)))
				if err != nil {
					token.Release()
					log.Errorf("seek: %v", err)
					return
				}
				for n := 0; n < 100; n++ {
					if _, ok := stream.Get(); !ok {
						break
					}
					scanned.Add(1)
					if err := stream.Advance(ctx); err != nil {
						log.Errorf("advance: %v", err)
						break
					}
				}
				token.Release()
				scanOps.Add(1)
			}
		}); err != nil {
			wg.Done()
			return err
		}
	}

	wg.Wait()
	log.Infof("round done: writers=%d readers=%d writes=%d scans=%d items=%d len=%d",
		writers, readers, writeOps.Load(), scanOps.Load(), scanned.Load(), mem.Len())
	return mem.Close(ctx)
}
