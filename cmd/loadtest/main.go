// Command loadtest drives the eligibility pipeline with a synthetic roll and
// concurrent duplicate attempts, and fails loudly if the at-most-once
// guarantee is ever violated. It runs fully in-process against a throwaway
// database, so it measures the service itself rather than the HTTP stack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/service"
	"github.com/zkvoting/eligibility/storage"
	"github.com/zkvoting/eligibility/storage/registry"
	"github.com/zkvoting/eligibility/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"golang.org/x/sync/errgroup"
)

func main() {
	voters := flag.Int("voters", 1000, "number of synthetic voters on the roll")
	attempts := flag.Int("attempts", 4, "concurrent verification attempts per voter")
	concurrency := flag.Int("concurrency", 64, "maximum in-flight verifications")
	datadir := flag.String("datadir", "", "database directory (default: a temporary one)")
	logLevel := flag.String("log.level", "info", "log level (debug, info, warn, error, fatal)")
	flag.Parse()

	log.Init(*logLevel, "stdout")
	if err := run(*voters, *attempts, *concurrency, *datadir); err != nil {
		log.Fatalf("load test failed: %v", err)
	}
}

func run(voters, attempts, concurrency int, datadir string) error {
	if datadir == "" {
		dir, err := os.MkdirTemp("", "eligibility-loadtest-*")
		if err != nil {
			return fmt.Errorf("create temporary datadir: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warnw("cannot remove temporary datadir", "err", err.Error())
			}
		}()
		datadir = dir
	}

	database, err := metadb.New(db.TypePebble, filepath.Join(datadir, "db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	codec, err := commitment.NewCodec(commitment.Secret{
		Salt:   "loadtest-salt",
		Pepper: "loadtest-pepper",
	})
	if err != nil {
		return err
	}

	roll := syntheticRoll(voters)
	reg := registry.New(database, codec)
	buildStart := time.Now()
	if err := reg.Build(roll, "synthetic load test roll"); err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	log.Infow("registry built", "voters", voters, "took", time.Since(buildStart).String())

	svc, err := service.New(service.Config{
		Codec:    codec,
		Registry: reg,
		Ledger:   storage.New(database, codec.Salt()),
	})
	if err != nil {
		return err
	}

	// Every voter fires its attempts concurrently with everyone else's, so
	// the same identity races against itself as well as the global lock.
	accepted := make([]atomic.Int64, voters)
	var duplicates atomic.Int64

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(concurrency)
	start := time.Now()
	for i := range roll {
		identity := roll[i].Identity()
		for a := 0; a < attempts; a++ {
			idx := i
			g.Go(func() error {
				_, err := svc.VerifyAndReserve(ctx, identity)
				switch {
				case err == nil:
					accepted[idx].Add(1)
				case errors.Is(err, service.ErrAlreadyVoted):
					duplicates.Add(1)
				default:
					return fmt.Errorf("voter %d: %w", idx, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	var violations int
	for i := range accepted {
		if n := accepted[i].Load(); n != 1 {
			violations++
			log.Errorf("voter %d authorized %d times", i, n)
		}
	}

	total := int64(voters * attempts)
	log.Infow("load test finished",
		"voters", voters,
		"attempts", total,
		"duplicatesRefused", duplicates.Load(),
		"took", elapsed.String(),
		"throughput", fmt.Sprintf("%.0f req/s", float64(total)/elapsed.Seconds()))

	if violations > 0 {
		return fmt.Errorf("%d voters were authorized more than once", violations)
	}
	if duplicates.Load() != total-int64(voters) {
		return fmt.Errorf("expected %d duplicate refusals, got %d", total-int64(voters), duplicates.Load())
	}
	log.Infof("at-most-once held for all %d voters", voters)
	return nil
}

// syntheticRoll generates a deterministic roll of distinct identities.
func syntheticRoll(n int) []types.RollEntry {
	roll := make([]types.RollEntry, n)
	for i := range roll {
		roll[i] = types.RollEntry{
			ID:        fmt.Sprintf("%011d", i+1),
			FirstName: fmt.Sprintf("Voter%d", i),
			LastName:  "Synthetic",
			Age:       18 + i%60,
		}
	}
	return roll
}
