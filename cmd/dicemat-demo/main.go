// Command dicemat-demo wires the computation engine and the artifact
// materializer end to end: it computes a small dependency graph, then
// declares and materializes a CAS-backed artifact whose content depends
// on what the graph computed. It also exercises the materializer's
// snapshot persistence: it seeds its tree from the configured store on
// startup and dumps back to it on a clean shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	"github.com/forgelab/dice/apath"
	"github.com/forgelab/dice/cas"
	"github.com/forgelab/dice/config"
	"github.com/forgelab/dice/dice"
	"github.com/forgelab/dice/dicekey"
	"github.com/forgelab/dice/digest"
	"github.com/forgelab/dice/emit"
	"github.com/forgelab/dice/materializer"
	"github.com/forgelab/dice/materializer/store"
	"github.com/forgelab/dice/metrics"
)

// buildKey identifies one node of the toy dependency graph: a target name
// whose value is derived from its listed dependencies.
type buildKey struct {
	name string
	deps []string
}

func (k buildKey) Equal(other dicekey.Key) bool {
	o, ok := other.(buildKey)
	return ok && o.name == k.name
}

func (k buildKey) Hash() uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(k.name); i++ {
		h ^= uint64(k.name[i])
		h *= 1099511628211
	}
	return h
}

func (k buildKey) String() string { return "build:" + k.name }

func (k buildKey) ValuesEqual(a, b dicekey.Value) bool { return reflect.DeepEqual(a, b) }

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logEmitter := emit.NewLogEmitter(os.Stdout, false)
	reg := metrics.New(nil, cfg.PrometheusNamespace)

	root := buildKey{name: "app", deps: []string{"version.txt"}}

	evaluator := dice.EvaluatorFunc(func(ctx *dice.Context, key dicekey.Key) (dicekey.Value, error) {
		bk := key.(buildKey)
		if len(bk.deps) == 0 {
			return "1.0.0", nil
		}
		var out string
		for _, d := range bk.deps {
			v, err := ctx.Compute(context.Background(), buildKey{name: d})
			if err != nil {
				return nil, err
			}
			out += v.(string)
		}
		return "app-" + out, nil
	})

	engine := dice.New(evaluator, dice.WithEmitter(logEmitter), dice.WithStats(reg))

	view := engine.NewView()
	val, err := view.Compute(context.Background(), root)
	view.Close()
	if err != nil {
		log.Fatalf("compute: %v", err)
	}
	fmt.Printf("computed %s = %v\n", root.String(), val)

	st, err := store.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	casCli := cas.NewMemoryClient()
	content := []byte(fmt.Sprintf("build output: %v\n", val))
	d, err := digest.FromBytes(digest.SHA256, content)
	if err != nil {
		log.Fatalf("digest: %v", err)
	}
	casCli.Seed(d, content)

	root2 := cfgOrTemp(cfg)
	mat := materializer.New(root2, casCli,
		materializer.WithEmitter(logEmitter),
		materializer.WithStats(reg),
		materializer.WithIOLimits(cfg.ConcurrentReads, cfg.ConcurrentDirListings),
		materializer.WithTTLBatchSize(cfg.TTLBatchSize),
	)
	defer mat.Close()

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := materializer.SeedFromStore(seedCtx, mat, st); err != nil {
		log.Fatalf("seed from store: %v", err)
	}
	seedCancel()

	outPath := apath.MustNew(cfg.OutputRoot + "/result.txt")
	if err := mat.Declare(outPath, materializer.CasFetchMethod{Digest: d}); err != nil {
		log.Fatalf("declare: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := mat.Ensure(ctx, outPath); err != nil {
		cancel()
		log.Fatalf("ensure: %v", err)
	}
	cancel()
	stage, lastAccess := mat.GetMaterializationStatus(outPath)
	fmt.Printf("materialized %s at %s (last access %s)\n", outPath.String(), stage, lastAccess.Format(time.RFC3339))

	// Clean-shutdown persistence (spec §6): dump the tree to the store
	// before the process exits so a future run's SeedFromStore call above
	// can skip re-downloading whatever is still valid.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := materializer.PersistSnapshot(shutdownCtx, mat, st); err != nil {
		log.Fatalf("persist snapshot: %v", err)
	}
	shutdownCancel()
	fmt.Println("persisted materializer snapshot to store")
}

func cfgOrTemp(cfg *config.Config) string {
	if cfg.IsolationDir != "" && cfg.IsolationDir != "." {
		return cfg.IsolationDir
	}
	return "."
}
