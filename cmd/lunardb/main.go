// Command lunardb runs the LunarCache server process: the shard manager,
// task queue, scheduler, TCP line server, and HTTP JSON surface wired
// together over one shared shard manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lunarcache/lunardb/dispatcher"
	"github.com/lunarcache/lunardb/engine"
	"github.com/lunarcache/lunardb/internal/util"
	"github.com/lunarcache/lunardb/metrics/prom"
	"github.com/lunarcache/lunardb/queue"
	"github.com/lunarcache/lunardb/scheduler"
	httpapi "github.com/lunarcache/lunardb/server/http"
	"github.com/lunarcache/lunardb/server/tcp"
	"github.com/lunarcache/lunardb/shard"
	"github.com/lunarcache/lunardb/snapshot"
)

func main() {
	var (
		host        = flag.String("host", "127.0.0.1", "line server bind host")
		port        = flag.Int("port", 6380, "line server bind port")
		httpAddr    = flag.String("http", ":8080", "HTTP surface bind address")
		config      = flag.String("config", "", "path to a config file (unused placeholder, reserved for future use)")
		capacity    = flag.Int("cap", 100_000, "total cache capacity across all shards")
		shards      = flag.Int("shards", 0, "number of shards (0 = auto, based on GOMAXPROCS)")
		maxClients  = flag.Int("max-clients", 1024, "maximum concurrent TCP clients (0 = unbounded)")
		queueSize   = flag.Int("queue-size", 1024, "task queue buffer size")
		snapshotDir = flag.String("snapshot-dir", os.TempDir(), "directory for the autosnapshot job")
		healthCheck = flag.Bool("health", false, "run a self-check (set/get/del) and exit 0/1")
	)
	flag.Parse()
	_ = config // reserved: no config file format is specified yet

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	shardCount := *shards
	if shardCount <= 0 {
		shardCount = util.ReasonableShardCount()
	}

	metrics := prom.New(prometheus.DefaultRegisterer, "lunarcache", "server", nil)

	mgr := shard.New(shardCount, *capacity, func(cap int) *engine.Engine {
		return engine.New(engine.Options{
			Capacity: cap,
			Metrics:  metrics,
			Logger:   log,
		})
	}, log)

	if *healthCheck {
		os.Exit(runHealthCheck(mgr))
	}

	tq := queue.New(*queueSize, queue.WithMetrics(metrics), queue.WithLogger(log))
	tq.Start()
	defer tq.Stop()

	sched := scheduler.New(scheduler.WithMetrics(metrics), scheduler.WithLogger(log))
	sched.RegisterJob("cleanup_expired", 5*time.Minute, func(ctx context.Context) error {
		mgr.CleanupExpired()
		return nil
	})
	snapshotPath := filepath.Join(*snapshotDir, "lunardb.snapshot")
	sched.RegisterJob("autosnapshot", 15*time.Minute, func(ctx context.Context) error {
		return snapshot.Save(mgr, snapshotPath)
	})
	sched.Start()
	defer sched.Stop()

	disp := dispatcher.New(mgr, tq, log)

	tcpSrv := tcp.New(fmt.Sprintf("%s:%d", *host, *port), *maxClients, disp, log)
	if err := tcpSrv.Start(); err != nil {
		log.Fatalw("lunardb: failed to start line server", "error", err)
	}
	defer tcpSrv.Stop()
	log.Infow("lunardb: line server listening", "addr", tcpSrv.Addr().String())

	httpSrv := httpapi.New(*httpAddr, mgr, log)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil {
			log.Errorw("lunardb: http server stopped", "error", err)
		}
	}()
	log.Infow("lunardb: http surface listening", "addr", *httpAddr)
	defer httpSrv.Shutdown()

	waitForShutdown(log)
}

func runHealthCheck(mgr *shard.Manager) int {
	const key = "__lunardb_health__"
	mgr.Set(key, "ok", 0)
	v, ok := mgr.Get(key)
	mgr.Del(key)
	if !ok || v != "ok" {
		return 1
	}
	return 0
}

func waitForShutdown(log *zap.SugaredLogger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.Infow("lunardb: shutting down", "signal", s.String())
}
