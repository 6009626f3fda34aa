package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"NutBoltDetServer/Adhoc"
	"NutBoltDetServer/api"
	"NutBoltDetServer/config"
	"NutBoltDetServer/detect"
	backend "NutBoltDetServer/gRPC"
	"NutBoltDetServer/history"
	"NutBoltDetServer/logger"
	"NutBoltDetServer/monitor"
	"NutBoltDetServer/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the yaml config file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Println("Failed to load env file:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()
	if !cfg.Logger.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	fmt.Println(strings.Repeat("#", 64))
	fmt.Println(" NUT & BOLT DETECTION SERVER")
	fmt.Println(strings.Repeat("#", 64))
	if cfg.File == "" {
		log.Warn("config file not found, using defaults", zap.String("path", *cfgPath))
	}
	if cfg.Engine.WorkersNum > runtime.NumCPU() {
		log.Warn("workersNum exceeds CPU cores, which may lead to performance degradation",
			zap.Int("workersNum", cfg.Engine.WorkersNum), zap.Int("cpus", runtime.NumCPU()))
	}

	store, err := detect.NewStore(cfg.Detection)
	if err != nil {
		log.Fatal("invalid detection config", zap.Error(err))
	}

	// A model that fails to load is not fatal: the server starts and
	// /detect answers 503 until it is fixed and restarted.
	var runner service.Runner
	factory, instanceClass, err := cfg.DetectorFactory(logger.Named("engine"))
	if err != nil {
		log.Fatal("no detector backend", zap.Error(err))
	}
	pool, err := service.NewPool(factory, cfg.Engine.WorkersNum, logger.Named("pool"))
	if err != nil {
		log.Error("model failed to load, serving without a detector",
			zap.String("backend", cfg.Engine.Backend),
			zap.String("model", cfg.ModelPath()),
			zap.Error(err))
	} else {
		defer pool.Close()
		runner = pool
		log.Info("model loaded",
			zap.String("backend", cfg.Engine.Backend),
			zap.String("model", cfg.ModelPath()),
			zap.Int("workers", pool.Size()),
			zap.Strings("names", pool.Names()))
		for _, m := range detect.CheckClassOrder(cfg.Detection.ClassNames, pool.Names()) {
			log.Warn("class name order differs from the model",
				zap.Int("index", m.Index),
				zap.String("configured", m.Configured),
				zap.String("model", m.Detector))
		}
	}

	var hist history.Store
	if cfg.History.Enabled {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Fatal("failed to open history store", zap.String("path", cfg.History.Path), zap.Error(err))
		}
		defer h.Close()
		hist = h
	}

	metrics := monitor.NewMetrics()
	svc := service.New(service.Options{
		Store:     store,
		Runner:    runner,
		History:   hist,
		Metrics:   metrics,
		ModelPath: cfg.ModelPath(),
		Log:       logger.Named("service"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	httpSrv := api.Start(api.NewRouter(svc, cfg.HTTP, logger.Named("http")), cfg.HTTP, log)
	grpcSrv, err := backend.StartGRPCServer(cfg.RPCPort, svc, logger.Named("grpc"))
	if err != nil {
		log.Fatal("failed to start grpc server", zap.Error(err))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		metrics.StartMon(ctx, cfg.MetricsPort, logger.Named("monitor"))
	}()

	if cfg.RegServer.Enabled() {
		hb := Adhoc.NewHeartbeat(cfg.RegServer, Adhoc.Node{
			HTTPPort:      cfg.HTTP.Port,
			GRPCPort:      cfg.RPCPort,
			InstanceClass: instanceClass,
		}, svc.Health, logger.Named("adhoc"))
		wg.Add(1)
		go hb.Run(ctx, &wg)
	} else {
		log.Info("regServer.addr is empty, skipping registration")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	cancel()
	if err := api.Shutdown(httpSrv, 5*time.Second); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("http shutdown error", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	wg.Wait()
	log.Info("Safely exited")
}
