// Command probe runs the false-positive, confidence sweep and latency
// diagnostics against the configured detector and prints a JSON report.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"NutBoltDetServer/config"
	"NutBoltDetServer/logger"
	"NutBoltDetServer/probe"

	"go.uber.org/zap"
)

func parseSweep(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bad sweep value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	var (
		cfgPath = flag.String("config", "config.yaml", "server config file")
		model   = flag.String("model", "", "override engine.modelPath")
		remote  = flag.String("remote", "", "probe a remote sidecar at this URL instead of the local model")
		size    = flag.Int("size", probe.DefaultSize, "synthetic image size in pixels")
		seed    = flag.Uint64("seed", 42, "seed for the noise image")
		conf    = flag.Float64("conf", probe.DefaultConfidence, "confidence for the false-positive probe")
		sweep   = flag.String("sweep", "", "comma separated confidence ladder for the noise sweep")
		runs    = flag.Int("runs", probe.DefaultRuns, "timed runs for the latency benchmark")
		out     = flag.String("out", "", "write the report to this file instead of stdout")
		strict  = flag.Bool("strict", false, "exit 1 when any synthetic image produces detections")
	)
	flag.Parse()

	if err := config.LoadDotEnv(""); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Named("probe")

	if *model != "" {
		cfg.Engine.Backend = config.BackendOpenCV
		cfg.Engine.ModelPath = *model
	}
	if *remote != "" {
		cfg.Engine.Backend = config.BackendRemote
		cfg.Remote.URL = *remote
	}
	cfg.Engine.Warmup = 0
	ladder, err := parseSweep(*sweep)
	if err != nil {
		log.Fatal("invalid -sweep", zap.Error(err))
	}

	factory, _, err := cfg.DetectorFactory(log)
	if err != nil {
		log.Fatal("no detector", zap.Error(err))
	}
	det, err := factory()
	if err != nil {
		log.Fatal("failed to load detector", zap.String("model", cfg.ModelPath()), zap.Error(err))
	}
	defer det.Close()

	modelPath := ""
	if cfg.Engine.Backend == config.BackendOpenCV {
		modelPath = cfg.Engine.ModelPath
	}
	p := probe.New(det, cfg.Detection.Options(), log)
	rep, err := p.Run(probe.Options{
		Size:       *size,
		Seed:       *seed,
		Confidence: *conf,
		Sweep:      ladder,
		Runs:       *runs,
		ModelPath:  modelPath,
	})
	if err != nil {
		log.Fatal("probe failed", zap.Error(err))
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatal("encode report", zap.Error(err))
	}
	if *out != "" {
		if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
			log.Fatal("write report", zap.Error(err))
		}
	} else {
		fmt.Println(string(data))
	}
	if *strict && !rep.Clean {
		os.Exit(1)
	}
}
