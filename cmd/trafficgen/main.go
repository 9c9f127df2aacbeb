package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"trafficgen/internal/attack"
	"trafficgen/internal/capture"
	"trafficgen/internal/config"
	"trafficgen/internal/engine"
	"trafficgen/internal/metadata"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "generate":
		err = cmdGenerate(args)
	case "benign":
		err = cmdBenign(args)
	case "extract":
		err = cmdExtract(args)
	case "mix":
		err = cmdMix(args)
	case "dump":
		err = cmdDump(args)
	case "verify":
		err = cmdVerify(args)
	case "watch":
		err = cmdWatch(args)
	case "version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`trafficgen - synthetic DDoS and benign traffic captures

Usage: trafficgen <command> [options]

Commands:
  generate            Generate attack captures from a config file or flags
  benign              Generate a benign baseline capture
  extract <pcap>      Fit a dataset JSON from a reference capture
  mix                 Merge an attack capture with benign traffic
  dump <pcap>         Print the layers of the packets in a capture
  verify <dir>        Check captures against the metadata checksums
  watch               Regenerate whenever the config file changes
  version             Show version information

Examples:
  trafficgen generate -config attacks.yaml
  trafficgen generate -attack syn_flood -num-packets 100000 -pps 10000 -target-ip 10.10.1.2
  trafficgen generate -config attacks.yaml -dry-run
  trafficgen benign -profile heavy -duration 300 -quic
  trafficgen extract -o cicids2017_dist.json reference.pcap
  trafficgen mix -attack pcaps/udp_flood.pcap -benign benign.pcap -ratio 0.3
  trafficgen dump -n 20 pcaps/quic_optimistic_ack.pcap
  trafficgen watch -config attacks.yaml -metrics-addr 127.0.0.1:9310`)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func applyLogging(cfg *config.Config) {
	if cfg.Logging.Quiet {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(os.Stderr)
}

func cmdGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML or JSON)")
	attackType := fs.String("attack", "", "Attack type when no config file is given")
	numPackets := fs.Int("num-packets", config.DefaultNumPackets, "Packets to generate with -attack")
	pps := fs.Float64("pps", config.DefaultPPS, "Packets per second with -attack")
	targetIP := fs.String("target-ip", "", "Target IPv4 address")
	outputDir := fs.String("output-dir", "", "Directory for generated captures")
	datasetPath := fs.String("dataset", "", "Dataset JSON or reference capture")
	mixBenign := fs.String("mix-benign", "", "Benign capture to mix every attack with")
	ratio := fs.Float64("attack-ratio", config.DefaultAttackRatio, "Attack share of mixed captures")
	seed := fs.Int64("seed", -1, "Seed override (-1 keeps the configured seed)")
	dryRun := fs.Bool("dry-run", false, "Estimate sizes without writing captures")
	quiet := fs.Bool("quiet", false, "Suppress progress logging")
	fs.Parse(args)

	var (
		cfg *config.Config
		err error
	)
	switch {
	case *configPath != "":
		cfg, err = config.Load(*configPath)
	case *attackType != "":
		cfg = &config.Config{Attacks: []config.Attack{{Type: *attackType, NumPackets: *numPackets, PPS: *pps}}}
		err = cfg.Normalize()
	default:
		return fmt.Errorf("either -config or -attack is required (known attacks: %v)", config.AttackTypes)
	}
	if err != nil {
		return err
	}

	if *targetIP != "" {
		cfg.TargetIP = *targetIP
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *datasetPath != "" {
		cfg.Dataset.Path = *datasetPath
	}
	if *mixBenign != "" {
		cfg.Mix = config.Mix{Enabled: true, BenignPcap: *mixBenign, AttackRatio: *ratio}
	}
	if *seed >= 0 {
		s := uint64(*seed)
		cfg.Seed, cfg.SeedGenerated = &s, false
	}
	cfg.DryRun = cfg.DryRun || *dryRun
	cfg.Logging.Quiet = cfg.Logging.Quiet || *quiet
	if err := cfg.Normalize(); err != nil {
		return err
	}
	applyLogging(cfg)

	ctx, cancel := signalContext()
	defer cancel()
	return runEngine(ctx, cfg)
}

func runEngine(ctx context.Context, cfg *config.Config) error {
	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	res, err := e.Run(ctx)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		for _, s := range res.Attacks {
			fmt.Printf("%-20s ~%d packets  ~%.2f MiB  ~%.2fs\n", s.Kind, s.Packets, float64(s.Bytes)/(1<<20), s.Duration)
		}
		return nil
	}
	for _, path := range res.Artifacts {
		fmt.Println(path)
	}
	return nil
}

func cmdBenign(args []string) error {
	fs := flag.NewFlagSet("benign", flag.ExitOnError)
	profile := fs.String("profile", "normal", "Traffic profile: light, normal or heavy")
	duration := fs.Float64("duration", 60, "Simulated seconds of traffic")
	output := fs.String("output", "benign", "Capture file stem")
	outputDir := fs.String("output-dir", config.DefaultOutputDir, "Directory for generated captures")
	diurnal := fs.Bool("diurnal", false, "Scale session rate by time of day")
	startHour := fs.Float64("start-hour", 8, "Simulated hour of day at the start")
	phases := fs.Bool("phases", false, "Cycle through traffic phases")
	quic := fs.Bool("quic", false, "Also write a QUIC baseline capture")
	compression := fs.String("compression", "none", "Capture compression: none, gzip, zstd or lz4")
	seed := fs.Int64("seed", -1, "Seed (-1 derives one from the clock)")
	quiet := fs.Bool("quiet", false, "Suppress progress logging")
	fs.Parse(args)

	cfg := &config.Config{
		OutputDir: *outputDir,
		Capture:   config.Capture{Compression: *compression},
		Benign: config.Benign{
			Enabled:   true,
			Profile:   *profile,
			Duration:  *duration,
			Output:    *output,
			Diurnal:   *diurnal,
			StartHour: *startHour,
			Phases:    *phases,
			QUIC:      config.QUICBaseline{Enabled: *quic},
		},
		Logging: config.Logging{Quiet: *quiet},
	}
	if *seed >= 0 {
		s := uint64(*seed)
		cfg.Seed = &s
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	applyLogging(cfg)

	ctx, cancel := signalContext()
	defer cancel()
	return runEngine(ctx, cfg)
}

func cmdExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	out := fs.String("o", "", "Output dataset JSON (default: <pcap>.json)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: trafficgen extract [-o out.json] <pcap>")
	}
	src := fs.Arg(0)
	dst := *out
	if dst == "" {
		dst = trimCaptureExt(src) + ".json"
	}
	ds, err := engine.ExtractDataset(src)
	if err != nil {
		return err
	}
	if err := ds.Save(dst); err != nil {
		return err
	}
	for _, name := range sortedDatasetNames(ds) {
		fmt.Printf("%-22s %d values\n", name, len(ds[name]))
	}
	fmt.Println(dst)
	return nil
}

func cmdMix(args []string) error {
	fs := flag.NewFlagSet("mix", flag.ExitOnError)
	attackPath := fs.String("attack", "", "Attack capture")
	benignPath := fs.String("benign", "", "Benign capture")
	out := fs.String("o", "", "Output capture (default: <attack>_mixed.pcap)")
	ratio := fs.Float64("ratio", config.DefaultAttackRatio, "Attack share of the result, in (0, 1]")
	seed := fs.Uint64("seed", 0, "Sampling seed")
	fs.Parse(args)
	if *attackPath == "" || *benignPath == "" {
		return fmt.Errorf("usage: trafficgen mix -attack a.pcap -benign b.pcap [-ratio 0.3] [-o out.pcap]")
	}
	codec := capture.CodecForPath(*attackPath)
	dst := *out
	if dst == "" {
		dst = trimCaptureExt(*attackPath) + "_mixed.pcap" + codec.Ext()
	}

	ctx, cancel := signalContext()
	defer cancel()
	st, err := engine.MixFiles(ctx, engine.MixRequest{
		Attack:  *attackPath,
		Benign:  *benignPath,
		Output:  dst,
		Ratio:   *ratio,
		Seed:    *seed,
		Capture: capture.Options{Codec: capture.CodecForPath(dst)},
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d packets (%d attack, %d benign)\n", dst, st.Packets, st.Components["attack"], st.Components["benign"])
	return nil
}

func cmdVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	file := fs.String("metadata", config.DefaultMetadata, "Metadata file name inside the directory")
	fs.Parse(args)
	dir := config.DefaultOutputDir
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	side, err := metadata.Read(filepath.Join(dir, *file))
	if err != nil {
		return err
	}
	bad, err := side.Verify(dir)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("checksum mismatch: %v", bad)
	}
	fmt.Printf("run %s (seed %d): %d captures ok\n", side.RunID, side.Seed, len(side.Checksums))
	return nil
}

func cmdVersion() {
	fmt.Printf("trafficgen %s\n", version)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("Attacks:    %d kinds\n", len(attack.Kinds()))
}
