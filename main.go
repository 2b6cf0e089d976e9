package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	gnarkLogger "github.com/consensys/gnark/logger"
	"github.com/urfave/cli/v2"

	"zkdraw/draw-prover/artifacts"
	"zkdraw/draw-prover/draw"
	"zkdraw/draw-prover/logging"
	"zkdraw/draw-prover/prover"
	"zkdraw/draw-prover/server"
	"zkdraw/draw-prover/setup"
)

func main() {
	runCli()
}

var circuitFlags = []cli.Flag{
	&cli.StringFlag{Name: "family", Usage: "circuit family (\"draw\" / \"mod\")", Value: "draw"},
	&cli.StringFlag{Name: "name", Usage: "circuit name; derived from the shape when omitted"},
	&cli.Int64Flag{Name: "start-value", Usage: "[draw]: first value of the pool", Value: 1},
	&cli.UintFlag{Name: "pool-size", Usage: "[draw]: size of the pool", Value: 35},
	&cli.UintFlag{Name: "num-outputs", Usage: "[draw]: number of drawn values", Value: 5},
	&cli.UintFlag{Name: "mod-outputs", Usage: "[mod]: number of modular outputs", Value: 1},
	&cli.UintFlag{Name: "power", Usage: "reference string size exponent", Value: 12},
	&cli.StringFlag{Name: "build-dir", Usage: "directory for circuit artifacts", Value: "./build"},
	&cli.StringFlag{Name: "ptau-dir", Usage: "directory for the shared reference string", Value: "./ptau"},
	&cli.StringFlag{Name: "ptau-name", Usage: "reference string file name; derived from power when omitted"},
}

var entropyFlags = []cli.Flag{
	&cli.StringFlag{Name: "srs-entropy", Usage: "entropy contribution for the reference string ceremony", Required: true},
	&cli.StringFlag{Name: "zkey-entropy", Usage: "entropy contribution for the key ceremony", Required: true},
}

func circuitConfigFromFlags(c *cli.Context) (prover.CircuitConfig, error) {
	power := uint8(c.Uint("power"))
	cfg := prover.CircuitConfig{
		Family: prover.CircuitFamily(c.String("family")),
		Name:   c.String("name"),
		Range: draw.RangeSpec{
			StartValue: c.Int64("start-value"),
			PoolSize:   uint32(c.Uint("pool-size")),
			NumOutputs: uint32(c.Uint("num-outputs")),
		},
		ModOutputs: uint32(c.Uint("mod-outputs")),
		Power:      power,
		PtauName:   c.String("ptau-name"),
		PtauDir:    c.String("ptau-dir"),
		BuildDir:   c.String("build-dir"),
	}
	if cfg.Name == "" {
		switch cfg.Family {
		case prover.FamilyDraw:
			cfg.Name = fmt.Sprintf("draw_%d_%d", cfg.Range.PoolSize, cfg.Range.NumOutputs)
		case prover.FamilyMod:
			cfg.Name = fmt.Sprintf("mod_%d", cfg.ModOutputs)
		}
	}
	if cfg.PtauName == "" {
		cfg.PtauName = fmt.Sprintf("pot%d_final.ptau", power)
	}
	return cfg, cfg.Validate()
}

func newOrchestrator(c *cli.Context, srsEntropy, zkeyEntropy string) (*prover.Orchestrator, error) {
	cfg, err := circuitConfigFromFlags(c)
	if err != nil {
		return nil, err
	}
	driver, err := prover.DefaultDriver(cfg, []byte(srsEntropy), []byte(zkeyEntropy))
	if err != nil {
		return nil, err
	}
	return prover.NewOrchestrator(cfg, driver)
}

func readInputs(c *cli.Context) (draw.Inputs, error) {
	var in draw.Inputs
	path := c.String("inputs")
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return in, err
	}
	err = json.Unmarshal(data, &in)
	return in, err
}

func runCli() {
	gnarkLogger.Set(*logging.Logger())
	app := cli.App{
		Name:                 "draw-prover",
		Usage:                "verifiable draw proving service",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "setup",
				Usage: "build all missing artifacts for a circuit configuration",
				Flags: append(append([]cli.Flag{}, circuitFlags...), entropyFlags...),
				Action: func(c *cli.Context) error {
					cfg, err := circuitConfigFromFlags(c)
					if err != nil {
						return err
					}
					driver, err := prover.DefaultDriver(cfg, []byte(c.String("srs-entropy")), []byte(c.String("zkey-entropy")))
					if err != nil {
						return err
					}
					registry := artifacts.NewRegistry(cfg.Layout())
					if err := driver.EnsureArtifacts(registry); err != nil {
						return err
					}
					logging.Logger().Info().
						Str("circuit", cfg.Name).
						Msg("setup complete")
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "report which artifacts of a configuration are missing",
				Flags: circuitFlags,
				Action: func(c *cli.Context) error {
					cfg, err := circuitConfigFromFlags(c)
					if err != nil {
						return err
					}
					registry := artifacts.NewRegistry(cfg.Layout())
					v := registry.Validate()
					if v.Complete {
						fmt.Println("all artifacts present")
						return nil
					}
					for _, missing := range v.Missing {
						fmt.Printf("missing: %s\n", missing)
					}
					return &artifacts.MissingError{Descriptor: v.Missing[0]}
				},
			},
			{
				Name:  "prove",
				Usage: "generate a proof for the given inputs",
				Flags: append(append(append([]cli.Flag{}, circuitFlags...), entropyFlags...),
					&cli.StringFlag{Name: "inputs", Usage: "inputs JSON file (\"-\" for stdin)", Value: "-"},
					&cli.StringFlag{Name: "output-dir", Usage: "directory for proof.json, public.json, outputs.json"},
				),
				Action: func(c *cli.Context) error {
					orch, err := newOrchestrator(c, c.String("srs-entropy"), c.String("zkey-entropy"))
					if err != nil {
						return err
					}
					if err := orch.Initialize(); err != nil {
						return err
					}
					in, err := readInputs(c)
					if err != nil {
						return err
					}
					bundle, err := orch.GenerateProof(in)
					if err != nil {
						return err
					}
					if dir := c.String("output-dir"); dir != "" {
						paths, err := prover.SaveProofData(bundle, dir)
						if err != nil {
							return err
						}
						logging.Logger().Info().
							Str("proof", paths.ProofPath).
							Str("public", paths.PublicPath).
							Str("outputs", paths.OutputsPath).
							Msg("proof written")
						return nil
					}
					return json.NewEncoder(os.Stdout).Encode(bundle)
				},
			},
			{
				Name:  "verify",
				Usage: "verify a previously generated proof",
				Flags: append(append(append([]cli.Flag{}, circuitFlags...), entropyFlags...),
					&cli.StringFlag{Name: "proof-dir", Usage: "directory holding proof.json, public.json, outputs.json", Required: true},
				),
				Action: func(c *cli.Context) error {
					orch, err := newOrchestrator(c, c.String("srs-entropy"), c.String("zkey-entropy"))
					if err != nil {
						return err
					}
					if err := orch.Initialize(); err != nil {
						return err
					}
					dir := c.String("proof-dir")
					bundle, err := prover.LoadProofData(prover.BundlePathsIn(dir))
					if err != nil {
						return err
					}
					valid, err := orch.VerifyProof(bundle)
					if err != nil {
						return err
					}
					if !valid {
						fmt.Println("proof is INVALID")
						return fmt.Errorf("proof verification failed")
					}
					fmt.Println("proof is valid")
					return nil
				},
			},
			{
				Name:  "export-vk",
				Usage: "write the verification key of a finalized proving key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "zkey", Usage: "proving key file", Required: true},
					&cli.StringFlag{Name: "output", Usage: "output file", Required: true},
				},
				Action: func(c *cli.Context) error {
					data, err := setup.GnarkKeyExporter{}.ExportVerificationKey(c.String("zkey"))
					if err != nil {
						return err
					}
					return os.WriteFile(c.String("output"), data, 0o644)
				},
			},
			{
				Name:  "start",
				Usage: "run the proving server",
				Flags: append(append(append([]cli.Flag{}, circuitFlags...), entropyFlags...),
					&cli.BoolFlag{Name: "json-logging", Usage: "enable JSON logging"},
					&cli.StringFlag{Name: "prover-address", Usage: "address for the prover server", Value: "0.0.0.0:3001"},
					&cli.StringFlag{Name: "metrics-address", Usage: "address for the metrics server", Value: "0.0.0.0:9998"},
					&cli.StringFlag{Name: "redis-url", Usage: "Redis URL for async queue processing (e.g. redis://localhost:6379)"},
				),
				Action: func(c *cli.Context) error {
					if c.Bool("json-logging") {
						logging.SetJSONOutput()
					}

					orch, err := newOrchestrator(c, c.String("srs-entropy"), c.String("zkey-entropy"))
					if err != nil {
						return err
					}
					if err := orch.Initialize(); err != nil {
						return err
					}
					provers := map[string]server.Prover{orch.Config().Name: orch}

					var redisQueue *server.RedisQueue
					var worker *server.ProveQueueWorker
					if redisURL := c.String("redis-url"); redisURL != "" {
						redisQueue, err = server.NewRedisQueue(redisURL)
						if err != nil {
							return err
						}
						worker = server.NewProveQueueWorker(redisQueue, provers)
						go worker.Start()
					}

					config := server.Config{
						ProverAddress:  c.String("prover-address"),
						MetricsAddress: c.String("metrics-address"),
					}
					instance := server.RunWithQueue(&config, redisQueue, provers)

					sigint := make(chan os.Signal, 1)
					signal.Notify(sigint, os.Interrupt)
					<-sigint
					logging.Logger().Info().Msg("received sigint, shutting down")
					if worker != nil {
						worker.Stop()
					}
					instance.RequestStop()
					instance.AwaitStop()
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger().Fatal().Err(err).Msg("")
	}
}
