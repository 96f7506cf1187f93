package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	lockfile "github.com/ipfs/go-fs-lock"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-porep/pkg/config"
	"github.com/filecoin-project/go-porep/pkg/metrics"
	"github.com/filecoin-project/go-porep/pkg/porep"
	"github.com/filecoin-project/go-porep/pkg/registry"
	"github.com/filecoin-project/go-porep/pkg/store"
	"github.com/filecoin-project/go-porep/pkg/types"
)

const (
	configFilename = "config.toml"
	lockFilename   = "repo.lock"
)

func repoPath(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String("repo"))
}

// env is what every command but init works with. It holds the repo lock
// until Close.
type env struct {
	cfg     *config.Config
	pp      *porep.PublicParams
	reg     *registry.Registry
	closers []io.Closer
}

func loadEnv(cctx *cli.Context) (_ *env, err error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFile(filepath.Join(repo, configFilename))
	if err != nil {
		return nil, xerrors.Errorf("no usable repo at %s, run init first: %w", repo, err)
	}

	e := &env{cfg: cfg}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	lk, err := lockfile.Lock(repo, lockFilename)
	if err != nil {
		return nil, xerrors.Errorf("failed to take repo lock: %w", err)
	}
	e.closers = append(e.closers, lk)

	if err := e.observe(cctx); err != nil {
		return nil, err
	}

	sp, err := cfg.SetupParams()
	if err != nil {
		return nil, err
	}
	if e.pp, err = porep.Setup(sp); err != nil {
		return nil, err
	}
	regPath, err := cfg.RegistryPath()
	if err != nil {
		return nil, err
	}
	if e.reg, err = registry.Open(cfg.Registry.Type, regPath); err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.reg)
	return e, nil
}

// observe registers the metrics and trace exporters the config or the
// global flags ask for.
func (e *env) observe(cctx *cli.Context) error {
	mc := e.cfg.Observability.Metrics
	if cctx.IsSet("metrics-addr") {
		mc.PrometheusEnabled = true
		mc.PrometheusEndpoint = cctx.String("metrics-addr")
	}
	if mc.PrometheusEnabled {
		interval, err := mc.Interval()
		if err != nil {
			return err
		}
		pe, err := metrics.RegisterPrometheusEndpoint(mc.PrometheusEndpoint, interval)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, pe)
	}

	tc := e.cfg.Observability.Tracing
	if cctx.IsSet("tracing-endpoint") {
		tc.JaegerTracingEnabled = true
		tc.JaegerEndpoint = cctx.String("tracing-endpoint")
	}
	if tc.JaegerTracingEnabled {
		tr, err := metrics.RegisterJaeger(tc.ServerName, tc.JaegerEndpoint, tc.ProbabilitySampler)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, tr)
	}
	return nil
}

// Close releases everything loadEnv acquired, the repo lock last.
func (e *env) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

// replicaStore returns the store of one replica.
func (e *env) replicaStore(id types.ReplicaID) (store.Store, error) {
	if e.cfg.Storage.Type == "memory" {
		return store.NewMemStore(), nil
	}
	dir, err := e.cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	return store.NewDiskStore(filepath.Join(dir, id.String()))
}

// openAux reattaches to a sealed replica together with its record.
func (e *env) openAux(cctx *cli.Context, id types.ReplicaID) (*registry.Record, *porep.Aux, func(), error) {
	if e.cfg.Storage.Type == "memory" {
		return nil, nil, nil, xerrors.New("memory storage does not keep replicas between runs")
	}
	rec, err := e.reg.Get(cctx.Context, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if rec.Header != e.pp.Header() {
		return nil, nil, nil, types.NewParameterMismatch("parameters", e.pp.Header(), rec.Header)
	}
	st, err := e.replicaStore(id)
	if err != nil {
		return nil, nil, nil, err
	}
	aux, err := porep.OpenAux(e.pp, st)
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}
	return rec, aux, func() {
		_ = aux.Close()
		_ = st.Close()
	}, nil
}

func parseReplicaID(s string) (types.ReplicaID, error) {
	var id types.ReplicaID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, xerrors.Errorf("replica id: %w", err)
	}
	return types.DomainFromBytes(b)
}

func replicaArg(cctx *cli.Context) (types.ReplicaID, error) {
	if cctx.Args().Len() < 1 {
		return types.ReplicaID{}, xerrors.New("missing replica id argument")
	}
	return parseReplicaID(cctx.Args().First())
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "create a repo with a default config",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "sector-size", Usage: "size of sealed data, e.g. 16KiB"},
		&cli.IntFlag{Name: "layers", Usage: "number of stacked layers"},
		&cli.IntFlag{Name: "challenges", Usage: "challenges per proof"},
		&cli.StringFlag{Name: "combine", Usage: "combine mode: xor or field"},
		&cli.StringFlag{Name: "hasher", Usage: "hash function: sha256, blake2s or blake2b"},
	},
	Action: func(cctx *cli.Context) error {
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		cfgPath := filepath.Join(repo, configFilename)
		if _, err := os.Stat(cfgPath); err == nil {
			return xerrors.Errorf("repo at %s already initialized", repo)
		}
		if err := os.MkdirAll(repo, 0755); err != nil {
			return err
		}
		lk, err := lockfile.Lock(repo, lockFilename)
		if err != nil {
			return xerrors.Errorf("failed to take repo lock: %w", err)
		}
		defer lk.Close() // nolint: errcheck

		cfg := config.NewDefaultConfig()
		cfg.Storage.Path = filepath.Join(repo, "layers")
		cfg.Registry.Path = filepath.Join(repo, "registry")
		if cctx.IsSet("sector-size") {
			cfg.Graph.SectorSize = cctx.String("sector-size")
		}
		if cctx.IsSet("layers") {
			cfg.Graph.Layers = cctx.Int("layers")
		}
		if cctx.IsSet("challenges") {
			cfg.Proof.Challenges = cctx.Int("challenges")
		}
		if cctx.IsSet("combine") {
			cfg.Graph.Combine = cctx.String("combine")
		}
		if cctx.IsSet("hasher") {
			cfg.Graph.Hasher = cctx.String("hasher")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		sp, err := cfg.SetupParams()
		if err != nil {
			return err
		}
		if _, err := porep.Setup(sp); err != nil {
			return err
		}
		if err := cfg.WriteFile(cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "initialized repo at %s\n", repo) // nolint: errcheck
		return nil
	},
}

var sealCmd = &cli.Command{
	Name:      "seal",
	Usage:     "seal a data file into a replica",
	ArgsUsage: "<data file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "replica-id", Required: true, Usage: "hex encoded 32 byte replica id"},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() < 1 {
			return xerrors.New("missing data file argument")
		}
		id, err := parseReplicaID(cctx.String("replica-id"))
		if err != nil {
			return err
		}
		e, err := loadEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close() // nolint: errcheck

		data, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return err
		}
		if uint64(len(data)) != e.pp.SealedSize() {
			return xerrors.Errorf("data is %s, sector size is %s", units.BytesSize(float64(len(data))), units.BytesSize(float64(e.pp.SealedSize())))
		}

		st, err := e.replicaStore(id)
		if err != nil {
			return err
		}
		defer st.Close() // nolint: errcheck

		tau, aux, err := porep.Replicate(cctx.Context, e.pp, id, data, st)
		if err != nil {
			return err
		}
		defer aux.Close() // nolint: errcheck

		rec := &registry.Record{ReplicaID: id, Header: e.pp.Header(), Tau: *tau, SealedAt: time.Now().Unix()}
		if err := e.reg.Put(cctx.Context, rec); err != nil {
			return err
		}
		return printRecord(cctx, rec)
	},
}

var proveCmd = &cli.Command{
	Name:      "prove",
	Usage:     "answer the challenges of a randomness value",
	ArgsUsage: "<replica id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "randomness", Required: true},
		&cli.StringFlag{Name: "out", Required: true, Usage: "file to write the proof to"},
	},
	Action: func(cctx *cli.Context) error {
		id, err := replicaArg(cctx)
		if err != nil {
			return err
		}
		e, err := loadEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close() // nolint: errcheck

		rec, aux, done, err := e.openAux(cctx, id)
		if err != nil {
			return err
		}
		defer done()

		pub := porep.PublicInputs{
			ReplicaID:     id,
			Tau:           &rec.Tau,
			ChallengeSeed: porep.ChallengeSeed([]byte(cctx.String("randomness")), rec.Tau.CommR),
		}
		proof, err := porep.Prove(cctx.Context, e.pp, pub, aux)
		if err != nil {
			return err
		}
		raw, err := proof.Encode()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cctx.String("out"), raw, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "wrote %s proof of %d challenges\n", units.BytesSize(float64(len(raw))), len(proof.Challenges)) // nolint: errcheck
		return nil
	},
}

var verifyCmd = &cli.Command{
	Name:      "verify",
	Usage:     "check a proof against the recorded commitments",
	ArgsUsage: "<replica id> <proof file>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "randomness", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		id, err := replicaArg(cctx)
		if err != nil {
			return err
		}
		if cctx.Args().Len() < 2 {
			return xerrors.New("missing proof file argument")
		}
		e, err := loadEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close() // nolint: errcheck

		rec, err := e.reg.Get(cctx.Context, id)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(cctx.Args().Get(1))
		if err != nil {
			return err
		}
		proof, err := porep.DecodeProof(raw)
		if err != nil {
			return err
		}
		pub := porep.PublicInputs{
			ReplicaID:     id,
			Tau:           &rec.Tau,
			ChallengeSeed: porep.ChallengeSeed([]byte(cctx.String("randomness")), rec.Tau.CommR),
		}
		ok, err := porep.Verify(cctx.Context, e.pp, pub, proof)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.New("proof is invalid")
		}
		fmt.Fprintln(cctx.App.Writer, "proof is valid") // nolint: errcheck
		return nil
	},
}

var extractCmd = &cli.Command{
	Name:      "extract",
	Usage:     "recover the data of a replica",
	ArgsUsage: "<replica id>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Required: true, Usage: "file to write the data to"},
		&cli.BoolFlag{Name: "regenerate", Usage: "rebuild the labels instead of reading the stored layers"},
	},
	Action: func(cctx *cli.Context) error {
		id, err := replicaArg(cctx)
		if err != nil {
			return err
		}
		e, err := loadEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close() // nolint: errcheck

		_, aux, done, err := e.openAux(cctx, id)
		if err != nil {
			return err
		}
		defer done()

		var data []byte
		if cctx.Bool("regenerate") {
			replica, err := aux.Replica()
			if err != nil {
				return err
			}
			if data, err = porep.ExtractAll(cctx.Context, e.pp, id, replica); err != nil {
				return err
			}
		} else {
			data = make([]byte, 0, e.pp.SealedSize())
			for i := uint64(0); i < e.pp.Nodes(); i++ {
				d, err := porep.Extract(cctx.Context, e.pp, aux, i)
				if err != nil {
					return err
				}
				data = append(data, d[:]...)
			}
		}
		return os.WriteFile(cctx.String("out"), data, 0644)
	},
}

var showCmd = &cli.Command{
	Name:      "show",
	Usage:     "list sealed replicas, or show one",
	ArgsUsage: "[replica id]",
	Action: func(cctx *cli.Context) error {
		e, err := loadEnv(cctx)
		if err != nil {
			return err
		}
		defer e.Close() // nolint: errcheck

		if cctx.Args().Len() > 0 {
			id, err := replicaArg(cctx)
			if err != nil {
				return err
			}
			rec, err := e.reg.Get(cctx.Context, id)
			if err != nil {
				return err
			}
			return printRecord(cctx, rec)
		}

		recs, err := e.reg.List(cctx.Context)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if err := printRecord(cctx, rec); err != nil {
				return err
			}
		}
		return nil
	},
}

func printRecord(cctx *cli.Context, rec *registry.Record) error {
	commR, err := rec.Tau.CommRCID()
	if err != nil {
		return err
	}
	commD, err := rec.Tau.CommDCID()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cctx.App.Writer, "replica %s\n  sealed  %s\n  size    %s, %d layers\n  comm_d  %s\n  comm_r  %s\n",
		rec.ReplicaID,
		time.Unix(rec.SealedAt, 0).UTC().Format(time.RFC3339),
		units.BytesSize(float64(rec.Header.Nodes*types.NodeSize)), rec.Header.Layers,
		commD,
		commR,
	)
	return err
}
