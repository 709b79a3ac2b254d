package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/evidence"
	"github.com/pithecene-io/evq/iox"
	"github.com/pithecene-io/evq/metrics"
	"github.com/pithecene-io/evq/report"
	"github.com/pithecene-io/evq/shard"
	"github.com/pithecene-io/evq/types"
)

// StoreResponse is the response for the store command.
type StoreResponse struct {
	Filename string        `json:"filename" yaml:"filename"`
	Handle   string        `json:"handle" yaml:"handle"`
	Shard    types.ShardID `json:"shard" yaml:"shard"`
	Bytes    int           `json:"bytes" yaml:"bytes"`
	Size     string        `json:"size" yaml:"size"`
}

func (r StoreResponse) rows() [][2]string {
	return [][2]string{
		{"Filename", r.Filename},
		{"Handle", r.Handle},
		{"Shard", r.Shard.String()},
		{"Size", r.Size},
	}
}

// storeChoice holds the parsed flags of the store command.
type storeChoice struct {
	configPath string
	ident      string
	instance   string
	file       string
	format     string
}

// StoreCommand returns the store command. It writes one evidence file to
// the shard assigned to the agent, for operator backfills.
func StoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "store",
		Usage:     "Store an evidence file on the agent's shard",
		ArgsUsage: "FILE (use - for stdin)",
		Flags: []cli.Flag{
			ConfigFlag,
			FormatFlag,
			&cli.StringFlag{
				Name:     "ident",
				Usage:    "Agent ident (14 characters)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "instance",
				Usage:    "Agent installation instance",
				Required: true,
			},
		},
		Action: storeAction,
	}
}

func storeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("store requires exactly one FILE argument", exitConfigOrConnect)
	}
	choice := storeChoice{
		configPath: c.String("config"),
		ident:      c.String("ident"),
		instance:   c.String("instance"),
		file:       c.Args().First(),
		format:     c.String("format"),
	}
	return runStore(c.Context, choice, os.Stdin, c.App.Writer, c.App.ErrWriter)
}

func runStore(ctx context.Context, choice storeChoice, stdin io.Reader, stdout, stderr io.Writer) error {
	format, err := report.ParseFormat(choice.format)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigOrConnect)
	}

	content, err := readEvidence(choice.file, stdin)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read evidence: %v", err), exitConfigOrConnect)
	}

	cfg, err := loadConfig(choice.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	resolver, err := shard.New(cfg.ResolverConfig())
	if err != nil {
		return cli.Exit(fmt.Sprintf("shard resolver: %v", err), exitConfigOrConnect)
	}
	defer func() { _ = shard.Close(resolver) }()

	collector := metrics.NewCollector(storageBackend(cfg), false)
	pool, err := blobstore.NewPool(cfg.Targets(), blobstore.DefaultOpener(cfg.Collection, collector))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid shard configuration: %v", err), exitConfigOrConnect)
	}
	defer iox.DiscardClose(pool)

	writer := evidence.NewWriter(resolver, pool, logger.Named("evidence"), collector)
	handle, shardID, err := writer.Store(ctx, choice.ident, choice.instance, content)
	if err != nil {
		if errors.Is(err, evidence.ErrInvalidShard) || errors.Is(err, types.ErrMalformedFilename) {
			return cli.Exit(err.Error(), exitConfigOrConnect)
		}
		return fmt.Errorf("store failed: %w", err)
	}

	key := types.AgentKey{Ident: choice.ident, Instance: choice.instance}
	return renderValue(stdout, format, StoreResponse{
		Filename: key.Filename(),
		Handle:   string(handle),
		Shard:    shardID,
		Bytes:    len(content),
		Size:     report.FormatBytes(int64(len(content))),
	})
}

// readEvidence reads path, or stdin when path is "-".
func readEvidence(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
