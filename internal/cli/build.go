package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"contest-variant-service/internal/config"
	"contest-variant-service/internal/domain"
	pginfra "contest-variant-service/internal/infra/postgres"
	"contest-variant-service/internal/statement"
)

// NewBuildCmd generates every variant of a contest from a compiled
// statement tree: shuffled statement, grading schema, and answer key per
// variant. With postgres configured the grading data is also upserted so
// the server can grade online submissions.
func NewBuildCmd(configPath *string) *cobra.Command {
	var (
		contestID     string
		statementPath string
		outDir        string
		store         bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate contest variants from a statement tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), *configPath, contestID, statementPath, outDir, store)
		},
	}
	cmd.Flags().StringVar(&contestID, "contest", "", "contest id to build (must appear in config)")
	cmd.Flags().StringVar(&statementPath, "statement", "", "path to the compiled statement tree JSON")
	cmd.Flags().StringVar(&outDir, "out", "build", "output directory for variant artifacts")
	cmd.Flags().BoolVar(&store, "store", false, "also upsert grading data into postgres")
	_ = cmd.MarkFlagRequired("contest")
	_ = cmd.MarkFlagRequired("statement")
	return cmd
}

func runBuild(ctx context.Context, configPath, contestID, statementPath, outDir string, store bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	var contest *config.ContestConfig
	for i := range cfg.Contests {
		if cfg.Contests[i].ID == contestID {
			contest = &cfg.Contests[i]
			break
		}
	}
	if contest == nil {
		return fmt.Errorf("contest %s not found in config", contestID)
	}

	raw, err := os.ReadFile(statementPath)
	if err != nil {
		return err
	}
	root, err := statement.DecodeRoot(raw)
	if err != nil {
		return fmt.Errorf("decode statement tree: %w", err)
	}

	var loader *pginfra.VariantLoader
	if store {
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("--store requires a postgres url in config")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pginfra.NewVariantLoader(pool)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for _, variantID := range contest.Variants {
		res, err := statement.Transform(root, variantID)
		if err != nil {
			return fmt.Errorf("transform %s: %w", variantID, err)
		}

		stripped := statement.StripSolutions(res.Tree)
		if err := writeArtifact(outDir, variantID+".statement.json", stripped); err != nil {
			return err
		}
		if err := writeArtifact(outDir, variantID+".schema.json", res.Schema); err != nil {
			return err
		}
		if err := writeArtifact(outDir, variantID+".solution.json", res.Solution); err != nil {
			return err
		}

		if loader != nil {
			v := domain.Variant{ID: variantID, ContestID: contestID, IsOnline: true, Schema: res.Schema}
			if err := loader.UpsertVariant(ctx, v, res.Solution); err != nil {
				return err
			}
		}
		log.Printf("built variant %s (%d problems)", variantID, len(res.Schema))
	}
	return nil
}

func writeArtifact(dir, name string, v interface{}) error {
	var (
		raw []byte
		err error
	)
	if node, ok := v.(statement.Node); ok {
		raw, err = statement.MarshalNode(node)
	} else {
		raw, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(dir, name), raw, 0o644)
}
