package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alecgard/toolshelf/internal/catalog"
	"github.com/alecgard/toolshelf/internal/config"
	"github.com/alecgard/toolshelf/internal/db"
)

//go:embed catalog.yaml
var starterCatalog []byte

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the master catalog",
	Long:  "Upserts the built-in starter catalog, or the tools listed in --file, into the master catalog. Tools are matched by title.",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML catalog file to load instead of the built-in one")
	rootCmd.AddCommand(seedCmd)
}

type catalogFile struct {
	Tools []catalog.CreateToolInput `yaml:"tools"`
}

func loadCatalogFile(path string) ([]catalog.CreateToolInput, error) {
	data := starterCatalog
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading catalog file: %w", err)
		}
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return f.Tools, nil
}

// seedCatalog upserts tools and returns how many were written.
func seedCatalog(ctx context.Context, svc *catalog.Service, tools []catalog.CreateToolInput) (int, error) {
	for i, in := range tools {
		t, err := svc.Upsert(ctx, in)
		if err != nil {
			return i, fmt.Errorf("upserting tool %q: %w", in.Title, err)
		}
		slog.Debug("seeded tool", "title", t.Title, "id", t.ID)
	}
	return len(tools), nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	tools, err := loadCatalogFile(seedFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := db.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.QueryTimeout)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := seedCatalog(ctx, catalog.NewService(catalog.NewPGStore(d)), tools)
	if err != nil {
		return err
	}

	slog.Info("catalog seeded", "tools", n)
	fmt.Printf("\n=== Catalog Seeded ===\n")
	fmt.Printf("Tools:     %d upserted\n", n)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  toolshelf token --email you@example.com\n")
	fmt.Printf("  curl -H 'Authorization: Bearer <token>' http://%s/api/v1/catalog?q=grafana\n", cfg.Addr())
	return nil
}
