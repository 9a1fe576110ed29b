package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

var seedFilePath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load brand fixtures from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		fixture, err := loadSeedFile(seedFilePath)
		if err != nil {
			return err
		}

		n, err := applySeed(ctx, st, fixture)
		if err != nil {
			return err
		}

		zap.L().Info("seed complete",
			zap.Int("brands", n),
			zap.String("file", seedFilePath),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFilePath, "file", "", "path to YAML fixture file (required)")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

// seedFixture mirrors the YAML fixture layout: brands with nested
// claims and content items.
type seedFixture struct {
	Brands []seedBrand `yaml:"brands"`
}

type seedBrand struct {
	ID               string        `yaml:"id"`
	Name             string        `yaml:"name"`
	Domain           string        `yaml:"domain"`
	ServiceType      string        `yaml:"service_type"`
	Location         string        `yaml:"location"`
	Competitors      []string      `yaml:"competitors"`
	MonthlyBudgetUSD float64       `yaml:"monthly_budget_usd"`
	Claims           []seedClaim   `yaml:"claims"`
	Content          []seedContent `yaml:"content"`
}

type seedClaim struct {
	Text       string  `yaml:"text"`
	Confidence float64 `yaml:"confidence"`
}

type seedContent struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
	URL   string `yaml:"url"`
}

// loadSeedFile parses a YAML fixture file.
func loadSeedFile(path string) (*seedFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read seed file")
	}

	var fixture seedFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, eris.Wrap(err, "parse seed file")
	}

	for i, b := range fixture.Brands {
		if b.Name == "" {
			return nil, eris.Errorf("seed: brand %d has no name", i)
		}
	}
	return &fixture, nil
}

// applySeed upserts every brand in the fixture along with its claims
// and content, returning the number of brands written.
func applySeed(ctx context.Context, st store.Store, fixture *seedFixture) (int, error) {
	for _, b := range fixture.Brands {
		brand := &model.Brand{
			ID:               b.ID,
			Name:             b.Name,
			Domain:           b.Domain,
			ServiceType:      b.ServiceType,
			Location:         b.Location,
			Competitors:      b.Competitors,
			MonthlyBudgetUSD: b.MonthlyBudgetUSD,
		}
		if err := st.UpsertBrand(ctx, brand); err != nil {
			return 0, eris.Wrapf(err, "seed: upsert brand %q", b.Name)
		}

		if len(b.Claims) > 0 {
			claims := make([]model.BrandClaim, 0, len(b.Claims))
			for _, c := range b.Claims {
				claims = append(claims, model.BrandClaim{
					BrandID:    brand.ID,
					Text:       c.Text,
					Confidence: c.Confidence,
				})
			}
			if err := st.ReplaceClaims(ctx, brand.ID, claims); err != nil {
				return 0, eris.Wrapf(err, "seed: claims for %q", b.Name)
			}
		}

		if len(b.Content) > 0 {
			items := make([]model.BrandContent, 0, len(b.Content))
			for _, c := range b.Content {
				items = append(items, model.BrandContent{
					BrandID: brand.ID,
					Title:   c.Title,
					Body:    c.Body,
					URL:     c.URL,
				})
			}
			if err := st.ReplaceContent(ctx, brand.ID, items); err != nil {
				return 0, eris.Wrapf(err, "seed: content for %q", b.Name)
			}
		}
	}
	return len(fixture.Brands), nil
}
