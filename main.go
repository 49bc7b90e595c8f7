package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysindex/config"
	"github.com/camden-git/mediasysindex/database"
	"github.com/camden-git/mediasysindex/logger"
	"github.com/camden-git/mediasysindex/repository"
	"github.com/camden-git/mediasysindex/services"
	"github.com/camden-git/mediasysindex/takestamp"
)

// app holds what every command needs once configuration is loaded.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	db      *gorm.DB
	photos  *repository.PhotoRepository
	gallery *services.GalleryService
}

func newApp() (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.InitGormDB(cfg.DatabaseDriver, cfg.DatabaseDSN, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	albums := repository.NewAlbumRepository(db)
	photos := repository.NewPhotoRepository(db)
	maintainer := takestamp.NewMaintainer(albums,
		takestamp.WithLogger(log.With().Str("component", "takestamp").Logger()),
		takestamp.WithWorkers(cfg.RecomputeWorkers),
	)
	gallery := services.NewGalleryService(albums, photos, maintainer,
		services.WithServiceLogger(log.With().Str("component", "gallery").Logger()),
		services.WithRetry(cfg.RetryMaxTries, nil),
	)
	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		photos:  photos,
		gallery: gallery,
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// withApp wraps a command body with application setup and teardown.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd.Context(), a, cmd, args)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the albums and photos tables",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, a *app, _ *cobra.Command, _ []string) error {
			if err := database.AutoMigrateModels(a.db); err != nil {
				return err
			}
			a.log.Info().Msg("schema migrated")
			return nil
		}),
	}
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every album's takestamp bounds from its photos",
		Long: "Rebuild every album's min/max takestamp from the photos in its whole subtree.\n" +
			"Run it while no other process is mutating albums or photos.",
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			report, err := a.gallery.Recompute(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "albums=%d updated=%d took=%s\n", report.Albums, report.Updated, report.Duration)
			return nil
		}),
	}
}

func verifyCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Report albums whose stored takestamp bounds have drifted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			drifts, err := a.gallery.Verify(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(map[string]any{"drift": drifts})
			}
			for _, d := range drifts {
				fmt.Fprintf(out, "album %d: stored=%s expected=%s\n", d.AlbumID, d.Stored, d.Expected)
			}
			fmt.Fprintf(out, "%d album(s) drifted\n", len(drifts))
			if len(drifts) > 0 {
				return errDrift
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the drift report as YAML")
	return cmd
}

var errDrift = errors.New("takestamp drift detected; run recompute")

func importCmd() *cobra.Command {
	var parent uint
	cmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Import a folder tree as albums and photos",
		Long: "Import a folder tree. Each directory becomes an album and each image file a photo.\n" +
			"The directory defaults to MEDIASYS_IMPORT_ROOT.",
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			root := a.cfg.ImportRoot
			if len(args) == 1 {
				root = args[0]
			}
			var parentID *uint
			if cmd.Flags().Changed("parent") {
				parentID = &parent
			}
			im := services.NewImporter(a.gallery, a.photos, a.log.With().Str("component", "importer").Logger())
			report, err := im.Import(ctx, root, parentID)
			fmt.Fprintf(cmd.OutOrStdout(), "albums=%d photos=%d undated=%d skipped=%d\n",
				report.Albums, report.Photos, report.Undated, report.Skipped)
			return err
		}),
	}
	cmd.Flags().UintVar(&parent, "parent", 0, "id of the album to import under (default: new root album)")
	return cmd
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mediasys",
		Short:         "Album takestamp index maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), recomputeCmd(), verifyCmd(), importCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediasys: %v\n", err)
		stop()
		os.Exit(1)
	}
}
