package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/odontocore/clinic/internal/config"
	"github.com/odontocore/clinic/internal/domain/billing"
	"github.com/odontocore/clinic/internal/domain/budget"
	"github.com/odontocore/clinic/internal/domain/crm"
	"github.com/odontocore/clinic/internal/domain/finlock"
	"github.com/odontocore/clinic/internal/domain/insights"
	"github.com/odontocore/clinic/internal/domain/ortho"
	"github.com/odontocore/clinic/internal/domain/patient"
	"github.com/odontocore/clinic/internal/domain/treatment"
	"github.com/odontocore/clinic/internal/platform/auth"
	"github.com/odontocore/clinic/internal/platform/db"
	"github.com/odontocore/clinic/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Dental clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "clinic_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(context.Background(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "clinic_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinic tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("Creating clinic schema: clinic_%s\n", name)
			if err := db.CreateClinicSchema(context.Background(), pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Clinic created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Clinic identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

// reconcileCmd recomputes a patient's financial aggregates from the
// authoritative budget and installment sums.
func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute a patient's financial aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			idArg, _ := cmd.Flags().GetString("patient")
			clinicID, _ := cmd.Flags().GetString("clinic")
			if idArg == "" {
				return fmt.Errorf("--patient is required")
			}
			patientID, err := uuid.Parse(idArg)
			if err != nil {
				return fmt.Errorf("invalid patient id: %w", err)
			}

			pool, cleanup, err := openPool()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}
			defer conn.Release()
			if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO clinic_%s, public", clinicID)); err != nil {
				return fmt.Errorf("clinic resolution failed: %w", err)
			}
			ctx = context.WithValue(ctx, db.DBConnKey, conn)

			patientSvc := patient.NewService(patient.NewRepoPG(pool), patient.NewNoteRepoPG(pool))
			patientSvc.SetReconciliationSources(budget.NewRepoPG(pool), billing.NewInstallmentRepoPG(pool))

			result, err := patientSvc.Reconcile(ctx, patientID)
			if err != nil {
				return err
			}
			fmt.Printf("Patient %s reconciled (drifted: %v).\n", patientID, result.Drifted)
			fmt.Printf("  approved: %.2f -> %.2f\n", result.PrevApproved, result.ComputedApproved)
			fmt.Printf("  paid:     %.2f -> %.2f\n", result.PrevPaid, result.ComputedPaid)
			return nil
		},
	}
	cmd.Flags().String("patient", "", "Patient UUID")
	cmd.Flags().String("clinic", "default", "Clinic identifier")
	return cmd
}

func openPool() (pool *pgxpool.Pool, cleanup func(), err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	p, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Clinic-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(cfg.AuthSecret))
	}

	e.Use(db.ClinicMiddleware(pool, cfg.DefaultClinic))

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	// Repositories
	patientRepo := patient.NewRepoPG(pool)
	noteRepo := patient.NewNoteRepoPG(pool)
	crmRepo := crm.NewRepoPG(pool)
	installmentRepo := billing.NewInstallmentRepoPG(pool)
	expenseRepo := billing.NewExpenseRepoPG(pool)
	registerRepo := billing.NewRegisterRepoPG(pool)
	treatmentRepo := treatment.NewRepoPG(pool)
	budgetRepo := budget.NewRepoPG(pool)
	contractRepo := ortho.NewContractRepoPG(pool)
	planRepo := ortho.NewPlanRepoPG(pool)
	orthoApptRepo := ortho.NewAppointmentRepoPG(pool)
	stockRepo := ortho.NewStockRepoPG(pool)

	// Services
	patientSvc := patient.NewService(patientRepo, noteRepo)
	patientSvc.SetReconciliationSources(budgetRepo, installmentRepo)
	crmSvc := crm.NewService(crmRepo)
	billingSvc := billing.NewService(installmentRepo, expenseRepo, registerRepo, patientRepo)
	finlockSvc := finlock.NewService(installmentRepo, cfg.OverridePIN,
		[]byte(cfg.OverrideTokenSecret), cfg.OverrideTokenTTL)
	treatmentSvc := treatment.NewService(treatmentRepo, finlockSvc, patientSvc)
	budgetSvc := budget.NewService(budgetRepo, installmentRepo, treatmentSvc, patientRepo, patientSvc, crmSvc)
	orthoSvc := ortho.NewService(contractRepo, planRepo, orthoApptRepo, stockRepo, installmentRepo)
	insightsSvc := insights.NewService(patientRepo, installmentRepo, crmSvc)

	// Handlers
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	crm.NewHandler(crmSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	finlock.NewHandler(finlockSvc).RegisterRoutes(apiV1)
	treatment.NewHandler(treatmentSvc).RegisterRoutes(apiV1)
	budget.NewHandler(budgetSvc).RegisterRoutes(apiV1)
	ortho.NewHandler(orthoSvc).RegisterRoutes(apiV1)
	insights.NewHandler(insightsSvc, pool).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
