// Command bootstrap creates the first SUPERADMIN, which no API call can do,
// and generates VAPID key pairs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lalith-99/orgcast/internal/config"
	"github.com/lalith-99/orgcast/internal/db"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/observ"
	"github.com/lalith-99/orgcast/internal/push/webpush"
	"github.com/lalith-99/orgcast/internal/repository/postgres"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		email    = flag.String("email", "", "superadmin email")
		name     = flag.String("name", "Administrator", "superadmin full name")
		password = flag.String("password", "", "superadmin password (or BOOTSTRAP_PASSWORD)")
		genVAPID = flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	)
	flag.Parse()

	if *genVAPID {
		priv, pub, err := webpush.GenerateKeys()
		if err != nil {
			return fmt.Errorf("generate vapid keys: %w", err)
		}
		fmt.Printf("VAPID_PRIVATE_KEY=%s\nVAPID_PUBLIC_KEY=%s\n", priv, pub)
		return nil
	}

	if *password == "" {
		*password = os.Getenv("BOOTSTRAP_PASSWORD")
	}
	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required; the in-memory store does not survive this process")
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// The raw store: ordinary writes refuse to create this role.
	store := postgres.New(database.Pool())
	p := &models.Principal{
		FullName:     *name,
		Email:        strings.ToLower(strings.TrimSpace(*email)),
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
		IsActive:     true,
	}
	if err := store.CreatePrincipal(ctx, p); err != nil {
		return fmt.Errorf("create superadmin: %w", err)
	}

	logger.Info("superadmin created", zap.String("id", p.ID.String()), zap.String("email", p.Email))
	return nil
}
