// Command createadmin adds an admin account to the credential store.
//
//	createadmin -email admin@example.com -password s3cret -name Admin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"studio/web/internal/config"
	"studio/web/internal/database"
	"studio/web/internal/log"
	"studio/web/internal/models"
	"studio/web/internal/repository"
	"studio/web/internal/security"
	"studio/web/internal/service"
	"studio/web/internal/session"
)

func main() {
	var (
		email    = flag.String("email", "", "admin email (required)")
		password = flag.String("password", "", "admin password, at least 6 characters (required)")
		name     = flag.String("name", "Admin", "display name")
	)
	flag.Parse()

	if err := run(*name, *email, *password); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(name, email, password string) error {
	if email == "" || password == "" {
		flag.Usage()
		return errors.New("email and password are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := log.New(cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	users := service.NewUserService(
		repository.NewUserRepository(pool),
		// A fresh account has no sessions to revoke.
		session.NewMemoryStore(session.Options{}, nil),
		security.NewPasswordHasher(security.Argon2Params(cfg.Security.Argon2)),
		logger,
	)

	created, err := users.EnsureAdmin(ctx, name, email, password)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return errors.New(verr.Message)
		}
		return err
	}
	if !created {
		fmt.Println("Admin with this email already exists.")
		return nil
	}

	fmt.Printf("Admin user created successfully: %s\n", models.NormalizeEmail(email))
	return nil
}
