package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/agora-api/internal/models"
	"github.com/noah-isme/agora-api/internal/repository"
	"github.com/noah-isme/agora-api/pkg/config"
	"github.com/noah-isme/agora-api/pkg/database"
)

// Seeds the first admin principal so a fresh deployment has someone able to
// reach the management endpoints. Running it twice with the same email is
// safe: the duplicate is reported and nothing changes.
func main() {
	var (
		email       string
		password    string
		displayName string
		roleName    string
		timeout     time.Duration
	)

	flag.StringVar(&email, "email", "", "Admin email address (required)")
	flag.StringVar(&password, "password", "", "Admin password (required, min 8 chars)")
	flag.StringVar(&displayName, "name", "root admin", "Display name")
	flag.StringVar(&roleName, "role", string(models.RoleAdmin), "Role to seed: admin or adminUser")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Database operation timeout")
	flag.Parse()

	if email == "" || len(password) < 8 {
		log.Fatal("both -email and a -password of at least 8 characters are required")
	}

	role, err := models.ParseRole(roleName)
	if err != nil {
		log.Fatalf("invalid role: %v", err)
	}
	if role != models.RoleAdmin && role != models.RoleAdminUser {
		log.Fatalf("role %s cannot be seeded, use admin or adminUser", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	principal := &models.Principal{
		Role:        role,
		DisplayName: &displayName,
		Status:      models.StatusActive,
	}
	credential := &models.Credential{Email: email, PasswordHash: string(hash)}

	repo := repository.NewPrincipalRepository(db)
	if err := repo.Create(ctx, principal, credential); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			fmt.Printf("principal with email %s already exists, nothing to do\n", email)
			return
		}
		log.Fatalf("failed to seed principal: %v", err)
	}

	fmt.Printf("seeded %s principal %s (%s)\n", role, principal.ID, email)
}
