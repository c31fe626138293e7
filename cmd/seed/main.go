// seed inserts a test user, a project, and a handful of tasks into the
// local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relaygrid/octabot/internal/infrastructure/postgres"
	"github.com/relaygrid/octabot/internal/security"
)

const (
	seedUsername = "seed-admin"
	seedPassword = "change-me-please"
	seedCode     = "SEED"
)

type taskSpec struct {
	name     string
	taskType string
	schedule *string
	offset   time.Duration
}

func everyMinute() *string {
	s := "@every 60s"
	return &s
}

var tasks = []taskSpec{
	{"seed-echo-once", "echo", nil, -5 * time.Second},
	{"seed-echo-recurring", "echo", everyMinute(), -5 * time.Second},
	{"seed-notify-once", "notify", nil, 10 * time.Second},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	passwordHash, err := security.HashPassword(seedPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	var userID string
	err = pool.QueryRow(ctx, `
		INSERT INTO users (username, role, password_hash)
		VALUES ($1, 'admin', $2)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id`,
		seedUsername, passwordHash,
	).Scan(&userID)
	if err != nil {
		log.Fatalf("upsert seed user: %v", err)
	}

	var projectID string
	err = pool.QueryRow(ctx, `
		INSERT INTO projects (name, code, owner_id, options)
		VALUES ($1, $2, $3, '{}')
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		"Seed Project", seedCode, userID,
	).Scan(&projectID)
	if err != nil {
		log.Fatalf("upsert seed project: %v", err)
	}

	now := time.Now()
	var created int
	for _, spec := range tasks {
		startAt := now.Add(spec.offset).Unix()
		_, err := pool.Exec(ctx, `
			INSERT INTO tasks (project_id, type, name, schedule, start_at, options, status, retries)
			VALUES ($1, $2, $3, $4, $5, '{}', 'new', 0)`,
			projectID, spec.taskType, spec.name, spec.schedule, startAt,
		)
		if err != nil {
			log.Fatalf("insert task %s: %v", spec.name, err)
		}
		created++
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User:      %s (password: %s)\n", seedUsername, seedPassword)
	fmt.Printf("  Project:   %s (code: %s)\n", projectID, seedCode)
	fmt.Printf("  Tasks:     %d created\n", created)
	fmt.Println()
	fmt.Println("  Log in:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/api/users/login -d '{\"username\":%q,\"password\":%q}'\n", seedUsername, seedPassword)
}
