// Command seed populates the database with demo users, conversations and groups and
// prints a bearer token for each seeded user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/middleware"
	"parley/internal/observability"
	"parley/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	messages := flag.Int("messages", 8, "Direct messages between the demo user and each other user")
	groups := flag.Int("groups", 3, "Number of groups to create")
	groupMessages := flag.Int("group-messages", 15, "Messages per group")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed bearer tokens")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	observability.InitLogger(cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		observability.Logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	res, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:        *numUsers,
		MessagesPerPair: *messages,
		NumGroups:       *groups,
		GroupMessages:   *groupMessages,
		ShouldClean:     *shouldClean,
	})
	if err != nil {
		observability.Logger.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("Seeded %d users and %d groups. Password for every account: %s\n\n",
		len(res.Users), len(res.Groups), seed.DefaultPassword)
	for i, u := range res.Users {
		token, err := middleware.IssueToken(cfg.JWTSecret, u.ID, *tokenTTL)
		if err != nil {
			observability.Logger.Error("failed to issue token", slog.String("error", err.Error()))
			os.Exit(1)
		}
		marker := ""
		if i == 0 {
			marker = " (demo)"
		}
		fmt.Printf("%4d  %-28s%s\n      %s\n", u.ID, u.Name, marker, token)
	}
}
