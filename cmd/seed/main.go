package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"velvetink/internal/config"
	"velvetink/internal/domain/model"
	pg "velvetink/internal/infra/db/postgres"
	"velvetink/internal/storygen"
)

// curated is the starter library of pre-written stories shown to every
// visitor. Bodies are placeholders; real deployments load edited manuscripts.
var curated = []struct {
	Title   string
	Author  string
	Genre   string
	Heat    model.HeatLevel
	Tropes  []string
	Summary string
}{
	{"The Duke's Reluctant Bride", "Eleanor Vane", "regency", model.HeatSweet,
		[]string{"arranged-marriage", "slow-burn"},
		"A marriage of convenience turns inconvenient for everyone's hearts."},
	{"Storm Season", "Maya Reyes", "coastal", model.HeatSteamy,
		[]string{"second-chance", "forced-proximity"},
		"A hurricane traps two exes in the lighthouse they once shared."},
	{"Midnight at the Observatory", "June Calloway", "contemporary", model.HeatWarm,
		[]string{"grumpy-sunshine", "workplace"},
		"An astronomer who hates company meets the intern who won't stop talking."},
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	adminEmail := flag.String("admin-email", "admin@velvetink.local", "administrator account email")
	adminPassword := flag.String("admin-password", "", "administrator account password (required)")
	flag.Parse()

	if *adminPassword == "" {
		log.Fatal("missing -admin-password")
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	users := pg.NewUserRepo(pool)
	stories := pg.NewStoryRepo(pool, pg.NewTxManager(pool))

	// Admin account, idempotent.
	if existing, err := users.FindByEmail(ctx, nil, *adminEmail); err == nil && !existing.IsZero() {
		fmt.Printf("admin %s already present. No changes.\n", existing.Email)
	} else {
		hash, err := bcrypt.GenerateFromPassword([]byte(*adminPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		admin, err := model.NewUser("", *adminEmail, "Administrator", string(hash))
		if err != nil {
			log.Fatalf("admin user: %v", err)
		}
		admin.IsAdmin = true
		if err := users.Save(ctx, nil, admin); err != nil {
			log.Fatalf("save admin: %v", err)
		}
		fmt.Printf("seeded admin: %s (id=%s)\n", admin.Email, admin.ID)
	}

	// Curated library, skipped when anything is already published.
	published, err := stories.ListPublished(ctx, nil, 0, 1)
	if err != nil {
		log.Fatalf("list published: %v", err)
	}
	if len(published) > 0 {
		fmt.Println("library already seeded. No changes.")
		return
	}

	for _, c := range curated {
		s, err := model.NewStory("", model.StoryParams{
			Genre:     c.Genre,
			HeatLevel: c.Heat,
			Tropes:    c.Tropes,
			Length:    model.LengthMedium,
		})
		if err != nil {
			log.Fatalf("story %q: %v", c.Title, err)
		}
		s.Status = model.StoryStatusCompleted
		s.Published = true
		s.Title = c.Title
		s.Author = c.Author
		s.Summary = c.Summary
		s.Tags = c.Tropes
		s.Body = fmt.Sprintf("%s\n\n(placeholder manuscript)", c.Summary)
		s.WordCount = storygen.CountWords(s.Body)
		s.ReadingMinutes = model.ReadingTime(s.WordCount)
		s.ContentRating = c.Heat.ContentRating()
		if err := stories.Save(ctx, nil, s); err != nil {
			log.Fatalf("save story %q: %v", c.Title, err)
		}
		fmt.Printf("seeded: %s (id=%s)\n", s.Title, s.ID)
	}

	fmt.Println("Seeding complete.")
}
