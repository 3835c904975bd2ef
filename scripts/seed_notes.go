// Command seed_notes fills a notehub database with demo users, notes and
// comments. Run it with `go run ./scripts/seed_notes.go`.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"notehub/internal/auth"
	"notehub/internal/blob"
	"notehub/internal/comments"
	"notehub/internal/config"
	"notehub/internal/logger"
	"notehub/internal/notes"
	"notehub/internal/store/sqlstore"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var demoUsers = []string{"alice", "bob", "carol"}

var categories = []string{"Mathematics", "Computer Science", "Physics", "History", "Biology"}

var tagPool = []string{"exam", "midterm", "lecture", "summary", "algebra", "calculus", "graphs", "revision", "lab"}

var sampleComments = []string{
	"Really clear, thanks for sharing",
	"Missing the last two lectures",
	"Helped me pass the midterm",
	"Some diagrams are hard to read",
	"Great summary of the chapter",
	"Could use more worked examples",
}

func main() {
	configPath := flag.String("config", os.Getenv("NOTEHUB_CONFIG"), "path to YAML config file")
	count := flag.Int("notes", 20, "number of notes to create")
	password := flag.String("password", "password", "password for the demo users")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.Logging, os.Stdout)

	inserted, commented, err := seed(context.Background(), cfg, *count, *password, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Int("notes", inserted).Int("comments", commented).Msg("seeding complete")
}

// seed creates the demo users if needed, then count notes with a few rated
// comments each. It returns how many notes and comments were written.
func seed(ctx context.Context, cfg *config.Config, count int, password string, log zerolog.Logger) (int, int, error) {
	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return 0, 0, fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	// Seeding must never clobber real uploads.
	blobs, err := blob.New(cfg.Uploads.Dir, blob.Rename)
	if err != nil {
		return 0, 0, fmt.Errorf("opening upload directory: %w", err)
	}

	creds := auth.NewCredentials(store)
	repo := notes.NewRepository(store, blobs, log)
	ledger := comments.NewLedger(store, log)

	var userIDs []int64
	for _, name := range demoUsers {
		id, err := creds.Register(ctx, name, password)
		if errors.Is(err, auth.ErrDuplicateUsername) {
			u, verr := creds.Verify(ctx, name, password)
			if verr != nil {
				return 0, 0, fmt.Errorf("demo user %s exists with a different password: %w", name, verr)
			}
			id = u.ID
		} else if err != nil {
			return 0, 0, fmt.Errorf("creating demo user %s: %w", name, err)
		}
		userIDs = append(userIDs, id)
	}
	log.Info().Ints64("user_ids", userIDs).Msg("demo users ready")

	inserted, commented := 0, 0
	for i := 0; i < count; i++ {
		owner := userIDs[rand.Intn(len(userIDs))]
		category := categories[rand.Intn(len(categories))]
		in := notes.UploadInput{
			UserID:   owner,
			Filename: fmt.Sprintf("%s-%02d.txt", strings.ToLower(strings.ReplaceAll(category, " ", "-")), i+1),
			Category: category,
			Tags:     pickTags(),
		}
		// Roughly one note in four is shared with a single other user.
		if rand.Intn(4) == 0 {
			in.SharedWith = []int64{userIDs[rand.Intn(len(userIDs))]}
		}

		body := fmt.Sprintf("%s notes, tagged %s\n", category, strings.Join(in.Tags, ", "))
		note, err := repo.Upload(ctx, in, strings.NewReader(body))
		if err != nil {
			log.Error().Err(err).Str("filename", in.Filename).Msg("error inserting note")
			continue
		}
		inserted++

		for j := rand.Intn(3); j > 0; j-- {
			rating := rand.Intn(5) + 1
			author := userIDs[rand.Intn(len(userIDs))]
			text := sampleComments[rand.Intn(len(sampleComments))]
			if _, err := ledger.AddComment(ctx, note.ID, author, text, &rating); err != nil {
				log.Error().Err(err).Int64("note_id", note.ID).Msg("error inserting comment")
				continue
			}
			commented++
		}
	}
	return inserted, commented, nil
}

func pickTags() []string {
	n := rand.Intn(3)
	seen := make(map[string]bool)
	var tags []string
	for len(tags) < n {
		t := tagPool[rand.Intn(len(tagPool))]
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}
