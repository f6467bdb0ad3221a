// Package importer loads a YAML seed of levels, users and records into the
// engine. Levels are appended to the end of their list in file order.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/logger"
)

// SeedApprover is the approver name stored on imported records.
const SeedApprover = "seed"

// Seed is the document format read by Parse.
type Seed struct {
	Levels  SeedLevels   `yaml:"levels"`
	Users   []string     `yaml:"users"`
	Records []SeedRecord `yaml:"records"`
}

// SeedLevels holds the two lists in rank order.
type SeedLevels struct {
	Main   []models.LevelDetails `yaml:"main"`
	Legacy []models.LevelDetails `yaml:"legacy"`
}

// SeedRecord is an approved record referencing a user and level by name.
type SeedRecord struct {
	User     string `yaml:"user"`
	Level    string `yaml:"level"`
	Progress int    `yaml:"progress"`
	Video    string `yaml:"video"`
}

// Summary counts what an import created.
type Summary struct {
	Levels  int
	Skipped int
	Users   int
	Records int
}

// Engine is the engine surface the importer uses.
type Engine interface {
	AddLevel(ctx context.Context, list models.ListType, rank int, details models.LevelDetails) (uint, error)
	GetOrderedList(ctx context.Context, list models.ListType) ([]models.Level, error)
	RegisterUser(ctx context.Context, username string) (*models.User, error)
	SubmitRecord(ctx context.Context, userID, levelID uint, progress int, videoRef string) (uint, error)
	ApproveRecord(ctx context.Context, id uint, approver string) error
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return &seed, nil
}

// Load reads and parses a seed file.
func Load(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Importer applies seeds through the engine.
type Importer struct {
	engine Engine
	log    *logger.Logger
}

// New creates an importer.
func New(e Engine, log *logger.Logger) *Importer {
	return &Importer{engine: e, log: log.Component("importer")}
}

// Apply imports the seed. A level whose name already exists on its list is
// skipped, so re-running a seed only appends what is new. Record user and
// level names are matched case-insensitively.
func (i *Importer) Apply(ctx context.Context, seed *Seed) (Summary, error) {
	var summary Summary
	levelIDs := make(map[string]uint)

	lists := []struct {
		list   models.ListType
		levels []models.LevelDetails
	}{
		{models.ListMain, seed.Levels.Main},
		{models.ListLegacy, seed.Levels.Legacy},
	}

	for _, l := range lists {
		existing, err := i.engine.GetOrderedList(ctx, l.list)
		if err != nil {
			return summary, err
		}
		for _, level := range existing {
			levelIDs[key(level.Name)] = level.ID
		}
		rank := len(existing)

		for _, details := range l.levels {
			if _, ok := levelIDs[key(details.Name)]; ok {
				summary.Skipped++
				continue
			}
			rank++
			id, err := i.engine.AddLevel(ctx, l.list, rank, details)
			if err != nil {
				return summary, fmt.Errorf("level %q: %w", details.Name, err)
			}
			levelIDs[key(details.Name)] = id
			summary.Levels++
		}
	}

	userIDs := make(map[string]uint)
	register := func(name string) (uint, error) {
		if id, ok := userIDs[key(name)]; ok {
			return id, nil
		}
		user, err := i.engine.RegisterUser(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("user %q: %w", name, err)
		}
		userIDs[key(name)] = user.ID
		summary.Users++
		return user.ID, nil
	}

	for _, name := range seed.Users {
		if _, err := register(name); err != nil {
			return summary, err
		}
	}

	for _, rec := range seed.Records {
		levelID, ok := levelIDs[key(rec.Level)]
		if !ok {
			return summary, fmt.Errorf("record of %q references unknown level %q", rec.User, rec.Level)
		}
		userID, err := register(rec.User)
		if err != nil {
			return summary, err
		}

		progress := rec.Progress
		if progress == 0 {
			progress = 100
		}
		recordID, err := i.engine.SubmitRecord(ctx, userID, levelID, progress, rec.Video)
		if err != nil {
			return summary, fmt.Errorf("record of %q on %q: %w", rec.User, rec.Level, err)
		}
		if err := i.engine.ApproveRecord(ctx, recordID, SeedApprover); err != nil {
			return summary, fmt.Errorf("record of %q on %q: %w", rec.User, rec.Level, err)
		}
		summary.Records++
	}

	i.log.Info().
		Int("levels", summary.Levels).
		Int("skipped", summary.Skipped).
		Int("users", summary.Users).
		Int("records", summary.Records).
		Msg("Seed imported")

	return summary, nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
