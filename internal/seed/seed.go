// Package seed loads reference data (areas, controllers, registry meters) from
// a YAML fixture file. Loading is idempotent: every row is upserted.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/meterdesk/core/bootstrap"
	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
	"github.com/m3rciful/meterdesk/internal/storage/sqlstore"
)

// Fixtures is the fixture file layout.
type Fixtures struct {
	Areas       []Area       `yaml:"areas"`
	Controllers []Controller `yaml:"controllers"`
	Meters      []Meter      `yaml:"meters"`
}

// Area is a controller's district with the accounts it serves.
type Area struct {
	Code     string        `yaml:"code"`
	Name     string        `yaml:"name"`
	Accounts []AreaAccount `yaml:"accounts"`
}

// AreaAccount is one address inside an area.
type AreaAccount struct {
	Account   string `yaml:"account"`
	Street    string `yaml:"street"`
	Building  string `yaml:"building"`
	Apartment string `yaml:"apartment"`
}

// Controller is a field-worker login. Either a bcrypt hash or a plain
// password (hashed on load) must be given.
type Controller struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Area         string `yaml:"area"`
	Active       *bool  `yaml:"active"`
}

// Meter is a billing registry entry.
type Meter struct {
	Account string `yaml:"account"`
	Serial  string `yaml:"serial"`
	Address string `yaml:"address"`
}

// Load reads and validates the fixture file at path.
func Load(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixtures.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixtures) validate() error {
	areas := make(map[string]struct{}, len(f.Areas))
	for i, a := range f.Areas {
		if strings.TrimSpace(a.Code) == "" {
			return fmt.Errorf("fixtures: areas[%d].code is required", i)
		}
		if _, dup := areas[a.Code]; dup {
			return fmt.Errorf("fixtures: duplicate area %q", a.Code)
		}
		areas[a.Code] = struct{}{}
		for j, acc := range a.Accounts {
			if strings.TrimSpace(acc.Account) == "" {
				return fmt.Errorf("fixtures: areas[%d].accounts[%d].account is required", i, j)
			}
		}
	}
	for i, c := range f.Controllers {
		if strings.TrimSpace(c.Username) == "" {
			return fmt.Errorf("fixtures: controllers[%d].username is required", i)
		}
		if c.Password == "" && c.PasswordHash == "" {
			return fmt.Errorf("fixtures: controller %q needs password or password_hash", c.Username)
		}
		if _, ok := areas[c.Area]; !ok {
			return fmt.Errorf("fixtures: controller %q references unknown area %q", c.Username, c.Area)
		}
	}
	for i, m := range f.Meters {
		if strings.TrimSpace(m.Account) == "" {
			return fmt.Errorf("fixtures: meters[%d].account is required", i)
		}
	}
	return nil
}

// Seeder returns a bootstrap step that upserts the fixtures.
func (f *Fixtures) Seeder(clock func() time.Time) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		return f.Apply(ctx, sqlstore.New(db), clock())
	})
}

// Apply upserts every fixture row into store.
func (f *Fixtures) Apply(ctx context.Context, store *sqlstore.Store, now time.Time) error {
	start := time.Now()
	areaIDs := make(map[string]int64, len(f.Areas))
	accounts := 0
	for _, a := range f.Areas {
		id, err := store.UpsertArea(ctx, a.Code, a.Name)
		if err != nil {
			return err
		}
		areaIDs[a.Code] = id
		for _, acc := range a.Accounts {
			if err := store.UpsertAreaAccount(ctx, id, strings.TrimSpace(acc.Account), acc.Street, acc.Building, acc.Apartment); err != nil {
				return err
			}
			accounts++
		}
	}
	for _, c := range f.Controllers {
		hash := c.PasswordHash
		if hash == "" {
			var err error
			if hash, err = fieldauth.HashPassword(c.Password); err != nil {
				return fmt.Errorf("controller %s: %w", c.Username, err)
			}
		}
		active := c.Active == nil || *c.Active
		if _, err := store.UpsertController(ctx, strings.TrimSpace(c.Username), hash, areaIDs[c.Area], active, now); err != nil {
			return err
		}
	}
	for _, m := range f.Meters {
		if err := store.UpsertMeter(ctx, strings.TrimSpace(m.Account), m.Serial, m.Address); err != nil {
			return err
		}
	}

	logger.SEED.Info("fixtures applied",
		slog.String("event", "seed"),
		slog.Int("areas", len(f.Areas)),
		slog.Int("area_accounts", accounts),
		slog.Int("controllers", len(f.Controllers)),
		slog.Int("meters", len(f.Meters)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}
