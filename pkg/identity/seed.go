package identity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kredensia/kredensia/pkg/errs"
	"github.com/kredensia/kredensia/pkg/policy"
)

type seedFile struct {
	Users []struct {
		Username string `yaml:"username"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
		FullName string `yaml:"full_name"`
		Role     string `yaml:"role"`
		Unit     string `yaml:"unit"`
	} `yaml:"users"`
}

// SeedFromFile creates any bootstrap users listed in the YAML file that do
// not exist yet. Existing usernames are skipped, so seeding is idempotent
// across restarts. Returns the number of users created.
func (s *Service) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	created := 0
	for _, entry := range sf.Users {
		if entry.Username == "" || entry.Password == "" {
			continue
		}

		_, err := s.FindByUsername(ctx, entry.Username)
		if err == nil {
			continue
		}
		var notFound *errs.NotFoundError
		if !errors.As(err, &notFound) {
			return created, fmt.Errorf("look up seed user %s: %w", entry.Username, err)
		}

		_, err = s.Create(ctx, NewUser{
			Username: entry.Username,
			Email:    entry.Email,
			Password: entry.Password,
			FullName: entry.FullName,
			Role:     policy.Role(entry.Role),
			Unit:     entry.Unit,
		})
		if err != nil {
			return created, fmt.Errorf("create seed user %s: %w", entry.Username, err)
		}
		created++
	}
	return created, nil
}
