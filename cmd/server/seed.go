package main

import (
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/config"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository/memory"
	"github.com/rs/zerolog"
)

// seedDirectory loads the configured users and collaboration targets into
// the memory store. Unknown roles fall back to USER.
func seedDirectory(repos *memory.Repositories, seed config.SeedConfig, logger zerolog.Logger) {
	for _, u := range seed.Users {
		role := models.UserRole(strings.ToUpper(strings.TrimSpace(u.Role)))
		if !models.IsValidRole(role) {
			role = models.RoleUser
		}
		repos.Users.Put(models.User{
			ID:           u.ID,
			Email:        u.Email,
			Name:         u.Name,
			Role:         role,
			DepartmentID: u.DepartmentID,
			IsActive:     true,
		})
	}
	for _, c := range seed.Credentials {
		privacy := models.PrivacyLevel(strings.ToUpper(c.Privacy))
		if privacy == "" {
			privacy = models.PrivacyPrivate
		}
		repos.Targets.PutCredential(c.ID, c.Name, c.OwnerID, privacy)
	}
	for _, p := range seed.Projects {
		repos.Targets.PutProject(p.ID, p.Name, p.OwnerID, p.Archived)
	}
	for _, s := range seed.Subscriptions {
		repos.Targets.PutSubscription(s.ID, s.Name, s.OwnerID)
	}

	logger.Info().
		Int("users", len(seed.Users)).
		Int("credentials", len(seed.Credentials)).
		Int("projects", len(seed.Projects)).
		Int("subscriptions", len(seed.Subscriptions)).
		Msg("Seeded in-memory directory")
}
