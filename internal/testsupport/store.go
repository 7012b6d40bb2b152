package testsupport

import (
	"context"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewRecipe creates a minimal Twitch recipe for tests.
func NewRecipe(t testing.TB, st *store.Store, ownerID int64, name string) *store.Recipe {
	t.Helper()

	recipe, err := st.CreateRecipe(context.Background(), &store.Recipe{
		OwnerID: ownerID,
		Name:    name,
		Source: store.SourceParams{
			Kind:   store.SourceTwitch,
			Twitch: &store.TwitchSource{Channel: "examplechannel", WindowDays: 7},
		},
	})
	if err != nil {
		t.Fatalf("store.CreateRecipe: %v", err)
	}
	return recipe
}

// NewRun creates a fresh pending run for the recipe.
func NewRun(t testing.TB, st *store.Store, recipe *store.Recipe) *store.Run {
	t.Helper()

	run, err := st.CreateRun(context.Background(), recipe.ID, recipe.OwnerID)
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
