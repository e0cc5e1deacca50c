// internal/storage/bundle.go
package storage

import (
	"fmt"
	"sync"

	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
)

// Bundle is the set of startup resources for one scenario. All three files
// must load; the engine never starts with a partial bundle.
type Bundle struct {
	Scenario *models.Scenario
	Personas models.PersonaRegistry
	World    *models.WorldData
}

// LoadBundle loads scenario.json, personas.json and world.json from the
// scenario directory. The three loads run concurrently and any failure is a
// StartupLoadError carrying the first problem found.
func LoadBundle(fs *FileStore, scenarioDir string) (*Bundle, error) {
	var (
		scenario models.Scenario
		personas []*models.Persona
		world    models.WorldData
	)

	loads := []struct {
		file string
		dest interface{}
	}{
		{"scenario.json", &scenario},
		{"personas.json", &personas},
		{"world.json", &world},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(loads))

	for i, load := range loads {
		wg.Add(1)
		go func(i int, file string, dest interface{}) {
			defer wg.Done()
			if err := fs.LoadJSONFile(scenarioDir, file, dest); err != nil {
				errs[i] = fmt.Errorf("%s: %w", file, err)
			}
		}(i, load.file, load.dest)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, apperrors.NewStartupLoadError("failed to load scenario data", err)
		}
	}

	bundle := &Bundle{
		Scenario: &scenario,
		Personas: models.BuildPersonaRegistry(personas),
		World:    &world,
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	return bundle, nil
}

// Validate checks graph integrity up front, so a dangling scene id fails at
// startup instead of mid-lesson. The original engine only discovered these
// lazily on navigation.
func (b *Bundle) Validate() error {
	if b.Scenario.Start == "" {
		return apperrors.NewStartupLoadError("scenario declares no start scene", nil)
	}
	if _, ok := b.Scenario.Scenes[b.Scenario.Start]; !ok {
		return apperrors.NewStartupLoadError(
			fmt.Sprintf("start scene %q not found in scenario", b.Scenario.Start), nil)
	}

	for id, scene := range b.Scenario.Scenes {
		if len(scene.Options) > 0 && scene.Next != "" {
			return apperrors.NewStartupLoadError(
				fmt.Sprintf("scene %q declares both options and next", id), nil)
		}
		if scene.Next != "" {
			if _, ok := b.Scenario.Scenes[scene.Next]; !ok {
				return apperrors.NewStartupLoadError(
					fmt.Sprintf("scene %q: next scene %q not found", id, scene.Next), nil)
			}
		}
		for _, opt := range scene.Options {
			if _, ok := b.Scenario.Scenes[opt.Target]; !ok {
				return apperrors.NewStartupLoadError(
					fmt.Sprintf("scene %q: option target %q not found", id, opt.Target), nil)
			}
		}
		if scene.PersonaID != "" {
			if _, ok := b.Personas[scene.PersonaID]; !ok {
				return apperrors.NewStartupLoadError(
					fmt.Sprintf("scene %q: persona %q not found", id, scene.PersonaID), nil)
			}
		}
	}

	narrator := b.World.NarratorID()
	if len(b.World.RandomEvents) > 0 {
		if _, ok := b.Personas[narrator]; !ok {
			return apperrors.NewStartupLoadError(
				fmt.Sprintf("world declares random events but narrator persona %q not found", narrator), nil)
		}
	}

	return nil
}
