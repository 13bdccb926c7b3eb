package checkdef

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch blocks watching dir for definition changes until ctx is done.
// After each change the directory is reloaded and revalidated; onChange
// receives every set that passes, onError every set that does not. A set
// that fails validation never reaches onChange, so the caller keeps
// running on the previous definitions.
func Watch(ctx context.Context, dir string, v *Validator, logger zerolog.Logger,
	onChange func([]CheckWithFile), onError func([]ValidationError)) error {

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Info().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("check definitions changed, reloading")

			withFiles, errs := LoadFromDirectory(dir)
			errs = append(errs, v.ValidateAll(withFiles)...)
			if len(errs) > 0 {
				for _, e := range errs {
					logger.Error().
						Str("file", e.File).
						Str("path", e.Path).
						Msg(e.Message)
				}
				logger.Warn().
					Int("errors", len(errs)).
					Msg("reload rejected, keeping previous definitions")
				if onError != nil {
					onError(errs)
				}
				continue
			}
			onChange(withFiles)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("definition watcher error")
		}
	}
}

func isYAMLFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
