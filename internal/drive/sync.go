package drive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/logging"
)

// Sync mirrors case folders between a Drive intake folder and the local root.
//
// Layout on Drive: <root_path>/ holds new case folders, with <in_progress>
// and <done> as subfolders of it.
type Sync struct {
	client *Client
	paths  config.DrivePaths
	logger *slog.Logger

	rootID       string
	inProgressID string
	doneID       string
}

// NewSync creates a Sync for paths.
func NewSync(client *Client, paths config.DrivePaths, logger *slog.Logger) *Sync {
	return &Sync{
		client: client,
		paths:  paths,
		logger: logging.WithOperation(logger, "drive.sync"),
	}
}

func (s *Sync) resolve(ctx context.Context) error {
	if s.rootID != "" {
		return nil
	}
	rootID, err := s.client.FindFolderByPath(ctx, s.paths.RootPath, "")
	if err != nil {
		return fmt.Errorf("failed to resolve drive root: %w", err)
	}
	inProgressID, err := s.client.FindFolderByPath(ctx, s.paths.InProgress, rootID)
	if err != nil {
		return fmt.Errorf("failed to resolve in-progress folder: %w", err)
	}
	doneID, err := s.client.FindFolderByPath(ctx, s.paths.Done, rootID)
	if err != nil {
		return fmt.Errorf("failed to resolve done folder: %w", err)
	}
	s.rootID, s.inProgressID, s.doneID = rootID, inProgressID, doneID
	return nil
}

// Intake downloads every case folder under the Drive root into localRoot and
// moves it to the in-progress folder. It returns the pulled folders by name.
// A folder already present locally is not downloaded again.
func (s *Sync) Intake(ctx context.Context, localRoot string) (map[string]string, error) {
	if err := s.resolve(ctx); err != nil {
		return nil, err
	}

	folders, err := s.client.ListSubfolders(ctx, s.rootID)
	if err != nil {
		return nil, err
	}

	pulled := make(map[string]string)
	for _, f := range folders {
		if f.ID == s.inProgressID || f.ID == s.doneID {
			continue
		}
		dest := filepath.Join(localRoot, filepath.Base(f.Name))

		if _, err := os.Stat(dest); err == nil {
			s.logger.Warn("case folder already present locally, skipping download", logging.Folder(f.Name))
		} else if err := s.client.DownloadFolder(ctx, f.ID, dest); err != nil {
			return pulled, fmt.Errorf("failed to download %q: %w", f.Name, err)
		}

		if err := s.client.MoveToFolder(ctx, f.ID, s.inProgressID); err != nil {
			return pulled, fmt.Errorf("failed to move %q to in-progress: %w", f.Name, err)
		}
		pulled[f.Name] = f.ID
		s.logger.Info("case folder pulled from drive", logging.Folder(f.Name))
	}

	return pulled, nil
}

// Complete files every pulled folder: dispatched ones under done, the rest
// back under the intake root so the next run picks them up again.
func (s *Sync) Complete(ctx context.Context, pulled map[string]string, dispatched map[string]bool) error {
	if len(pulled) == 0 {
		return nil
	}
	if err := s.resolve(ctx); err != nil {
		return err
	}

	var errs []error
	for name, id := range pulled {
		target := s.rootID
		if dispatched[name] {
			target = s.doneID
		}
		if err := s.client.MoveToFolder(ctx, id, target); err != nil {
			s.logger.Error("failed to file drive folder", logging.Folder(name), logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
