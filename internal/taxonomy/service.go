// Package taxonomy applies user edits to folders, personal instructions and
// monitored apps. Every edit that can change the classifier's system prompt
// invalidates the runtime's cached prompt before returning.
package taxonomy

import (
	"context"

	"notifai/internal/eventbus"
	"notifai/internal/storage"
	logx "notifai/pkg/logx"
)

type Store interface {
	AllFolders(ctx context.Context) ([]storage.Folder, error)
	FolderByName(ctx context.Context, name string) (storage.Folder, error)
	CreateFolder(ctx context.Context, name, description string) (storage.Folder, error)
	UpdateFolder(ctx context.Context, id, name, description string) (storage.Folder, int64, error)
	DeleteFolder(ctx context.Context, id string) (int64, error)
	Instructions(ctx context.Context) (string, error)
	SetInstructions(ctx context.Context, text string) error
	MonitoredApps(ctx context.Context) ([]storage.MonitoredApp, error)
	SetMonitored(ctx context.Context, pkg, appName string, enabled bool) error
}

// Invalidator drops the cached system prompt. *inference.Runtime
// implements it.
type Invalidator interface {
	InvalidateSystemCache()
}

// Change describes a taxonomy edit on the event bus.
type Change struct {
	Kind   string // folder.create, folder.update, folder.delete, instructions
	Folder string
	Moved  int64
}

type Service struct {
	store Store
	inv   Invalidator
	log   logx.Logger
	bus   eventbus.Bus
}

func New(store Store, inv Invalidator, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, inv: inv, log: log.With(logx.String("comp", "taxonomy")), bus: bus}
}

func (s *Service) Folders(ctx context.Context) ([]storage.Folder, error) {
	return s.store.AllFolders(ctx)
}

func (s *Service) CreateFolder(ctx context.Context, name, description string) (storage.Folder, error) {
	f, err := s.store.CreateFolder(ctx, name, description)
	if err != nil {
		return storage.Folder{}, err
	}
	s.changed(Change{Kind: "folder.create", Folder: f.Name})
	return f, nil
}

// UpdateFolder renames and/or redescribes the folder named current.
// Records under the old name move with it.
func (s *Service) UpdateFolder(ctx context.Context, current, name, description string) (storage.Folder, int64, error) {
	f, err := s.store.FolderByName(ctx, current)
	if err != nil {
		return storage.Folder{}, 0, err
	}
	updated, moved, err := s.store.UpdateFolder(ctx, f.ID, name, description)
	if err != nil {
		return storage.Folder{}, 0, err
	}
	s.changed(Change{Kind: "folder.update", Folder: updated.Name, Moved: moved})
	if moved > 0 {
		s.log.Info("folder renamed", logx.String("from", f.Name), logx.String("to", updated.Name), logx.Int64("moved", moved))
	}
	return updated, moved, nil
}

// RenameFolder keeps the description.
func (s *Service) RenameFolder(ctx context.Context, current, name string) (storage.Folder, int64, error) {
	f, err := s.store.FolderByName(ctx, current)
	if err != nil {
		return storage.Folder{}, 0, err
	}
	return s.UpdateFolder(ctx, f.Name, name, f.Description)
}

// DescribeFolder keeps the name.
func (s *Service) DescribeFolder(ctx context.Context, name, description string) (storage.Folder, error) {
	f, err := s.store.FolderByName(ctx, name)
	if err != nil {
		return storage.Folder{}, err
	}
	updated, _, err := s.UpdateFolder(ctx, f.Name, f.Name, description)
	return updated, err
}

// DeleteFolder removes a custom folder and the records filed under it.
func (s *Service) DeleteFolder(ctx context.Context, name string) (int64, error) {
	f, err := s.store.FolderByName(ctx, name)
	if err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteFolder(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	s.changed(Change{Kind: "folder.delete", Folder: f.Name, Moved: removed})
	return removed, nil
}

func (s *Service) Instructions(ctx context.Context) (string, error) {
	return s.store.Instructions(ctx)
}

func (s *Service) SetInstructions(ctx context.Context, text string) error {
	if err := s.store.SetInstructions(ctx, text); err != nil {
		return err
	}
	s.changed(Change{Kind: "instructions"})
	return nil
}

func (s *Service) MonitoredApps(ctx context.Context) ([]storage.MonitoredApp, error) {
	return s.store.MonitoredApps(ctx)
}

// SetMonitored opts pkg in or out. The prompt does not depend on it.
func (s *Service) SetMonitored(ctx context.Context, pkg, appName string, enabled bool) error {
	if err := s.store.SetMonitored(ctx, pkg, appName, enabled); err != nil {
		return err
	}
	s.log.Info("monitored app updated", logx.String("package", pkg), logx.Bool("enabled", enabled))
	return nil
}

func (s *Service) changed(c Change) {
	if s.inv != nil {
		s.inv.InvalidateSystemCache()
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TaxonomyChanged, Data: c})
	}
	s.log.Debug("taxonomy changed", logx.String("kind", c.Kind), logx.String("folder", c.Folder))
}
