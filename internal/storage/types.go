package storage

import (
	"context"
	"errors"
	"time"

	"notifai/internal/classifier/priority"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDefaultFolder = errors.New("default folders cannot be changed or deleted")
	ErrFolderExists  = errors.New("a folder with that name already exists")
	ErrInvalidFolder = errors.New("folder name is required")
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means 1s
}

// Notification is one classified notification.
type Notification struct {
	ID        string
	Package   string
	AppName   string
	Title     string
	Body      string
	ArrivedAt time.Time
	Folder    string
	Priority  priority.Tier
	Read      bool
	// ProcessingTime is the wall time of the inference call.
	ProcessingTime time.Duration
	Delivered      bool
}

type Folder struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	IsDefault   bool   `db:"is_default"`
	SortOrder   int    `db:"sort_order"`
}

type MonitoredApp struct {
	Package string `db:"package"`
	AppName string `db:"app_name"`
	Enabled bool   `db:"enabled"`
}

// ListFilter narrows ListNotifications. Zero values mean no restriction.
type ListFilter struct {
	Folder     string
	UnreadOnly bool
	Limit      int
}

// Repository is the persistence surface the classification pipeline,
// dispatcher and taxonomy service depend on.
type Repository interface {
	Insert(ctx context.Context, n Notification) error
	MarkRead(ctx context.Context, id string) error
	MarkDelivered(ctx context.Context, ids ...string) error
	FetchUndeliveredMedium(ctx context.Context) ([]Notification, error)
	FetchUndeliveredHigh(ctx context.Context) ([]Notification, error)
	RenameFolderReferences(ctx context.Context, oldName, newName string) (int64, error)
	AllFolders(ctx context.Context) ([]Folder, error)
	MonitoredStatus(ctx context.Context, pkg string) (bool, error)
}

var _ Repository = (*Store)(nil)
