package entity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DirectoryFile is the on-disk structure of the static directory.
type DirectoryFile struct {
	Users  []DirectoryUser  `yaml:"users"`
	Groups []DirectoryGroup `yaml:"groups"`
}

// DirectoryUser describes one user in the static directory.
// PasswordSHA256 is the hex SHA-256 of the user's credential.
type DirectoryUser struct {
	ID             string `yaml:"id"`
	Email          string `yaml:"email"`
	PasswordSHA256 string `yaml:"passwordSha256"`
	Admin          bool   `yaml:"admin"`
}

// DirectoryGroup describes one group and its member user ids.
type DirectoryGroup struct {
	ID      string   `yaml:"id"`
	Members []string `yaml:"members"`
}

// StaticDirectory is a Directory backed by a YAML file. The file is reloaded
// when it changes on disk, so deployments can rotate membership without a
// restart.
type StaticDirectory struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	users  map[string]DirectoryUser
	groups map[string][]string
	byUser map[string][]string // user id -> group ids
}

// LoadStaticDirectory reads the directory file at path.
func LoadStaticDirectory(path string, logger *slog.Logger) (*StaticDirectory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &StaticDirectory{path: path, logger: logger}
	if err := d.reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewStaticDirectory builds a directory from an already-parsed file, for
// tests and embedded use.
func NewStaticDirectory(file DirectoryFile, logger *slog.Logger) *StaticDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &StaticDirectory{logger: logger}
	d.index(file)
	return d
}

func (d *StaticDirectory) reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read directory file: %w", err)
	}
	var file DirectoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse directory file: %w", err)
	}
	d.index(file)
	return nil
}

func (d *StaticDirectory) index(file DirectoryFile) {
	users := make(map[string]DirectoryUser, len(file.Users))
	for _, u := range file.Users {
		users[u.ID] = u
	}
	groups := make(map[string][]string, len(file.Groups))
	byUser := make(map[string][]string)
	for _, g := range file.Groups {
		groups[g.ID] = g.Members
		for _, m := range g.Members {
			byUser[m] = append(byUser[m], g.ID)
		}
	}

	d.mu.Lock()
	d.users = users
	d.groups = groups
	d.byUser = byUser
	d.mu.Unlock()
}

// Watch reloads the directory file whenever it changes. It blocks until the
// context is cancelled.
func (d *StaticDirectory) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create directory watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the containing directory: editors and config reloaders replace
	// the file rather than writing it in place.
	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("watch directory file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := d.reload(); err != nil {
				d.logger.Error("directory reload failed", "path", d.path, "error", err)
				continue
			}
			d.logger.Info("directory reloaded", "path", d.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Error("directory watcher error", "error", err)
		}
	}
}

// GroupMembers implements Directory.
func (d *StaticDirectory) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("group %q not found", groupID)
	}
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// UserEmail implements Directory. Unknown users and users without an email
// both return "": the caller treats a missing address as skip-not-error.
func (d *StaticDirectory) UserEmail(ctx context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID].Email, nil
}

// UserGroups implements Directory.
func (d *StaticDirectory) UserGroups(ctx context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	groups := d.byUser[userID]
	out := make([]string, len(groups))
	copy(out, groups)
	return out, nil
}

// IsAdmin reports whether the user carries the admin flag.
func (d *StaticDirectory) IsAdmin(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID].Admin, nil
}

// Authenticate compares the SHA-256 of the presented credential against the
// stored digest in constant time.
func (d *StaticDirectory) Authenticate(ctx context.Context, userID, password string) (bool, error) {
	d.mu.RLock()
	u, ok := d.users[userID]
	d.mu.RUnlock()
	if !ok || u.PasswordSHA256 == "" {
		return false, nil
	}
	sum := sha256.Sum256([]byte(password))
	digest := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(digest), []byte(u.PasswordSHA256)) == 1, nil
}
