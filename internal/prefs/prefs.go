package prefs

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/UkralStul/crewfeed-service/internal/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	ViewModeList = "list"
	ViewModeGrid = "grid"

	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

type Preferences struct {
	ViewMode string `json:"view_mode" mapstructure:"view_mode" validate:"oneof=list grid"`
	Theme    string `json:"theme" mapstructure:"theme" validate:"oneof=system light dark"`
}

func Defaults() Preferences {
	return Preferences{ViewMode: ViewModeList, Theme: ThemeSystem}
}

// Patch changes only the fields that are set.
type Patch struct {
	ViewMode *string `json:"view_mode"`
	Theme    *string `json:"theme"`
}

// Store keeps one settings file per user under dir. Values are loaded on
// first use and written back on every change.
type Store struct {
	dir      string
	validate *validator.Validate

	mu     sync.Mutex
	loaded map[string]Preferences
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, validate: validator.New(), loaded: make(map[string]Preferences)}, nil
}

func (s *Store) path(userID string) (string, error) {
	name := url.PathEscape(userID)
	if name == "" || name == "." || name == ".." {
		return "", apperr.InvalidInput("invalid user id", nil)
	}
	return filepath.Join(s.dir, name+".toml"), nil
}

func (s *Store) Get(userID string) (Preferences, error) {
	if userID == "" {
		return Preferences{}, apperr.ErrUnauthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userID)
}

func (s *Store) load(userID string) (Preferences, error) {
	if p, ok := s.loaded[userID]; ok {
		return p, nil
	}
	file, err := s.path(userID)
	if err != nil {
		return Preferences{}, err
	}

	v := viper.New()
	v.SetConfigFile(file)
	v.SetConfigType("toml")
	v.SetDefault("view_mode", ViewModeList)
	v.SetDefault("theme", ThemeSystem)
	if _, err := os.Stat(file); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Preferences{}, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Preferences{}, err
	}

	var p Preferences
	if err := v.Unmarshal(&p); err != nil {
		return Preferences{}, err
	}
	// Unknown values from an edited file fall back to the defaults.
	if s.validate.Struct(p) != nil {
		p = Defaults()
	}
	s.loaded[userID] = p
	return p, nil
}

// Update applies patch and persists the result when anything changed.
func (s *Store) Update(userID string, patch Patch) (Preferences, error) {
	if userID == "" {
		return Preferences{}, apperr.ErrUnauthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(userID)
	if err != nil {
		return Preferences{}, err
	}
	next := current
	if patch.ViewMode != nil {
		next.ViewMode = *patch.ViewMode
	}
	if patch.Theme != nil {
		next.Theme = *patch.Theme
	}
	if err := s.validate.Struct(next); err != nil {
		return current, apperr.InvalidInput("invalid preferences", err)
	}
	if next == current {
		return current, nil
	}

	file, err := s.path(userID)
	if err != nil {
		return current, err
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.Set("view_mode", next.ViewMode)
	v.Set("theme", next.Theme)
	if err := v.WriteConfigAs(file); err != nil {
		return current, err
	}
	s.loaded[userID] = next
	return next, nil
}
