package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"macrolog"
	"macrolog/oauth"
	"macrolog/parser"
)

// CurrentVersion is the settings document format written by this package.
const CurrentVersion = 2

// ProviderKey is one configured AI provider and its API key.
type ProviderKey struct {
	Provider parser.Provider `json:"provider"`
	APIKey   string          `json:"apiKey"`
}

// MacroTargets are the daily goals shown beside the summary.
type MacroTargets struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// Data is the user configuration held by a Store.
type Data struct {
	Version            int             `json:"version"`
	AIProviders        []ProviderKey   `json:"aiProviders"`
	ActiveProvider     parser.Provider `json:"activeProvider"`
	GoogleClientID     string          `json:"googleClientId"`
	GoogleClientSecret string          `json:"googleClientSecret,omitempty"`
	GoogleAccessToken  string          `json:"googleAccessToken,omitempty"`
	GoogleRefreshToken string          `json:"googleRefreshToken,omitempty"`
	GoogleTokenExpiry  time.Time       `json:"googleTokenExpiry,omitzero"`
	SpreadsheetID      string          `json:"spreadsheetId"`
	MacroTargets       *MacroTargets   `json:"macroTargets,omitempty"`
}

func (d Data) clone() Data {
	d.AIProviders = slices.Clone(d.AIProviders)
	if d.MacroTargets != nil {
		t := *d.MacroTargets
		d.MacroTargets = &t
	}
	return d
}

// document is the persisted form. Version 1 documents carried a single Claude key.
type document struct {
	Data
	ClaudeAPIKey string `json:"claudeApiKey,omitempty"`
}

type Options struct {
	Backend Backend
	// KeyringService moves every secret into the OS keychain under this service name.
	// Secrets stay in the document when it is empty.
	KeyringService string
	Now            func() time.Time
}

// Store owns the session configuration and the Google token pair. All methods are safe
// for concurrent use; every mutation is persisted before it becomes visible.
type Store struct {
	mu      sync.Mutex
	data    Data
	backend Backend
	secrets *keyringSecrets
	now     func() time.Time
}

// Open loads settings from the backend, migrating older documents. A backend with no
// document yields empty settings.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, errors.New("settings backend is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{backend: opts.Backend, now: opts.Now}
	if opts.KeyringService != "" {
		s.secrets = &keyringSecrets{service: opts.KeyringService}
	}

	raw, err := opts.Backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		s.data = Data{Version: CurrentVersion}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	migrated := migrate(&doc)
	s.data = doc.Data

	if s.secrets != nil {
		if err := s.loadSecrets(&s.data); err != nil {
			return nil, err
		}
	}
	if migrated {
		slog.Info("SETTINGS: migrated settings document", "version", CurrentVersion)
		if err := s.persist(ctx, s.data); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// migrate upgrades doc in place and reports whether anything changed.
func migrate(doc *document) bool {
	if doc.Version >= CurrentVersion {
		return false
	}
	if doc.ClaudeAPIKey != "" && doc.AIProviders == nil {
		doc.AIProviders = []ProviderKey{{Provider: parser.Claude, APIKey: doc.ClaudeAPIKey}}
		doc.ActiveProvider = parser.Claude
	}
	if doc.AIProviders == nil {
		doc.AIProviders = []ProviderKey{}
	}
	doc.ClaudeAPIKey = ""
	doc.Version = CurrentVersion
	return true
}

func (s *Store) loadSecrets(d *Data) error {
	fill := func(dst *string, name string) error {
		if *dst != "" {
			return nil
		}
		v, err := s.secrets.get(name)
		*dst = v
		return err
	}
	if err := fill(&d.GoogleClientSecret, secretClientSecret); err != nil {
		return err
	}
	if err := fill(&d.GoogleAccessToken, secretAccessToken); err != nil {
		return err
	}
	if err := fill(&d.GoogleRefreshToken, secretRefreshToken); err != nil {
		return err
	}
	for i := range d.AIProviders {
		if err := fill(&d.AIProviders[i].APIKey, secretProviderKey+string(d.AIProviders[i].Provider)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) persist(ctx context.Context, d Data) error {
	doc := d.clone()
	if s.secrets != nil {
		writes := map[string]string{
			secretClientSecret: doc.GoogleClientSecret,
			secretAccessToken:  doc.GoogleAccessToken,
			secretRefreshToken: doc.GoogleRefreshToken,
		}
		doc.GoogleClientSecret, doc.GoogleAccessToken, doc.GoogleRefreshToken = "", "", ""
		for i := range doc.AIProviders {
			writes[secretProviderKey+string(doc.AIProviders[i].Provider)] = doc.AIProviders[i].APIKey
			doc.AIProviders[i].APIKey = ""
		}
		// Keys of removed providers are deleted from the keychain.
		for _, k := range s.data.AIProviders {
			if _, ok := writes[secretProviderKey+string(k.Provider)]; !ok {
				writes[secretProviderKey+string(k.Provider)] = ""
			}
		}
		for name, value := range writes {
			if err := s.secrets.set(name, value); err != nil {
				return err
			}
		}
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// update applies fn to a copy of the settings and commits it once persisted.
func (s *Store) update(ctx context.Context, fn func(d *Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *Store) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// AddProvider registers a provider. An already configured provider keeps its existing
// key, and the first provider added becomes active.
func (s *Store) AddProvider(ctx context.Context, provider parser.Provider, apiKey string) error {
	p, err := parser.ParseProvider(string(provider))
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if p.NeedsAPIKey() && apiKey == "" {
		return &macrolog.ValidationError{Field: "apiKey", Message: fmt.Sprintf("%s requires an API key", p)}
	}

	return s.update(ctx, func(d *Data) error {
		if slices.ContainsFunc(d.AIProviders, func(k ProviderKey) bool { return k.Provider == p }) {
			return nil
		}
		d.AIProviders = append(d.AIProviders, ProviderKey{Provider: p, APIKey: apiKey})
		if d.ActiveProvider == "" {
			d.ActiveProvider = p
		}
		return nil
	})
}

// RemoveProvider drops a provider, handing the active slot to the first remaining one.
func (s *Store) RemoveProvider(ctx context.Context, provider parser.Provider) error {
	return s.update(ctx, func(d *Data) error {
		d.AIProviders = slices.DeleteFunc(d.AIProviders, func(k ProviderKey) bool { return k.Provider == provider })
		if d.ActiveProvider == provider {
			d.ActiveProvider = ""
			if len(d.AIProviders) > 0 {
				d.ActiveProvider = d.AIProviders[0].Provider
			}
		}
		return nil
	})
}

func (s *Store) SetActiveProvider(ctx context.Context, provider parser.Provider) error {
	return s.update(ctx, func(d *Data) error {
		if !slices.ContainsFunc(d.AIProviders, func(k ProviderKey) bool { return k.Provider == provider }) {
			return &macrolog.ValidationError{Field: "provider", Message: fmt.Sprintf("%q is not configured", provider)}
		}
		d.ActiveProvider = provider
		return nil
	})
}

func (s *Store) SetGoogleCredentials(ctx context.Context, clientID, clientSecret string) error {
	return s.update(ctx, func(d *Data) error {
		d.GoogleClientID = strings.TrimSpace(clientID)
		d.GoogleClientSecret = strings.TrimSpace(clientSecret)
		return nil
	})
}

func (s *Store) SetSpreadsheetID(ctx context.Context, id string) error {
	return s.update(ctx, func(d *Data) error {
		d.SpreadsheetID = strings.TrimSpace(id)
		return nil
	})
}

func (s *Store) SetMacroTargets(ctx context.Context, targets *MacroTargets) error {
	return s.update(ctx, func(d *Data) error {
		if targets != nil {
			t := *targets
			d.MacroTargets = &t
		} else {
			d.MacroTargets = nil
		}
		return nil
	})
}

// SetTokens stores a freshly issued token pair expiring expiresIn seconds from now.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn int) error {
	return s.update(ctx, func(d *Data) error {
		d.GoogleAccessToken = accessToken
		d.GoogleRefreshToken = refreshToken
		d.GoogleTokenExpiry = s.now().Add(time.Duration(expiresIn) * time.Second)
		return nil
	})
}

// UpdateAccessToken replaces the access token after a refresh. The refresh token is kept.
func (s *Store) UpdateAccessToken(ctx context.Context, accessToken string, expiresIn int) error {
	return s.update(ctx, func(d *Data) error {
		d.GoogleAccessToken = accessToken
		d.GoogleTokenExpiry = s.now().Add(time.Duration(expiresIn) * time.Second)
		return nil
	})
}

func (s *Store) ClearTokens(ctx context.Context) error {
	return s.update(ctx, func(d *Data) error {
		d.GoogleAccessToken = ""
		d.GoogleRefreshToken = ""
		d.GoogleTokenExpiry = time.Time{}
		return nil
	})
}

func (s *Store) Tokens() oauth.TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return oauth.TokenState{
		AccessToken:  s.data.GoogleAccessToken,
		RefreshToken: s.data.GoogleRefreshToken,
		Expiry:       s.data.GoogleTokenExpiry,
	}
}

func (s *Store) SpreadsheetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SpreadsheetID
}

func (s *Store) GoogleCredentials() (clientID, clientSecret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GoogleClientID, s.data.GoogleClientSecret
}

// ActiveProvider returns the active provider and its key. The provider is empty when none
// is configured.
func (s *Store) ActiveProvider() (parser.Provider, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.data.AIProviders {
		if k.Provider == s.data.ActiveProvider {
			return k.Provider, k.APIKey
		}
	}
	return "", ""
}

func (s *Store) MacroTargets() *MacroTargets {
	return s.Snapshot().MacroTargets
}

// IsConfigured reports whether a provider, Google client credentials and a spreadsheet
// are all set.
func (s *Store) IsConfigured() bool {
	d := s.Snapshot()
	return len(d.AIProviders) > 0 &&
		d.ActiveProvider != "" &&
		d.GoogleClientID != "" &&
		d.GoogleClientSecret != "" &&
		d.SpreadsheetID != ""
}

// IsGoogleConnected reports whether the access token is still usable.
func (s *Store) IsGoogleConnected() bool {
	return s.Tokens().Usable(s.now())
}
