package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
	"github.com/BTreeMap/PromptPanel/internal/statemachine"
	"github.com/BTreeMap/PromptPanel/internal/util"
)

// LegacyCacheFile holds the last state machines read from the legacy endpoint.
const LegacyCacheFile = "state_machines_cache.json"

const legacyPath = "/state-machine/configurations"

// LegacyCachePath returns the cache file location.
func (c *Client) LegacyCachePath() string {
	return filepath.Join(c.cacheDir, LegacyCacheFile)
}

// LegacyStateMachines lists configurations through the legacy endpoint. When the call
// fails for any reason other than an expired session, it falls back to the local cache
// and reports fromCache. A successful remote read refreshes the cache. The cache is
// never reconciled with the server, so it can be stale.
func (c *Client) LegacyStateMachines(ctx context.Context) (configs []models.StateMachineConfig, fromCache bool, err error) {
	remote, err := getList[models.StateMachineConfig](ctx, c, legacyPath)
	if err == nil {
		if cacheErr := c.writeLegacyCache(remote); cacheErr != nil {
			slog.Warn("Client.LegacyStateMachines: failed to refresh cache", "error", cacheErr)
		}
		return remote, false, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil, false, err
	}

	slog.Warn("Client.LegacyStateMachines: remote read failed, using local cache", "error", err)
	cached, cacheErr := c.readLegacyCache()
	if cacheErr != nil {
		return nil, false, fmt.Errorf("%w (cache unavailable: %v)", err, cacheErr)
	}
	return cached, true, nil
}

// LegacyStateMachine fetches one configuration through the legacy endpoint, falling back to the cache.
func (c *Client) LegacyStateMachine(ctx context.Context, id string) (*models.StateMachineConfig, bool, error) {
	var out models.StateMachineConfig
	err := c.do(ctx, http.MethodGet, legacyPath+"/"+esc(id), nil, &out)
	if err == nil {
		return &out, false, nil
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	cached, cacheErr := c.readLegacyCache()
	if cacheErr != nil {
		return nil, false, err
	}
	for i := range cached {
		if cached[i].ID == id {
			slog.Warn("Client.LegacyStateMachine: served from local cache", "id", id, "error", err)
			return &cached[i], true, nil
		}
	}
	return nil, false, err
}

// LegacySaveStateMachine creates (empty ID) or replaces a configuration through the
// legacy endpoint. The editor's Validate runs first. When the call fails for any reason
// other than an expired session, the configuration is written to the local cache only
// and fromCache is reported; the server never learns about it.
func (c *Client) LegacySaveStateMachine(ctx context.Context, cfg models.StateMachineConfig) (saved *models.StateMachineConfig, fromCache bool, err error) {
	draft := cfg.Clone()
	statemachine.Normalize(draft)
	if err := statemachine.Validate(draft); err != nil {
		return nil, false, err
	}
	method, path := http.MethodPost, legacyPath
	if draft.ID != "" {
		method, path = http.MethodPut, legacyPath+"/"+esc(draft.ID)
	}

	var out models.StateMachineConfig
	err = c.do(ctx, method, path, draft, &out)
	if err == nil {
		if cacheErr := c.updateLegacyCache(func(list []models.StateMachineConfig) []models.StateMachineConfig {
			return upsertConfig(list, out)
		}); cacheErr != nil {
			slog.Warn("Client.LegacySaveStateMachine: failed to refresh cache", "error", cacheErr)
		}
		return &out, false, nil
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil, false, err
	}

	now := time.Now().UTC()
	if draft.ID == "" {
		draft.ID = util.NewID(util.StateMachineIDPrefix)
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now
	if cacheErr := c.updateLegacyCache(func(list []models.StateMachineConfig) []models.StateMachineConfig {
		return upsertConfig(list, *draft)
	}); cacheErr != nil {
		return nil, false, fmt.Errorf("%w (cache unavailable: %v)", err, cacheErr)
	}
	slog.Warn("Client.LegacySaveStateMachine: remote save failed, saved to local cache", "id", draft.ID, "error", err)
	return draft, true, nil
}

// LegacyDeleteStateMachine deletes a configuration through the legacy endpoint. When
// the call fails for any reason other than an expired session or the server refusing
// because the configuration is in use, it is removed from the local cache only.
func (c *Client) LegacyDeleteStateMachine(ctx context.Context, id string) (fromCache bool, err error) {
	err = c.do(ctx, http.MethodDelete, legacyPath+"/"+esc(id), nil, nil)
	if err == nil {
		if cacheErr := c.updateLegacyCache(func(list []models.StateMachineConfig) []models.StateMachineConfig {
			list, _ = removeConfig(list, id)
			return list
		}); cacheErr != nil {
			slog.Warn("Client.LegacyDeleteStateMachine: failed to refresh cache", "error", cacheErr)
		}
		return false, nil
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict) {
		return false, err
	}

	found := false
	if cacheErr := c.updateLegacyCache(func(list []models.StateMachineConfig) []models.StateMachineConfig {
		list, found = removeConfig(list, id)
		return list
	}); cacheErr != nil {
		return false, fmt.Errorf("%w (cache unavailable: %v)", err, cacheErr)
	}
	if !found {
		return false, err
	}
	slog.Warn("Client.LegacyDeleteStateMachine: remote delete failed, removed from local cache", "id", id, "error", err)
	return true, nil
}

func upsertConfig(list []models.StateMachineConfig, cfg models.StateMachineConfig) []models.StateMachineConfig {
	for i := range list {
		if list[i].ID == cfg.ID {
			list[i] = cfg
			return list
		}
	}
	return append(list, cfg)
}

func removeConfig(list []models.StateMachineConfig, id string) ([]models.StateMachineConfig, bool) {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// updateLegacyCache applies fn to the cached list and writes the result back.
func (c *Client) updateLegacyCache(fn func([]models.StateMachineConfig) []models.StateMachineConfig) error {
	list, err := c.readLegacyCache()
	if err != nil {
		return err
	}
	return c.writeLegacyCache(fn(list))
}

// readLegacyCache returns an empty list when no cache has been written yet.
func (c *Client) readLegacyCache() ([]models.StateMachineConfig, error) {
	data, err := os.ReadFile(c.LegacyCachePath())
	if errors.Is(err, fs.ErrNotExist) {
		return []models.StateMachineConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []models.StateMachineConfig
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("corrupt state machine cache: %w", err)
	}
	if out == nil {
		out = []models.StateMachineConfig{}
	}
	return out, nil
}

func (c *Client) writeLegacyCache(configs []models.StateMachineConfig) error {
	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.cacheDir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.cacheDir, LegacyCacheFile+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, c.LegacyCachePath())
}
