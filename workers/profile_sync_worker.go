package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"game-battle-service/logging"
	"game-battle-service/models"
	"game-battle-service/services"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteDeviceProfile is one entry of the sync service's device feed.
type RemoteDeviceProfile struct {
	DeviceID    string    `json:"device_id"`
	GameSlug    string    `json:"game_slug"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type deviceChangesResponse struct {
	Devices []RemoteDeviceProfile `json:"devices"`
}

// CacheInvalidator drops cached identities after their profile changed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, deviceIDs ...string)
}

// ProfileSyncWorker mirrors device display data from the sync service into device_profiles.
type ProfileSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	cache        CacheInvalidator
	httpClient   *http.Client
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, endpointPath, serviceToken string, interval time.Duration, cache CacheInvalidator) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		cache:        cache,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Start runs the sync loop until ctx is cancelled.
func (w *ProfileSyncWorker) Start(ctx context.Context) {
	logging.L().Info("profile_sync_started", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		logging.L().Warn("profile_sync_initial_failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				logging.L().Error("profile_sync_failed", zap.Error(err))
			}
		case <-ctx.Done():
			logging.L().Info("profile_sync_stopped")
			return
		}
	}
}

// lastSyncTime is the newest mirrored updated_at, or the epoch when nothing is mirrored.
func (w *ProfileSyncWorker) lastSyncTime(ctx context.Context) time.Time {
	var latest models.DeviceProfile
	err := w.db.WithContext(ctx).Order("updated_at DESC").Limit(1).Find(&latest).Error
	if err != nil || latest.UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return latest.UpdatedAt
}

// SyncOnce fetches changes since the last mirrored update and upserts them.
// It returns how many profiles were written.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	since := w.lastSyncTime(ctx).UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var out deviceChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	if len(out.Devices) == 0 {
		logging.L().Debug("profile_sync_noop", zap.String("since", since))
		return 0, nil
	}

	var upserted int
	var changed []string
	var errs []error
	for _, remote := range out.Devices {
		if remote.DeviceID == "" {
			continue
		}
		local := models.DeviceProfile{
			DeviceID:    remote.DeviceID,
			GameSlug:    remote.GameSlug,
			DisplayName: services.NormalizeName(remote.DisplayName),
			AvatarURL:   remote.AvatarURL,
			CreatedAt:   remote.CreatedAt,
			UpdatedAt:   remote.UpdatedAt,
		}
		err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"game_slug", "display_name", "avatar_url", "updated_at"}),
		}).Create(&local).Error
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", remote.DeviceID, err))
			continue
		}
		upserted++
		changed = append(changed, remote.DeviceID)
	}

	if w.cache != nil && len(changed) > 0 {
		w.cache.Invalidate(ctx, changed...)
	}
	logging.L().Info("profile_sync_batch",
		zap.Int("received", len(out.Devices)), zap.Int("upserted", upserted), zap.Int("errors", len(errs)))
	return upserted, errors.Join(errs...)
}
