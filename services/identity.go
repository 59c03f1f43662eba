package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"game-battle-service/logging"
	"game-battle-service/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// Identity is the display data attached to a device in battle and leaderboard output.
type Identity struct {
	DeviceID    string  `json:"deviceId"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

// IdentityResolver looks up display data for devices. Unknown devices resolve to an
// Identity carrying only the id.
type IdentityResolver interface {
	Resolve(ctx context.Context, deviceID string) (Identity, error)
}

// ProfileResolver reads mirrored device_profiles, optionally through a Redis cache.
type ProfileResolver struct {
	DB  *gorm.DB
	rdb *redis.Client
	ttl time.Duration
}

// NewProfileResolver builds a resolver. rdb may be nil to disable caching.
func NewProfileResolver(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *ProfileResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProfileResolver{DB: db, rdb: rdb, ttl: ttl}
}

func identityKey(deviceID string) string { return "identity:" + strings.TrimSpace(deviceID) }

func (r *ProfileResolver) Resolve(ctx context.Context, deviceID string) (Identity, error) {
	if deviceID == "" {
		return Identity{}, nil
	}
	if id, ok := r.cached(ctx, deviceID); ok {
		return id, nil
	}

	var prof models.DeviceProfile
	err := r.DB.WithContext(ctx).Where("device_id = ?", deviceID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{DeviceID: deviceID}, nil
	}
	if err != nil {
		return Identity{}, unavailable("resolve identity", err)
	}
	id := Identity{DeviceID: deviceID, DisplayName: NormalizeName(prof.DisplayName), AvatarURL: prof.AvatarURL}
	r.store(ctx, id)
	return id, nil
}

// Invalidate drops cached identities so the next Resolve rereads the table.
func (r *ProfileResolver) Invalidate(ctx context.Context, deviceIDs ...string) {
	if r.rdb == nil || len(deviceIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		keys = append(keys, identityKey(id))
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		logging.L().Warn("identity_cache_invalidate_failed", zap.Int("count", len(keys)), zap.Error(err))
	}
}

func (r *ProfileResolver) cached(ctx context.Context, deviceID string) (Identity, bool) {
	if r.rdb == nil {
		return Identity{}, false
	}
	raw, err := r.rdb.Get(ctx, identityKey(deviceID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.L().Warn("identity_cache_get_failed", zap.String("device_id", deviceID), zap.Error(err))
		}
		return Identity{}, false
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, false
	}
	return id, true
}

func (r *ProfileResolver) store(ctx context.Context, id Identity) {
	if r.rdb == nil {
		return
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, identityKey(id.DeviceID), raw, r.ttl).Err(); err != nil {
		logging.L().Warn("identity_cache_set_failed", zap.String("device_id", id.DeviceID), zap.Error(err))
	}
}

// NormalizeName trims and NFC-normalizes user-facing names.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// resolveName returns the display name for deviceID, falling back to "" on lookup failure.
func resolveName(ctx context.Context, r IdentityResolver, deviceID string) string {
	if r == nil || deviceID == "" {
		return ""
	}
	id, err := r.Resolve(ctx, deviceID)
	if err != nil {
		logging.L().Warn("identity_resolve_failed", zap.String("device_id", deviceID), zap.Error(err))
		return ""
	}
	return id.DisplayName
}
