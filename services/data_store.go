package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"game-battle-service/logging"
	"game-battle-service/models"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxKeyLength     = 256
	MaxValueBytes    = 1 << 20
	DefaultListLimit = 100
	MaxListLimit     = 1000

	// playerKeyPrefix namespaces player records by owner. Logical keys may not use it.
	playerKeyPrefix = "user_"
)

// Caller is whoever performs a data store operation. A zero DeviceID is anonymous.
type Caller struct {
	DeviceID    string
	DisplayName string
	Admin       bool
}

func (c Caller) authenticated() bool { return c.DeviceID != "" }

// DataStore is a per-game key-value store with global, player and public scopes.
type DataStore struct {
	DB       *gorm.DB
	Identity IdentityResolver
}

func NewDataStore(db *gorm.DB, identity IdentityResolver) *DataStore {
	return &DataStore{DB: db, Identity: identity}
}

// playerStorageKey length-prefixes the owner so "a"+"b_c" and "a_b"+"c" stay distinct.
func playerStorageKey(ownerID, key string) string {
	return playerKeyPrefix + strconv.Itoa(len(ownerID)) + "_" + ownerID + "_" + key
}

// ownedBy reports whether rec is a player record belonging to deviceID.
func ownedBy(rec *models.DataRecord, deviceID string) bool {
	return rec != nil && rec.Scope == models.ScopePlayer && rec.OwnerID != nil && *rec.OwnerID == deviceID
}

// normalizeKey validates a logical key and returns its NFC form.
func normalizeKey(key string) (string, error) {
	if !utf8.ValidString(key) {
		return "", validationError("key must be valid UTF-8")
	}
	key = norm.NFC.String(key)
	n := utf8.RuneCountInString(key)
	if n == 0 || n > MaxKeyLength {
		return "", validationError("key must be 1..%d characters", MaxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return "", validationError("key must not contain control characters")
		}
	}
	if strings.HasPrefix(key, playerKeyPrefix) {
		return "", validationError("keys starting with %q are reserved", playerKeyPrefix)
	}
	return key, nil
}

func parseScope(scope models.DataScope) (models.DataScope, error) {
	if scope == "" {
		return models.ScopeGlobal, nil
	}
	if !scope.Valid() {
		return "", validationError("unknown scope %q", scope)
	}
	return scope, nil
}

// Put creates or replaces the value at key. Writing over a record owned by someone
// else, or stored under a different scope, is Forbidden.
func (s *DataStore) Put(ctx context.Context, gameSlug, key string, value json.RawMessage, scope models.DataScope, caller Caller) (*models.DataRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if scope, err = parseScope(scope); err != nil {
		return nil, err
	}
	if len(value) == 0 || !json.Valid(value) {
		return nil, validationError("value must be valid JSON")
	}
	if len(value) > MaxValueBytes {
		return nil, validationError("value exceeds %d bytes", MaxValueBytes)
	}

	rec := models.DataRecord{
		GameSlug:   gameSlug,
		StorageKey: key,
		Key:        key,
		Scope:      scope,
		Value:      datatypes.JSON(value),
	}
	switch scope {
	case models.ScopeGlobal:
		if !caller.Admin {
			return nil, newError(KindForbidden, "global records are admin-only")
		}
	case models.ScopePlayer, models.ScopePublic:
		if !caller.authenticated() {
			return nil, ErrUnauthorized
		}
		owner := caller.DeviceID
		rec.OwnerID = &owner
		rec.OwnerDisplayName = NormalizeName(caller.DisplayName)
		if rec.OwnerDisplayName == "" {
			rec.OwnerDisplayName = resolveName(ctx, s.Identity, owner)
		}
		if scope == models.ScopePlayer {
			rec.StorageKey = playerStorageKey(owner, key)
		}
	}

	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_slug"}, {Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "owner_display_name", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{clause.Expr{
			SQL: "data_records.scope = excluded.scope AND COALESCE(data_records.owner_id, '') = COALESCE(excluded.owner_id, '')",
		}}},
	}).Create(&rec)
	if res.Error != nil {
		return nil, unavailable("put data", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindForbidden, "key %q belongs to another owner or scope", key)
	}

	var stored models.DataRecord
	if err := s.DB.WithContext(ctx).
		Where("game_slug = ? AND storage_key = ?", gameSlug, rec.StorageKey).
		First(&stored).Error; err != nil {
		return nil, unavailable("reload data", err)
	}
	logging.L().Debug("data_put",
		zap.String("game", gameSlug), zap.String("key", key), zap.String("scope", string(scope)))
	return &stored, nil
}

// Get returns the record visible to caller at key. With an empty scope the caller's own
// player record wins over a shared one. Invisible records are NotFound.
func (s *DataStore) Get(ctx context.Context, gameSlug, key string, scope models.DataScope, caller Caller) (*models.DataRecord, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	if scope != "" && !scope.Valid() {
		return nil, validationError("unknown scope %q", scope)
	}

	if scope == "" || scope == models.ScopePlayer {
		if caller.authenticated() {
			rec, err := s.find(ctx, gameSlug, playerStorageKey(caller.DeviceID, key))
			if err != nil {
				return nil, err
			}
			if ownedBy(rec, caller.DeviceID) {
				return rec, nil
			}
		}
		if scope == models.ScopePlayer {
			return nil, newError(KindNotFound, "key %q not found", key)
		}
	}

	rec, err := s.find(ctx, gameSlug, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || (scope != "" && rec.Scope != scope) {
		return nil, newError(KindNotFound, "key %q not found", key)
	}
	return rec, nil
}

func (s *DataStore) find(ctx context.Context, gameSlug, storageKey string) (*models.DataRecord, error) {
	var rec models.DataRecord
	err := s.DB.WithContext(ctx).Where("game_slug = ? AND storage_key = ?", gameSlug, storageKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get data", err)
	}
	return &rec, nil
}

type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string
	// Scope narrows the result; empty means every scope visible to Caller.
	Scope  models.DataScope
	Caller Caller
}

type ListResult struct {
	Keys       []string            `json:"keys"`
	Records    []models.DataRecord `json:"records"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

func encodeCursor(id uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(id, 10)))
}

func decodeCursor(c string) (uint64, error) {
	if c == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return 0, validationError("invalid cursor")
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, validationError("invalid cursor")
	}
	return id, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List pages through visible records in insertion order. The cursor is keyed on the
// record id, so inserts never shift pages already returned.
func (s *DataStore) List(ctx context.Context, gameSlug string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, validationError("limit must be between 1 and %d", MaxListLimit)
	}
	after, err := decodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	if opts.Scope != "" && !opts.Scope.Valid() {
		return nil, validationError("unknown scope %q", opts.Scope)
	}

	q := s.DB.WithContext(ctx).Where("game_slug = ? AND id > ?", gameSlug, after)
	shared := []models.DataScope{models.ScopeGlobal, models.ScopePublic}
	switch {
	case opts.Scope == models.ScopePlayer:
		if !opts.Caller.authenticated() {
			return &ListResult{Keys: []string{}, Records: []models.DataRecord{}}, nil
		}
		q = q.Where("scope = ? AND owner_id = ?", models.ScopePlayer, opts.Caller.DeviceID)
	case opts.Scope != "":
		q = q.Where("scope = ?", opts.Scope)
	case opts.Caller.authenticated():
		q = q.Where("scope IN ? OR (scope = ? AND owner_id = ?)", shared, models.ScopePlayer, opts.Caller.DeviceID)
	default:
		q = q.Where("scope IN ?", shared)
	}
	if opts.Prefix != "" {
		q = q.Where(`logical_key LIKE ? ESCAPE '\'`, escapeLike(norm.NFC.String(opts.Prefix))+"%")
	}

	var recs []models.DataRecord
	if err := q.Order("id ASC").Limit(limit + 1).Find(&recs).Error; err != nil {
		return nil, unavailable("list data", err)
	}

	out := &ListResult{Keys: []string{}, Records: []models.DataRecord{}}
	if len(recs) > limit {
		recs = recs[:limit]
		out.NextCursor = encodeCursor(recs[len(recs)-1].ID)
	}
	for _, r := range recs {
		out.Keys = append(out.Keys, r.Key)
		out.Records = append(out.Records, r)
	}
	return out, nil
}

// Delete removes key, trying it as a shared key first and then as the caller's player key.
// Deleting something absent is NotFound.
func (s *DataStore) Delete(ctx context.Context, gameSlug, key string, caller Caller) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	rec, err := s.find(ctx, gameSlug, key)
	if err != nil {
		return "", err
	}
	if rec == nil && caller.authenticated() {
		if rec, err = s.find(ctx, gameSlug, playerStorageKey(caller.DeviceID, key)); err != nil {
			return "", err
		}
		if !ownedBy(rec, caller.DeviceID) {
			rec = nil
		}
	}
	if rec == nil {
		return "", newError(KindNotFound, "key %q not found", key)
	}

	switch rec.Scope {
	case models.ScopeGlobal:
		if !caller.Admin {
			return "", newError(KindForbidden, "global records are admin-only")
		}
	default:
		if !caller.authenticated() {
			return "", ErrUnauthorized
		}
		if rec.OwnerID == nil || *rec.OwnerID != caller.DeviceID {
			return "", newError(KindForbidden, "key %q belongs to another owner", key)
		}
	}

	res := s.DB.WithContext(ctx).Where("id = ?", rec.ID).Delete(&models.DataRecord{})
	if res.Error != nil {
		return "", unavailable("delete data", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", newError(KindNotFound, "key %q not found", key)
	}
	logging.L().Debug("data_deleted", zap.String("game", gameSlug), zap.String("key", key))
	return key, nil
}
