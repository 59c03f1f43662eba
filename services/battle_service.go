package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"game-battle-service/logging"
	"game-battle-service/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BattleArchiver receives finished battles together with their full turn history.
type BattleArchiver interface {
	ArchiveBattle(ctx context.Context, battle *models.Battle, turns []models.Turn) error
}

// BattleService drives the battle lifecycle: pending -> active -> completed | abandoned.
// Every transition is a conditional UPDATE on the expected prior state, so concurrent
// callers can never both succeed.
type BattleService struct {
	DB       *gorm.DB
	Registry *BattleRegistry
	Turns    *TurnLog
	Rules    Rules
	Stats    *StatsService
	Identity IdentityResolver
	// Archive is optional. Uploads run in the background; see WaitArchives.
	Archive BattleArchiver

	now      func() time.Time
	archives sync.WaitGroup
}

func NewBattleService(db *gorm.DB, maxActive int, rules Rules, stats *StatsService, identity IdentityResolver) *BattleService {
	if rules == nil {
		rules = DefaultRules{}
	}
	return &BattleService{
		DB:       db,
		Registry: NewBattleRegistry(db, maxActive),
		Turns:    NewTurnLog(db),
		Rules:    rules,
		Stats:    stats,
		Identity: identity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TurnResult is the battle as it stands after an accepted turn.
type TurnResult struct {
	Turn   models.Turn    `json:"turn"`
	Battle *models.Battle `json:"battle"`
}

// PollResult is everything a client needs to catch up from lastKnownTurn.
type PollResult struct {
	HasNewTurns        bool                `json:"hasNewTurns"`
	NewTurns           []models.Turn       `json:"newTurns"`
	Status             models.BattleStatus `json:"status"`
	CurrentTurn        int                 `json:"currentTurn"`
	CurrentPlayerIndex int                 `json:"currentPlayerIndex"`
	CurrentState       BattleState         `json:"currentState"`
	WinnerID           *string             `json:"winnerId"`
	EndReason          *models.EndReason   `json:"endReason"`
	Players            []Identity          `json:"players"`
}

func (s *BattleService) Create(ctx context.Context, gameSlug, creator string, mapData json.RawMessage, isPrivate bool) (*models.Battle, error) {
	b, err := s.Registry.Create(ctx, gameSlug, creator, mapData, isPrivate)
	if err != nil {
		return nil, err
	}
	logging.L().Info("battle_created",
		zap.String("game", gameSlug), zap.String("battle_id", b.ID), zap.String("device_id", creator))
	return b, nil
}

func (s *BattleService) ListForDevice(ctx context.Context, gameSlug, deviceID string, statuses []models.BattleStatus, limit int) ([]models.Battle, error) {
	return s.Registry.ListForDevice(ctx, gameSlug, deviceID, statuses, limit)
}

func (s *BattleService) ListOpen(ctx context.Context, gameSlug, excludeDevice string, limit int) ([]models.Battle, error) {
	return s.Registry.ListOpen(ctx, gameSlug, excludeDevice, limit)
}

// Join claims the second seat of a pending battle and activates it. The initial
// snapshot is derived from the map exactly once, in the same update.
func (s *BattleService) Join(ctx context.Context, gameSlug, battleID, deviceID string) (*models.Battle, error) {
	if deviceID == "" {
		return nil, ErrUnauthorized
	}
	b, err := s.Registry.FindByGameAndID(ctx, gameSlug, battleID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BattleStatusPending {
		return nil, newError(KindInvalidState, "battle is %s", b.Status)
	}
	if b.Player1DeviceID == deviceID {
		return nil, ErrSelfJoin
	}
	if err := s.Registry.checkCapacity(ctx, gameSlug, deviceID); err != nil {
		return nil, err
	}

	md, err := ParseMapData(b.MapData)
	if err != nil {
		return nil, err
	}
	state, err := json.Marshal(md.InitialState(b.Player1DeviceID, deviceID))
	if err != nil {
		return nil, unavailable("encode battle state", err)
	}

	now := s.now()
	res := s.DB.WithContext(ctx).Model(&models.Battle{}).
		Where("id = ? AND game_slug = ? AND status = ? AND player2_device_id IS NULL", b.ID, gameSlug, models.BattleStatusPending).
		Updates(map[string]any{
			"player2_device_id": deviceID,
			"status":            models.BattleStatusActive,
			"current_state":     datatypes.JSON(state),
			"last_turn_at":      now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return nil, unavailable("join battle", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindConflict, "battle %s was claimed concurrently", b.ID)
	}

	logging.L().Info("battle_joined",
		zap.String("game", gameSlug), zap.String("battle_id", b.ID), zap.String("device_id", deviceID))
	return s.Registry.FindByGameAndID(ctx, gameSlug, b.ID)
}

// SubmitTurn appends the next turn and advances the battle. The battle row is updated
// conditionally on (status, currentTurn, currentPlayerIndex) and the turn is inserted in
// the same transaction; losing either race yields Conflict with nothing written.
func (s *BattleService) SubmitTurn(ctx context.Context, gameSlug, battleID, deviceID string, payload json.RawMessage) (*TurnResult, error) {
	if deviceID == "" {
		return nil, ErrUnauthorized
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, validationError("turn payload must be valid JSON")
	}

	b, err := s.Registry.FindByGameAndID(ctx, gameSlug, battleID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BattleStatusActive {
		return nil, newError(KindInvalidState, "battle is %s", b.Status)
	}
	idx := b.PlayerIndex(deviceID)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if idx != b.CurrentPlayerIndex {
		return nil, ErrOutOfTurn
	}

	state, err := DecodeState(b.CurrentState)
	if err != nil {
		return nil, unavailable("load battle state", err)
	}
	next, outcome, err := s.Rules.Apply(TurnContext{
		ActorIndex:   idx,
		Actor:        deviceID,
		Opponent:     b.Participant(1 - idx),
		TurnNumber:   b.CurrentTurn + 1,
		Payload:      payload,
		CurrentState: state,
	})
	if err != nil {
		return nil, unavailable("apply turn", err)
	}
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return nil, unavailable("encode battle state", err)
	}

	now := s.now()
	updates := map[string]any{
		"current_turn":         b.CurrentTurn + 1,
		"current_player_index": 1 - idx,
		"current_state":        datatypes.JSON(nextRaw),
		"last_turn_at":         now,
		"updated_at":           now,
	}
	var winner *string
	var reason models.EndReason
	if outcome != nil {
		reason = models.EndReasonCompleted
		if outcome.Draw {
			reason = models.EndReasonDraw
		} else {
			w := b.Participant(outcome.WinnerIndex)
			winner = &w
		}
		updates["status"] = models.BattleStatusCompleted
		updates["end_reason"] = reason
		updates["winner_id"] = winner
	}

	turn := models.Turn{
		BattleID:   b.ID,
		TurnNumber: b.CurrentTurn + 1,
		DeviceID:   deviceID,
		Payload:    datatypes.JSON(payload),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Battle{}).
			Where("id = ? AND status = ? AND current_turn = ? AND current_player_index = ?",
				b.ID, models.BattleStatusActive, b.CurrentTurn, b.CurrentPlayerIndex).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(KindConflict, "turn %d was already submitted", turn.TurnNumber)
		}
		return s.Turns.append(tx, &turn)
	})
	if err != nil {
		return nil, unavailable("submit turn", err)
	}

	b.CurrentTurn = turn.TurnNumber
	b.CurrentPlayerIndex = 1 - idx
	b.CurrentState = datatypes.JSON(nextRaw)
	b.LastTurnAt = &now
	b.UpdatedAt = now
	if outcome != nil {
		b.Status = models.BattleStatusCompleted
		b.EndReason = &reason
		b.WinnerID = winner
	}

	log := logging.L().With(zap.String("game", gameSlug), zap.String("battle_id", b.ID))
	log.Info("turn_submitted", zap.Int("turn", turn.TurnNumber), zap.String("device_id", deviceID))
	s.afterCommit(ctx, "record_turn", func(ctx context.Context) error {
		return s.Stats.RecordTurn(ctx, gameSlug, deviceID)
	})
	if outcome != nil {
		log.Info("battle_completed", zap.String("end_reason", string(reason)))
		s.recordOutcome(ctx, b)
		s.archive(ctx, b)
	}
	return &TurnResult{Turn: turn, Battle: b}, nil
}

// Forfeit ends a battle on behalf of deviceID. A pending battle is cancelled without a
// winner; an active one is awarded to the other participant.
func (s *BattleService) Forfeit(ctx context.Context, gameSlug, battleID, deviceID string) (*models.Battle, error) {
	if deviceID == "" {
		return nil, ErrUnauthorized
	}
	b, err := s.Registry.FindByGameAndID(ctx, gameSlug, battleID)
	if err != nil {
		return nil, err
	}
	idx := b.PlayerIndex(deviceID)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if b.Status.Terminal() {
		return nil, newError(KindInvalidState, "battle is already %s", b.Status)
	}

	now := s.now()
	prior := b.Status
	var reason models.EndReason
	var winner *string
	next := models.BattleStatusAbandoned
	if prior == models.BattleStatusPending {
		reason = models.EndReasonCancelled
	} else {
		reason = models.EndReasonForfeit
		next = models.BattleStatusCompleted
		w := b.Participant(1 - idx)
		winner = &w
	}

	res := s.DB.WithContext(ctx).Model(&models.Battle{}).
		Where("id = ? AND status = ?", b.ID, prior).
		Updates(map[string]any{
			"status":     next,
			"end_reason": reason,
			"winner_id":  winner,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, unavailable("forfeit battle", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(KindConflict, "battle %s changed concurrently", b.ID)
	}

	b.Status = next
	b.EndReason = &reason
	b.WinnerID = winner
	b.UpdatedAt = now

	logging.L().Info("battle_forfeited",
		zap.String("game", gameSlug), zap.String("battle_id", b.ID),
		zap.String("device_id", deviceID), zap.String("status", string(next)))
	if winner != nil {
		s.afterCommit(ctx, "record_forfeit", func(ctx context.Context) error {
			return s.Stats.RecordWin(ctx, gameSlug, *winner, deviceID)
		})
	}
	s.archive(ctx, b)
	return b, nil
}

// Poll returns turns newer than lastKnownTurn together with the current battle snapshot.
// It never writes.
func (s *BattleService) Poll(ctx context.Context, gameSlug, battleID string, lastKnownTurn int) (*PollResult, error) {
	if lastKnownTurn < 0 {
		return nil, validationError("lastKnownTurn must be >= 0")
	}
	b, err := s.Registry.FindByGameAndID(ctx, gameSlug, battleID)
	if err != nil {
		return nil, err
	}

	turns := []models.Turn{}
	if lastKnownTurn < b.CurrentTurn {
		// Bounded by the snapshot so turns and state always agree.
		turns, err = s.Turns.Range(ctx, b.ID, lastKnownTurn, b.CurrentTurn)
		if err != nil {
			return nil, err
		}
	}
	state, err := DecodeState(b.CurrentState)
	if err != nil {
		return nil, unavailable("load battle state", err)
	}

	out := &PollResult{
		HasNewTurns:        len(turns) > 0,
		NewTurns:           turns,
		Status:             b.Status,
		CurrentTurn:        b.CurrentTurn,
		CurrentPlayerIndex: b.CurrentPlayerIndex,
		CurrentState:       state,
		WinnerID:           b.WinnerID,
		EndReason:          b.EndReason,
		Players:            []Identity{},
	}
	for i := 0; i < 2; i++ {
		id := b.Participant(i)
		if id == "" {
			continue
		}
		out.Players = append(out.Players, Identity{DeviceID: id, DisplayName: resolveName(ctx, s.Identity, id)})
	}
	return out, nil
}

func (s *BattleService) recordOutcome(ctx context.Context, b *models.Battle) {
	if b.WinnerID == nil {
		s.afterCommit(ctx, "record_draw", func(ctx context.Context) error {
			return s.Stats.RecordDraw(ctx, b.GameSlug, b.Participant(0), b.Participant(1))
		})
		return
	}
	winner := *b.WinnerID
	loser := b.Participant(0)
	if loser == winner {
		loser = b.Participant(1)
	}
	s.afterCommit(ctx, "record_win", func(ctx context.Context) error {
		return s.Stats.RecordWin(ctx, b.GameSlug, winner, loser)
	})
}

// afterCommit runs a derived-counter update. Failures are logged and swallowed: the committed
// transition stands and Reconcile repairs the drift.
func (s *BattleService) afterCommit(ctx context.Context, op string, fn func(context.Context) error) {
	if s.Stats == nil {
		return
	}
	if err := fn(ctx); err != nil {
		logging.L().Error("stats_update_failed", zap.String("op", op), zap.Error(err))
	}
}

// archive uploads a finished battle in the background. The upload outlives the request,
// so it runs on a context detached from ctx's cancellation.
func (s *BattleService) archive(ctx context.Context, b *models.Battle) {
	if s.Archive == nil {
		return
	}
	snapshot := *b
	bg := context.WithoutCancel(ctx)
	s.archives.Add(1)
	go func() {
		defer s.archives.Done()
		turns, err := s.Turns.Since(bg, snapshot.ID, 0)
		if err == nil {
			err = s.Archive.ArchiveBattle(bg, &snapshot, turns)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.L().Warn("battle_archive_failed", zap.String("battle_id", snapshot.ID), zap.Error(err))
		}
	}()
}

// WaitArchives blocks until every background archive upload has finished.
func (s *BattleService) WaitArchives() {
	s.archives.Wait()
}
