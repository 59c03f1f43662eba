package services

import (
	"bytes"
	"encoding/json"
)

// Outcome ends a battle. WinnerIndex is ignored when Draw is set.
type Outcome struct {
	WinnerIndex int
	Draw        bool
}

// TurnContext is what a Rules implementation sees for one submission.
type TurnContext struct {
	ActorIndex   int
	Actor        string
	Opponent     string
	TurnNumber   int
	Payload      json.RawMessage
	CurrentState BattleState
}

// Rules applies a submitted move to the snapshot and decides whether the battle ends.
// Errors should be *Error with KindValidation; anything else is treated as infrastructure failure.
type Rules interface {
	Apply(tc TurnContext) (BattleState, *Outcome, error)
}

// RulesFunc adapts a function to Rules.
type RulesFunc func(tc TurnContext) (BattleState, *Outcome, error)

func (f RulesFunc) Apply(tc TurnContext) (BattleState, *Outcome, error) { return f(tc) }

// turnPayload is the structure DefaultRules understands.
type turnPayload struct {
	Actions   []turnAction `json:"actions"`
	Objective *struct {
		WinnerIndex *int `json:"winnerIndex"`
		Draw        bool `json:"draw"`
	} `json:"objective"`
}

type turnAction struct {
	Action   string `json:"action"`
	UnitID   string `json:"unitId"`
	TargetID string `json:"targetId"`
	X        *int   `json:"x"`
	Y        *int   `json:"y"`
	Damage   int    `json:"damage"`
}

// DefaultRules resolves move and attack actions structurally. A player wins when the opponent
// loses their last unit, or when the payload asserts an objective.
type DefaultRules struct{}

func (DefaultRules) Apply(tc TurnContext) (BattleState, *Outcome, error) {
	var p turnPayload
	raw := bytes.TrimSpace(tc.Payload)
	if len(raw) > 0 && raw[0] != '{' {
		return tc.CurrentState, nil, validationError("turn payload must be a JSON object")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return tc.CurrentState, nil, validationError("invalid turn payload: %v", err)
		}
	}

	state := tc.CurrentState.clone()
	opponentHadUnits := state.countOwnedBy(tc.Opponent) > 0

	for i, a := range p.Actions {
		var err error
		switch a.Action {
		case "move":
			err = applyMove(&state, tc.Actor, a)
		case "attack":
			err = applyAttack(&state, tc.Actor, a)
		case "end_turn", "wait":
		default:
			err = validationError("action %d: unknown action %q", i, a.Action)
		}
		if err != nil {
			return tc.CurrentState, nil, err
		}
	}

	if p.Objective != nil {
		switch {
		case p.Objective.Draw:
			return state, &Outcome{Draw: true}, nil
		case p.Objective.WinnerIndex != nil:
			w := *p.Objective.WinnerIndex
			if w != 0 && w != 1 {
				return tc.CurrentState, nil, validationError("objective winnerIndex must be 0 or 1")
			}
			return state, &Outcome{WinnerIndex: w}, nil
		}
	}
	if opponentHadUnits && state.countOwnedBy(tc.Opponent) == 0 {
		return state, &Outcome{WinnerIndex: tc.ActorIndex}, nil
	}
	return state, nil, nil
}

func applyMove(state *BattleState, actor string, a turnAction) error {
	i := state.unitIndex(a.UnitID)
	if i < 0 {
		return validationError("move: unknown unit %q", a.UnitID)
	}
	if state.Units[i].Owner != actor {
		return validationError("move: unit %q is not yours", a.UnitID)
	}
	if a.X == nil || a.Y == nil {
		return validationError("move: x and y are required")
	}
	if !state.inBounds(*a.X, *a.Y) {
		return validationError("move: tile (%d,%d) is outside the map", *a.X, *a.Y)
	}
	if state.blocked(*a.X, *a.Y) {
		return validationError("move: tile (%d,%d) is blocked", *a.X, *a.Y)
	}
	for j, u := range state.Units {
		if j != i && u.X == *a.X && u.Y == *a.Y {
			return validationError("move: tile (%d,%d) is occupied", *a.X, *a.Y)
		}
	}
	state.Units[i].X, state.Units[i].Y = *a.X, *a.Y
	return nil
}

func applyAttack(state *BattleState, actor string, a turnAction) error {
	i := state.unitIndex(a.UnitID)
	if i < 0 {
		return validationError("attack: unknown unit %q", a.UnitID)
	}
	if state.Units[i].Owner != actor {
		return validationError("attack: unit %q is not yours", a.UnitID)
	}
	t := state.unitIndex(a.TargetID)
	if t < 0 {
		return validationError("attack: unknown target %q", a.TargetID)
	}
	if state.Units[t].Owner == actor {
		return validationError("attack: cannot attack own unit %q", a.TargetID)
	}
	if a.Damage <= 0 {
		return validationError("attack: damage must be positive")
	}
	state.Units[t].HP -= a.Damage
	if state.Units[t].HP <= 0 {
		state.Units = append(state.Units[:t], state.Units[t+1:]...)
	}
	return nil
}
