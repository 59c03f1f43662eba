package services

import (
	"encoding/json"
	"testing"
)

func rulesContext(t *testing.T, payload string) TurnContext {
	t.Helper()
	md, err := ParseMapData(twoUnitMap)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return TurnContext{
		ActorIndex:   0,
		Actor:        "p1",
		Opponent:     "p2",
		TurnNumber:   1,
		Payload:      json.RawMessage(payload),
		CurrentState: md.InitialState("p1", "p2"),
	}
}

func TestDefaultRulesMove(t *testing.T) {
	tc := rulesContext(t, `{"actions":[{"action":"move","unitId":"a1","x":2,"y":1}]}`)
	st, out, err := DefaultRules{}.Apply(tc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if st.Units[0].X != 2 || st.Units[0].Y != 1 {
		t.Fatalf("unit did not move: %+v", st.Units[0])
	}
	if tc.CurrentState.Units[0].X != 1 {
		t.Fatal("input state was mutated")
	}
}

func TestDefaultRulesRejects(t *testing.T) {
	cases := map[string]string{
		"blocked tile":   `{"actions":[{"action":"move","unitId":"a1","x":3,"y":3}]}`,
		"occupied tile":  `{"actions":[{"action":"move","unitId":"a1","x":6,"y":6}]}`,
		"foreign unit":   `{"actions":[{"action":"move","unitId":"b1","x":5,"y":5}]}`,
		"unknown unit":   `{"actions":[{"action":"move","unitId":"zz","x":5,"y":5}]}`,
		"attack own":     `{"actions":[{"action":"attack","unitId":"a1","targetId":"a1","damage":1}]}`,
		"zero damage":    `{"actions":[{"action":"attack","unitId":"a1","targetId":"b1","damage":0}]}`,
		"off the map":    `{"actions":[{"action":"move","unitId":"a1","x":10000,"y":10000}]}`,
		"past the edge":  `{"actions":[{"action":"move","unitId":"a1","x":8,"y":1}]}`,
		"negative":       `{"actions":[{"action":"move","unitId":"a1","x":-1,"y":1}]}`,
		"unknown action": `{"actions":[{"action":"teleport"}]}`,
		"bad winner":     `{"objective":{"winnerIndex":3}}`,
		"non-object":     `"hello"`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DefaultRules{}.Apply(rulesContext(t, payload))
			wantKind(t, err, KindValidation)
		})
	}
}

func TestDefaultRulesEliminationWins(t *testing.T) {
	tc := rulesContext(t, `{"actions":[{"action":"attack","unitId":"a1","targetId":"b1","damage":5}]}`)
	st, out, err := DefaultRules{}.Apply(tc)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(st.Units) != 1 {
		t.Fatalf("expected target removed, got %d units", len(st.Units))
	}
	if out == nil || out.Draw || out.WinnerIndex != 0 {
		t.Fatalf("expected actor win, got %+v", out)
	}
}

func TestDefaultRulesObjectives(t *testing.T) {
	_, out, err := DefaultRules{}.Apply(rulesContext(t, `{"objective":{"draw":true}}`))
	if err != nil || out == nil || !out.Draw {
		t.Fatalf("expected draw, got %+v %v", out, err)
	}
	_, out, err = DefaultRules{}.Apply(rulesContext(t, `{"objective":{"winnerIndex":1}}`))
	if err != nil || out == nil || out.WinnerIndex != 1 {
		t.Fatalf("expected winner 1, got %+v %v", out, err)
	}
}

func TestDefaultRulesEmptyPayload(t *testing.T) {
	_, out, err := DefaultRules{}.Apply(rulesContext(t, `{}`))
	if err != nil || out != nil {
		t.Fatalf("expected no-op, got %+v %v", out, err)
	}
}

func TestDefaultRulesMoveKeepsBounds(t *testing.T) {
	tc := rulesContext(t, `{"actions":[{"action":"move","unitId":"a1","x":7,"y":7}]}`)
	st, _, err := DefaultRules{}.Apply(tc)
	if err != nil {
		t.Fatalf("move to the far corner: %v", err)
	}
	if st.Width != 8 || st.Height != 8 {
		t.Fatalf("bounds lost after a turn: %dx%d", st.Width, st.Height)
	}
}
