package battlemodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBattleResult_ExperienceDeltas(t *testing.T) {
	tests := []struct {
		name   string
		result BattleResult
		wantA  int64
		wantB  int64
	}{
		{name: "B 以 8 比 3 获胜", result: BattleResult{AWon: false, AScore: 3, BScore: 8}, wantA: 3, wantB: 6},
		{name: "A 以 9 比 5 获胜", result: BattleResult{AWon: true, AScore: 9, BScore: 5}, wantA: 10, wantB: 5},
		{name: "经验平局且均为 0", result: BattleResult{AWon: true}, wantA: 0, wantB: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.result.ExperienceDeltas()
			assert.Equal(t, tt.wantA, a)
			assert.Equal(t, tt.wantB, b)
		})
	}
}

func TestIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewCritterID(), "critter-"))
	assert.True(t, strings.HasPrefix(NewBattleID(), "battle-"))
	assert.NotEqual(t, NewBattleID(), NewBattleID())
}

func TestOpenBattleJob_Validate(t *testing.T) {
	battle := Battle{ID: "battle-1", CritterAID: "critter-a", CritterBID: "critter-b"}

	ok := OpenBattleJob{Battle: battle, Critters: []Critter{{ID: "critter-a"}, {ID: "critter-b"}}}
	assert.NoError(t, ok.Validate())

	swapped := OpenBattleJob{Battle: battle, Critters: []Critter{{ID: "critter-b"}, {ID: "critter-a"}}}
	assert.Error(t, swapped.Validate())

	short := OpenBattleJob{Battle: battle, Critters: []Critter{{ID: "critter-a"}}}
	assert.Error(t, short.Validate())
}

func TestClosedBattleJob_Validate(t *testing.T) {
	assert.Error(t, ClosedBattleJob{}.Validate())
	assert.NoError(t, ClosedBattleJob{
		Battle: Battle{ID: "battle-1", CritterAID: "critter-a", CritterBID: "critter-b"},
		Result: BattleResult{AWon: true, AScore: 4, BScore: 1},
	}.Validate())
}

func TestIsBaseAttribute(t *testing.T) {
	assert.True(t, IsBaseAttribute("wit"))
	assert.False(t, IsBaseAttribute("toughness"))
}
