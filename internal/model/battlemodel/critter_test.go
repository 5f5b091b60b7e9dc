package battlemodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceRoll(values ...int) RollFunc {
	i := 0
	return func() int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestRollAttributes(t *testing.T) {
	t.Run("仅基础属性", func(t *testing.T) {
		attrs := RollAttributes(nil, sequenceRoll(1, 2, 3, 4))
		assert.Equal(t, map[string]int{AttrStrength: 1, AttrAgility: 2, AttrWit: 3, AttrSenses: 4}, attrs)
	})

	t.Run("附加属性与空名", func(t *testing.T) {
		attrs := RollAttributes([]string{" toughness ", "  ", ""}, sequenceRoll(5))
		require.Len(t, attrs, 5)
		assert.Equal(t, 5, attrs["toughness"])
	})

	t.Run("与基础属性同名时重新掷骰", func(t *testing.T) {
		attrs := RollAttributes([]string{AttrStrength}, sequenceRoll(1, 2, 3, 4, 9))
		require.Len(t, attrs, 4)
		assert.Equal(t, 9, attrs[AttrStrength])
	})
}

func TestDefaultRoll_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		v := DefaultRoll()
		assert.GreaterOrEqual(t, v, MinAttributeScore)
		assert.LessOrEqual(t, v, MaxAttributeScore)
	}
}

func TestNewCritterID(t *testing.T) {
	id := NewCritterID()
	assert.True(t, strings.HasPrefix(id, "critter-"))
	assert.NotEqual(t, id, NewCritterID())
}
