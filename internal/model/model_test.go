package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionLetter(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", -1: ""}
	for pos, want := range cases {
		assert.Equal(t, want, OptionLetter(pos), "position %d", pos)
	}
}

func TestQuestionHelpers(t *testing.T) {
	q := Question{Options: []AnswerOption{
		{UUIDBase: UUIDBase{ID: "o1"}, Position: 0},
		{UUIDBase: UUIDBase{ID: "o2"}, Position: 1, IsCorrect: true},
	}}
	require.NotNil(t, q.CorrectOption())
	assert.Equal(t, "o2", q.CorrectOption().ID)
	assert.Equal(t, "B", q.CorrectOption().Letter())
	assert.Nil(t, q.FindOption("missing"))
	assert.Equal(t, "o1", q.FindOption("o1").ID)
}

func TestAnswerSnapshotRoundTrip(t *testing.T) {
	q := &Question{
		UUIDBase:    UUIDBase{ID: "q1"},
		Text:        "2+2?",
		Explanation: "arithmetic",
		Position:    3,
		Options: []AnswerOption{
			{UUIDBase: UUIDBase{ID: "a"}, Text: "4", IsCorrect: true},
		},
	}
	var a Answer
	_, err := a.Snapshot()
	assert.Error(t, err)

	require.NoError(t, a.SetSnapshot(q))
	snap, err := a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "2+2?", snap.Text)
	assert.Equal(t, 3, snap.Position)
	require.Len(t, snap.Options, 1)
	assert.True(t, snap.Options[0].IsCorrect)
}
