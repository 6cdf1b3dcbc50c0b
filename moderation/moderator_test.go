package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Censor(t *testing.T) {
	moderator, err := NewModerator([]string{"badword", "slur"}, '*')
	require.NoError(t, err)
	require.NotNil(t, moderator)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean text passes through",
			input: "hello there friend",
			want:  "hello there friend",
		},
		{
			name:  "plain match is masked",
			input: "you badword you",
			want:  "you ******* you",
		},
		{
			name:  "case is ignored",
			input: "BadWord",
			want:  "*******",
		},
		{
			name:  "leet substitutions are reversed",
			input: "b4dw0rd",
			want:  "*******",
		},
		{
			name:  "punctuation inside the word does not hide it",
			input: "b.a.d.w.o.r.d",
			want:  "*************",
		},
		{
			name:  "multiple matches in one message",
			input: "badword and slur",
			want:  "******* and ****",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "only punctuation",
			input: "?!...",
			want:  "?!...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, moderator.Censor(tt.input))
		})
	}
}

func TestNewModerator_EmptyWordListDisablesCensoring(t *testing.T) {
	req := require.New(t)

	moderator, err := NewModerator(nil, '*')
	req.NoError(err)
	req.Nil(moderator)

	// A nil Moderator is a valid pass-through
	req.Equal("anything goes", moderator.Censor("anything goes"))
}
