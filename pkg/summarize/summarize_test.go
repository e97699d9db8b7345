package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finchbot/modmail/pkg/logging"
	"github.com/stretchr/testify/require"
)

type stubSummarizer struct {
	summary string
	err     error
}

func (s *stubSummarizer) Summarize(_ context.Context, _ []string) (string, error) {
	return s.summary, s.err
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		want     string
	}{
		{
			name:     "Empty",
			messages: nil,
			want:     "No clear problem statement.",
		},
		{
			name:     "WhitespaceOnly",
			messages: []string{"  ", "\n"},
			want:     "No clear problem statement.",
		},
		{
			name:     "Short",
			messages: []string{"my account is locked"},
			want:     "my account is locked",
		},
		{
			name:     "Joined",
			messages: []string{"hello", "my account is locked"},
			want:     "hello my account is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Truncate(tt.messages))
		})
	}
}

func TestTruncate_CapsLongInput(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := Truncate([]string{long})
	require.Equal(t, fallbackLimit+1, len([]rune(got)))
	require.True(t, strings.HasSuffix(got, "…"))
}

func TestBestEffort(t *testing.T) {
	l, err := logging.CommonLogger(logging.NewConfig(`tests`))
	require.NoError(t, err, "Failed to create logger")

	messages := []string{"my account is locked"}

	t.Run("NilSummarizerFallsBack", func(t *testing.T) {
		require.Equal(t, "my account is locked", BestEffort(context.Background(), l, nil, messages))
	})

	t.Run("UsesSummarizer", func(t *testing.T) {
		s := &stubSummarizer{summary: "Account lockout."}
		require.Equal(t, "Account lockout.", BestEffort(context.Background(), l, s, messages))
	})

	t.Run("ErrorFallsBack", func(t *testing.T) {
		s := &stubSummarizer{err: errors.New("api down")}
		require.Equal(t, "my account is locked", BestEffort(context.Background(), l, s, messages))
	})

	t.Run("BlankSummaryFallsBack", func(t *testing.T) {
		s := &stubSummarizer{summary: "  "}
		require.Equal(t, "my account is locked", BestEffort(context.Background(), l, s, messages))
	})
}
