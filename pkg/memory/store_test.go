package memory

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongTermReadWrite(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	got, err := s.ReadLongTerm()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.WriteLongTerm("User lives in Lisbon."))
	got, err = s.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "User lives in Lisbon.", got)

	// Overwrite, not append.
	require.NoError(t, s.WriteLongTerm("User moved to Porto."))
	got, err = s.ReadLongTerm()
	require.NoError(t, err)
	assert.Equal(t, "User moved to Porto.", got)
}

func TestAppendHistorySeparatesEntriesWithBlankLine(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.AppendHistory("[2026-08-26 10:00] Talked about cats.\n"))
	require.NoError(t, s.AppendHistory("[2026-08-26 11:00] Planned a trip."))

	data, err := os.ReadFile(s.HistoryFile)
	require.NoError(t, err)
	assert.Equal(t, "[2026-08-26 10:00] Talked about cats.\n\n[2026-08-26 11:00] Planned a trip.\n\n", string(data))
}

func TestMemoryContext(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, s.MemoryContext())

	require.NoError(t, s.WriteLongTerm("Likes espresso."))
	assert.Equal(t, "## Long-term Memory\nLikes espresso.", s.MemoryContext())
}
