package stage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

func TestParseTurns(t *testing.T) {
	in := `# produced by the diarization helper
SPEAKER_00 0.500 12.300

SPEAKER_01 13.000 4.250
SPEAKER_00 18.100 30.000
`
	turns, err := ParseTurns(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, "SPEAKER_00", turns[0].SpeakerID)
	assert.InDelta(t, 0.5, turns[0].Start, 1e-9)
	assert.InDelta(t, 12.8, turns[0].End, 1e-9)
	assert.InDelta(t, 4.25, turns[1].Duration(), 1e-9)
}

func TestParseTurnsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing field":  "SPEAKER_00 1.0\n",
		"extra field":    "SPEAKER_00 1.0 2.0 surprise\n",
		"bad start":      "SPEAKER_00 one 2.0\n",
		"bad duration":   "SPEAKER_00 1.0 two\n",
		"negative start": "SPEAKER_00 -1.0 2.0\n",
		"zero duration":  "SPEAKER_00 1.0 0.0\n",
	}
	for name, in := range cases {
		_, err := ParseTurns(strings.NewReader(in))
		assert.Error(t, err, name)
	}
}

func TestParseTurnsEmpty(t *testing.T) {
	turns, err := ParseTurns(strings.NewReader("# only comments\n\n"))
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestFormatTurnsRoundTrip(t *testing.T) {
	turns := []types.DiarizationTurn{
		{SpeakerID: "SPEAKER_00", Start: 0.5, End: 12.8},
		{SpeakerID: "SPEAKER_01", Start: 13, End: 17.25},
	}
	parsed, err := ParseTurns(strings.NewReader(string(FormatTurns(turns))))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	for i := range turns {
		assert.Equal(t, turns[i].SpeakerID, parsed[i].SpeakerID)
		assert.InDelta(t, turns[i].Start, parsed[i].Start, 1e-3)
		assert.InDelta(t, turns[i].End, parsed[i].End, 1e-3)
	}
}
