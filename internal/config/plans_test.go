package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaker-split/internal/app/capability"
)

func TestDefaultPlans_Ceilings(t *testing.T) {
	plans := DefaultPlans()

	assert.Equal(t, 5, plans.Ceiling("free", capability.Transcription))
	assert.Equal(t, 3, plans.Ceiling("free", capability.SpeakerSplit))
	assert.Equal(t, 2, plans.Ceiling("free", capability.Document))
	assert.Equal(t, 1, plans.Ceiling("free", capability.VoiceClone))

	assert.Equal(t, 50, plans.Ceiling("pro", capability.Transcription))
	assert.Equal(t, 30, plans.Ceiling("pro", capability.SpeakerSplit))
	assert.Equal(t, 20, plans.Ceiling("pro", capability.Document))
	assert.Equal(t, 10, plans.Ceiling("pro", capability.VoiceClone))
}

func TestPlans_Ceiling_UnknownTierFallsBackToFree(t *testing.T) {
	plans := DefaultPlans()

	assert.Equal(t, 5, plans.Ceiling("enterprise", capability.Transcription))
	assert.Equal(t, 0, plans.Ceiling("free", capability.Capability("nonsense")))
}

func TestLoadPlans_EmptyPathUsesDefaults(t *testing.T) {
	plans, err := LoadPlans("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlans(), plans)
}

func TestLoadPlans_FileOverridesCeilings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := `
tiers:
  free:
    transcription: 7
    speakerSplit: 4
  pro:
    transcription: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	plans, err := LoadPlans(path)
	require.NoError(t, err)

	assert.Equal(t, 7, plans.Ceiling("free", capability.Transcription))
	assert.Equal(t, 4, plans.Ceiling("free", capability.SpeakerSplit))
	assert.Equal(t, 100, plans.Ceiling("pro", capability.Transcription))
}

func TestLoadPlans_AliasedKeysFundCanonicalPools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := `
tiers:
  free:
    speaker-split: 9
    transcribe: 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	plans, err := LoadPlans(path)
	require.NoError(t, err)

	assert.Equal(t, 9, plans.Ceiling("free", capability.SpeakerSplit))
	assert.Equal(t, 6, plans.Ceiling("free", capability.Transcription))
}

func TestLoadPlans_RejectsUnknownCapability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	content := `
tiers:
  free:
    teleportation: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadPlans(path)
	assert.Error(t, err)
}

func TestLoadPlans_MissingFile(t *testing.T) {
	_, err := LoadPlans(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
