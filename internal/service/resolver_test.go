package service

import (
	"context"
	"errors"
	"testing"

	"guildmirror/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFindsExistingChannel(t *testing.T) {
	target := newRecordingTarget()
	target.existing["general"] = models.TargetChannelRef{ID: "target-9", Name: "general"}
	r := NewResolver(target, testLogger())

	ref, err := r.Resolve(context.Background(), models.SourceChannelRef{ID: "src-1", Name: "general"})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelID("target-9"), ref.ID)

	assert.Equal(t, []string{"find:general"}, target.operations())
}

func TestResolveCreatesMissingChannel(t *testing.T) {
	target := newRecordingTarget()
	r := NewResolver(target, testLogger())

	ref, err := r.Resolve(context.Background(), models.SourceChannelRef{ID: "src-1", Name: "memes"})
	require.NoError(t, err)
	assert.Equal(t, "memes", ref.Name)
	assert.NotEmpty(t, ref.ID)

	assert.Equal(t, []string{"find:memes", "create:memes"}, target.operations())
}

func TestResolveCachesMapping(t *testing.T) {
	target := newRecordingTarget()
	r := NewResolver(target, testLogger())

	src := models.SourceChannelRef{ID: "src-1", Name: "memes"}
	first, err := r.Resolve(context.Background(), src)
	require.NoError(t, err)

	second, err := r.Resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The second call never touches the platform.
	assert.Equal(t, []string{"find:memes", "create:memes"}, target.operations())
}

func TestResolvePropagatesLookupError(t *testing.T) {
	target := newRecordingTarget()
	target.findErrs = []error{errors.New("api down")}
	r := NewResolver(target, testLogger())

	_, err := r.Resolve(context.Background(), models.SourceChannelRef{ID: "src-1", Name: "general"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "looking up target channel")

	// The failure is not cached; a retry goes back to the platform.
	_, err = r.Resolve(context.Background(), models.SourceChannelRef{ID: "src-1", Name: "general"})
	require.NoError(t, err)
}

func TestResolvePropagatesCreateError(t *testing.T) {
	target := newRecordingTarget()
	target.createErrs = []error{errors.New("missing permission")}
	r := NewResolver(target, testLogger())

	_, err := r.Resolve(context.Background(), models.SourceChannelRef{ID: "src-1", Name: "memes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating target channel")
}
