//go:build headless

package backend

import (
	"testing"

	"github.com/intuitionamiga/mediacore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadlessTexturesCreateUpdateDelete(t *testing.T) {
	t.Parallel()
	tex := &headlessTextures{textures: map[int]bool{}}

	id, err := tex.CreateTexture(16, 16, mediacore.PixFmtRGBA)
	require.NoError(t, err)
	assert.Equal(t, 1, tex.TextureCount())

	img := mediacore.Image{Width: 16, Height: 16, Format: mediacore.PixFmtRGBA, Buffer: make([]byte, 16*16*4)}
	require.NoError(t, tex.UpdateTexture(id, img))

	require.NoError(t, tex.DeleteTexture(id))
	assert.Equal(t, 0, tex.TextureCount())
}

func TestHeadlessTexturesUpdateUnknownIDErrors(t *testing.T) {
	t.Parallel()
	tex := &headlessTextures{textures: map[int]bool{}}
	err := tex.UpdateTexture(99, mediacore.Image{})
	assert.Error(t, err)
}

func TestHeadlessTexturesCreateAssignsIncreasingIDs(t *testing.T) {
	t.Parallel()
	tex := &headlessTextures{textures: map[int]bool{}}
	id1, err := tex.CreateTexture(8, 8, mediacore.PixFmtRGBA)
	require.NoError(t, err)
	id2, err := tex.CreateTexture(8, 8, mediacore.PixFmtRGBA)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, tex.TextureCount())
}
