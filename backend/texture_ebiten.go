//go:build !headless && !vulkan

package backend

import (
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterTextureFactory(func() mediacore.TextureCapable { return newEbitenTextures() })
}

// ebitenTextures implements mediacore.TextureCapable over
// hajimehoshi/ebiten/v2 *ebiten.Image handles, generalized from the
// teacher's video_interface.go TextureCapable declaration (never
// implemented there) into a real handle table keyed by an incrementing
// int id.
type ebitenTextures struct {
	mu       sync.Mutex
	textures map[int]*ebiten.Image
	nextID   int
}

func newEbitenTextures() *ebitenTextures {
	return &ebitenTextures{textures: map[int]*ebiten.Image{}}
}

func (t *ebitenTextures) CreateTexture(width, height int, format mediacore.PixFmt) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.textures[id] = ebiten.NewImage(width, height)
	return id, nil
}

func (t *ebitenTextures) UpdateTexture(id int, img mediacore.Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tex, ok := t.textures[id]
	if !ok {
		return fmt.Errorf("unknown texture id %d", id)
	}
	if len(img.Buffer) != tex.Bounds().Dx()*tex.Bounds().Dy()*4 {
		return fmt.Errorf("image buffer size mismatch for texture %d", id)
	}
	tex.WritePixels(img.Buffer)
	return nil
}

func (t *ebitenTextures) DeleteTexture(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.textures[id]; !ok {
		return fmt.Errorf("unknown texture id %d", id)
	}
	delete(t.textures, id)
	return nil
}

func (t *ebitenTextures) TextureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.textures)
}
