//go:build headless

package backend

import (
	"fmt"
	"sync"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterTextureFactory(func() mediacore.TextureCapable { return &headlessTextures{textures: map[int]bool{}} })
}

// headlessTextures tracks handles without any GPU-side allocation, the
// texture-upload equivalent of HeadlessVideoOutput's frame counter.
type headlessTextures struct {
	mu       sync.Mutex
	textures map[int]bool
	nextID   int
}

func (t *headlessTextures) CreateTexture(width, height int, format mediacore.PixFmt) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.textures[t.nextID] = true
	return t.nextID, nil
}

func (t *headlessTextures) UpdateTexture(id int, img mediacore.Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.textures[id] {
		return fmt.Errorf("unknown texture id %d", id)
	}
	return nil
}

func (t *headlessTextures) DeleteTexture(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.textures, id)
	return nil
}

func (t *headlessTextures) TextureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.textures)
}
