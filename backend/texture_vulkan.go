//go:build vulkan

package backend

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/intuitionamiga/mediacore"
)

func init() {
	mediacore.RegisterTextureFactory(func() mediacore.TextureCapable {
		vt, err := newVulkanTextures()
		if err != nil {
			return nil
		}
		return vt
	})
}

// vulkanTextures implements mediacore.TextureCapable over linear,
// host-visible vk.Image handles, generalized from the instance/device
// bring-up in the teacher's VulkanBackend.initVulkan into a texture
// handle table rather than a single offscreen render target. Unlike
// the teacher's optimal-tiled render target plus staging-buffer
// readback, textures here use ImageTilingLinear host-visible memory so
// UpdateTexture can vkMapMemory and copy pixels directly without a
// command buffer submission, since uploads here have no render pass to
// synchronize against.
type vulkanTextures struct {
	mu             sync.Mutex
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queueFamily    uint32

	textures map[int]*vulkanTexture
	nextID   int
}

type vulkanTexture struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	width  int
	height int
}

func newVulkanTextures() (*vulkanTextures, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("load vulkan library: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("init vulkan loader: %w", err)
	}

	vt := &vulkanTextures{textures: map[int]*vulkanTexture{}}
	if err := vt.createInstance(); err != nil {
		return nil, err
	}
	if err := vt.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := vt.createDevice(); err != nil {
		return nil, err
	}
	return vt, nil
}

func (vt *vulkanTextures) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeCString("mediacore"),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeCString("mediacore-texture-upload"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	vt.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (vt *vulkanTextures) selectPhysicalDevice() error {
	var deviceCount uint32
	vk.EnumeratePhysicalDevices(vt.instance, &deviceCount, nil)
	if deviceCount == 0 {
		return fmt.Errorf("no vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	vk.EnumeratePhysicalDevices(vt.instance, &deviceCount, devices)

	for _, device := range devices {
		var qfCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &qfCount, nil)
		families := make([]vk.QueueFamilyProperties, qfCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &qfCount, families)
		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				vt.physicalDevice = device
				vt.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("no suitable GPU with a graphics queue found")
}

func (vt *vulkanTextures) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: vt.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(vt.physicalDevice, &deviceInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	vt.device = device
	return nil
}

func (vt *vulkanTextures) findMemoryType(typeFilter uint32, props vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vt.physicalDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memProps.MemoryTypes[i].PropertyFlags&props) == props {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no suitable memory type")
}

func (vt *vulkanTextures) CreateTexture(width, height int, format mediacore.PixFmt) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid texture size %dx%d", width, height)
	}
	vt.mu.Lock()
	defer vt.mu.Unlock()

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.FormatR8g8b8a8Unorm,
		Extent:    vk.Extent3D{Width: uint32(width), Height: uint32(height), Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingLinear,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageSampledBit),
		InitialLayout: vk.ImageLayoutPreinitialized,
	}
	var image vk.Image
	if res := vk.CreateImage(vt.device, &imageInfo, nil, &image); res != vk.Success {
		return 0, fmt.Errorf("vkCreateImage failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vt.device, image, &memReqs)
	memReqs.Deref()
	memType, err := vt.findMemoryType(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyImage(vt.device, image, nil)
		return 0, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(vt.device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyImage(vt.device, image, nil)
		return 0, fmt.Errorf("vkAllocateMemory failed: %d", res)
	}
	vk.BindImageMemory(vt.device, image, memory, 0)

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.FormatR8g8b8a8Unorm,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(vt.device, &viewInfo, nil, &view); res != vk.Success {
		vk.FreeMemory(vt.device, memory, nil)
		vk.DestroyImage(vt.device, image, nil)
		return 0, fmt.Errorf("vkCreateImageView failed: %d", res)
	}

	vt.nextID++
	id := vt.nextID
	vt.textures[id] = &vulkanTexture{image: image, memory: memory, view: view, width: width, height: height}
	return id, nil
}

func (vt *vulkanTextures) UpdateTexture(id int, img mediacore.Image) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	tex, ok := vt.textures[id]
	if !ok {
		return fmt.Errorf("unknown texture id %d", id)
	}
	if len(img.Buffer) != tex.width*tex.height*4 {
		return fmt.Errorf("image buffer size mismatch for texture %d", id)
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(vt.device, tex.memory, 0, vk.DeviceSize(len(img.Buffer)), 0, &data); res != vk.Success {
		return fmt.Errorf("vkMapMemory failed: %d", res)
	}
	copy((*[1 << 30]byte)(data)[:len(img.Buffer)], img.Buffer)
	vk.UnmapMemory(vt.device, tex.memory)
	return nil
}

func (vt *vulkanTextures) DeleteTexture(id int) error {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	tex, ok := vt.textures[id]
	if !ok {
		return fmt.Errorf("unknown texture id %d", id)
	}
	vk.DestroyImageView(vt.device, tex.view, nil)
	vk.FreeMemory(vt.device, tex.memory, nil)
	vk.DestroyImage(vt.device, tex.image, nil)
	delete(vt.textures, id)
	return nil
}

func (vt *vulkanTextures) TextureCount() int {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	return len(vt.textures)
}

func safeCString(s string) string {
	return s + "\x00"
}
