//go:build windows

package upstream

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/websoft9/agentbridge/internal/frame"
)

var (
	user32             = syscall.NewLazyDLL("user32.dll")
	procFindWindow     = user32.NewProc("FindWindowW")
	procSendMessageW   = user32.NewProc("SendMessageW")
	procGetCurrentProc = syscall.NewLazyDLL("kernel32.dll").NewProc("GetCurrentProcessId")
)

// copyDataStruct mirrors the Win32 COPYDATASTRUCT layout used by WM_COPYDATA.
type copyDataStruct struct {
	dwData uintptr
	cbData uint32
	lpData uintptr
}

// pageantClient forwards a framed request to a real Pageant host window via
// a named shared-memory mapping and WM_COPYDATA, per §6.
type pageantClient struct {
	cfg PageantConfig
	mu  sync.Mutex // the dispatcher never calls one client concurrently, but
	// the mapping name embeds the current thread's process id so guard it
	// anyway against accidental concurrent use from outside the dispatcher.
}

// NewPageantClient returns a Client that locates the Pageant window by class
// and title on every Exchange call (Pageant may be restarted between calls).
func NewPageantClient(cfg PageantConfig) Client {
	if cfg.WindowClass == "" {
		cfg.WindowClass = "Pageant"
	}
	if cfg.WindowTitle == "" {
		cfg.WindowTitle = "Pageant"
	}
	return &pageantClient{cfg: cfg}
}

func (c *pageantClient) Name() string { return c.cfg.ClientName }

// Exchange sends msg to the Pageant window and reads the reply from the
// shared mapping. The WM_COPYDATA send blocks until the window procedure
// returns; neither ctx nor defaultExchangeTimeout bounds it.
func (c *pageantClient) Exchange(ctx context.Context, msg *frame.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = withTimeout(ctx)
		defer cancel()
	}

	hwnd, err := findPageantWindow(c.cfg.WindowClass, c.cfg.WindowTitle)
	if err != nil {
		return fmt.Errorf("upstream: pageant %s: %w", c.cfg.ClientName, err)
	}

	hdr := frame.EncodeHeader(uint32(len(msg.Data)))
	full := append(append([]byte{}, hdr[:]...), msg.Data...)
	if len(full) > pageantMaxPayload {
		return fmt.Errorf("upstream: pageant %s: payload %d exceeds %d byte limit", c.cfg.ClientName, len(full), pageantMaxPayload)
	}

	mapName := fmt.Sprintf("PageantRequest%08x", currentProcessID())
	reply, err := sendCopyData(hwnd, mapName, full, pageantMaxPayload)
	if err != nil {
		return fmt.Errorf("upstream: pageant %s: %w", c.cfg.ClientName, err)
	}
	if len(reply) < 4 {
		return fmt.Errorf("upstream: pageant %s: short reply (%d bytes)", c.cfg.ClientName, len(reply))
	}
	replyLen := frame.DecodeHeader(reply[:4])
	if int(replyLen) > len(reply)-4 {
		return fmt.Errorf("upstream: pageant %s: reply declares %d bytes, mapping held %d", c.cfg.ClientName, replyLen, len(reply)-4)
	}
	msg.Data = append(msg.Data[:0], reply[4:4+replyLen]...)
	return nil
}

func (c *pageantClient) Close() error { return nil }

func currentProcessID() uint32 {
	r, _, _ := procGetCurrentProc.Call()
	return uint32(r)
}

func findPageantWindow(class, title string) (windows.HWND, error) {
	classPtr, err := syscall.UTF16PtrFromString(class)
	if err != nil {
		return 0, err
	}
	titlePtr, err := syscall.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	r, _, _ := procFindWindow.Call(uintptr(unsafe.Pointer(classPtr)), uintptr(unsafe.Pointer(titlePtr)))
	if r == 0 {
		return 0, fmt.Errorf("pageant window %q/%q not found", class, title)
	}
	return windows.HWND(r), nil
}

// sendCopyData writes request into a named shared-memory mapping, asks
// Pageant to overwrite it in place via WM_COPYDATA, and returns the mapping
// contents afterwards (up to cap bytes).
func sendCopyData(hwnd windows.HWND, mapName string, request []byte, cap int) ([]byte, error) {
	namePtr, err := windows.UTF16PtrFromString(mapName)
	if err != nil {
		return nil, err
	}

	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(cap), namePtr)
	if err != nil {
		return nil, fmt.Errorf("create shared mapping: %w", err)
	}
	defer windows.CloseHandle(h)

	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(cap))
	if err != nil {
		return nil, fmt.Errorf("map view: %w", err)
	}
	defer windows.UnmapViewOfFile(view)

	dst := unsafe.Slice((*byte)(unsafe.Pointer(view)), cap)
	copy(dst, request)

	nameBytes := append([]byte(mapName), 0)
	cds := copyDataStruct{
		dwData: pageantCopyDataMagic,
		cbData: uint32(len(nameBytes)),
		lpData: uintptr(unsafe.Pointer(&nameBytes[0])),
	}

	ret, _, callErr := procSendMessageW.Call(
		uintptr(hwnd),
		uintptr(wmCopyData),
		0,
		uintptr(unsafe.Pointer(&cds)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("SendMessage WM_COPYDATA: %v", callErr)
	}

	out := make([]byte, cap)
	copy(out, dst)
	return out, nil
}

const wmCopyData = 0x004A
