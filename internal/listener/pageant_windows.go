//go:build windows

package listener

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/websoft9/agentbridge/internal/frame"
)

var (
	pageantUser32        = syscall.NewLazyDLL("user32.dll")
	pageantKernel32      = syscall.NewLazyDLL("kernel32.dll")
	procRegisterClassExW = pageantUser32.NewProc("RegisterClassExW")
	procUnregisterClassW = pageantUser32.NewProc("UnregisterClassW")
	procCreateWindowExW  = pageantUser32.NewProc("CreateWindowExW")
	procDestroyWindow    = pageantUser32.NewProc("DestroyWindow")
	procDefWindowProcW   = pageantUser32.NewProc("DefWindowProcW")
	procGetMessageW      = pageantUser32.NewProc("GetMessageW")
	procTranslateMessage = pageantUser32.NewProc("TranslateMessage")
	procDispatchMessageW = pageantUser32.NewProc("DispatchMessageW")
	procPostQuitMessage  = pageantUser32.NewProc("PostQuitMessage")
	procPostMessageW     = pageantUser32.NewProc("PostMessageW")
	procGetModuleHandleW = pageantKernel32.NewProc("GetModuleHandleW")
	procOpenFileMappingW = pageantKernel32.NewProc("OpenFileMappingW")
)

const (
	wmDestroy    = 0x0002
	wmClose      = 0x0010
	wmCopyData   = 0x004A
	wsExDefault  = 0
	wsOverlapped = 0
)

// copyDataStructPageant mirrors the Win32 COPYDATASTRUCT layout used by
// WM_COPYDATA, independent of the identically-shaped struct the upstream
// Pageant client defines in its own package.
type copyDataStructPageant struct {
	dwData uintptr
	cbData uint32
	lpData uintptr
}

// wndClassEx mirrors the Win32 WNDCLASSEXW layout.
type wndClassEx struct {
	cbSize        uint32
	style         uint32
	lpfnWndProc   uintptr
	cbClsExtra    int32
	cbWndExtra    int32
	hInstance     windows.Handle
	hIcon         windows.Handle
	hCursor       windows.Handle
	hbrBackground windows.Handle
	lpszMenuName  *uint16
	lpszClassName *uint16
	hIconSm       windows.Handle
}

// winMsg mirrors the Win32 MSG layout.
type winMsg struct {
	hwnd    windows.HWND
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// pageantMapSize is the shared-memory ceiling for one framed message
// (header + payload), mirroring the real protocol's limit and the same
// value the upstream Pageant client enforces on requests it sends out.
const pageantMapSize = 8 * 1024

// pageantCopyDataMagic is the WM_COPYDATA dwData value identifying an
// agent-protocol message, per the documented Pageant protocol.
const pageantCopyDataMagic = 0x804e50ba

// pageantExchangeTimeout bounds how long the window procedure will block
// waiting for the dispatcher's reply before giving up and failing the
// SendMessage call (§7 UpstreamFailed has no direct analogue here since
// Pageant is a listener, but a hung dispatcher must not hang the sender).
const pageantExchangeTimeout = 5 * time.Second

// pageantListener owns a hidden window that real Pageant clients locate via
// FindWindow and talk to via WM_COPYDATA, turning each message into one
// request/reply exchange through the ordinary delegate/manager pipeline
// (§4.3 "no handshake... Pageant window").
type pageantListener struct {
	Base
	cfg      PageantConfig
	delegate DelegateFunc
}

// NewPageantListener returns a Listener hosting a Pageant-compatible window
// on first Run.
func NewPageantListener(cfg PageantConfig) Listener {
	if cfg.WindowClass == "" {
		cfg.WindowClass = "Pageant"
	}
	if cfg.WindowTitle == "" {
		cfg.WindowTitle = "Pageant"
	}
	return &pageantListener{Base: NewBase(), cfg: cfg}
}

func (l *pageantListener) Name() string { return l.cfg.ListenerName }

func (l *pageantListener) Run(ctx context.Context, delegate DelegateFunc) error {
	l.delegate = delegate

	// Window creation and the message loop must run on the same OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hInstance, _, _ := procGetModuleHandleW.Call(0)

	classPtr, err := syscall.UTF16PtrFromString(l.cfg.WindowClass)
	if err != nil {
		return fmt.Errorf("listener %s: class name: %w", l.Name(), err)
	}
	titlePtr, err := syscall.UTF16PtrFromString(l.cfg.WindowTitle)
	if err != nil {
		return fmt.Errorf("listener %s: window title: %w", l.Name(), err)
	}

	wndProc := syscall.NewCallback(l.wndProc)
	wc := wndClassEx{
		lpfnWndProc:   wndProc,
		hInstance:     windows.Handle(hInstance),
		lpszClassName: classPtr,
	}
	wc.cbSize = uint32(unsafe.Sizeof(wc))

	atom, _, callErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 {
		return fmt.Errorf("listener %s: RegisterClassEx: %v", l.Name(), callErr)
	}
	defer procUnregisterClassW.Call(uintptr(unsafe.Pointer(classPtr)), hInstance)

	hwnd, _, callErr := procCreateWindowExW.Call(
		uintptr(wsExDefault),
		uintptr(unsafe.Pointer(classPtr)),
		uintptr(unsafe.Pointer(titlePtr)),
		uintptr(wsOverlapped),
		0, 0, 0, 0,
		0, // top-level (never shown) so FindWindow can locate it
		0,
		hInstance,
		0,
	)
	if hwnd == 0 {
		return fmt.Errorf("listener %s: CreateWindowEx: %v", l.Name(), callErr)
	}
	defer procDestroyWindow.Call(hwnd)

	go func() {
		select {
		case <-ctx.Done():
			l.Cancel()
		case <-l.Done():
		}
		procPostMessageW.Call(hwnd, uintptr(wmClose), 0, 0)
	}()

	var m winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// wndProc handles WM_COPYDATA synchronously, replying in place in the
// sender's shared-memory mapping before returning, exactly as the real
// Pageant process does (§6 "the server writes the reply in place and
// returns non-zero").
func (l *pageantListener) wndProc(hwnd windows.HWND, message uint32, wParam, lParam uintptr) uintptr {
	switch message {
	case wmCopyData:
		cds := (*copyDataStructPageant)(unsafe.Pointer(lParam))
		if cds.dwData != pageantCopyDataMagic {
			return 0
		}
		if l.handleCopyData(cds) {
			return 1
		}
		return 0
	case wmDestroy:
		procPostQuitMessage.Call(0)
		return 0
	default:
		r, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(message), wParam, lParam)
		return r
	}
}

// handleCopyData maps the sender's named section, decodes the framed
// request, runs it through the ordinary delegate/manager pipeline over an
// in-memory net.Pipe, and writes the framed reply back into the same
// section.
func (l *pageantListener) handleCopyData(cds *copyDataStructPageant) bool {
	if cds.cbData == 0 || cds.lpData == 0 {
		return false
	}
	nameBytes := unsafe.Slice((*byte)(unsafe.Pointer(cds.lpData)), cds.cbData)
	mapName := string(nameBytes[:len(nameBytes)-1]) // strip the trailing NUL

	namePtr, err := windows.UTF16PtrFromString(mapName)
	if err != nil {
		return false
	}
	r, _, _ := procOpenFileMappingW.Call(
		uintptr(windows.FILE_MAP_WRITE|windows.FILE_MAP_READ),
		0,
		uintptr(unsafe.Pointer(namePtr)),
	)
	if r == 0 {
		return false
	}
	h := windows.Handle(r)
	defer windows.CloseHandle(h)

	view, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, pageantMapSize)
	if err != nil {
		return false
	}
	defer windows.UnmapViewOfFile(view)

	data := unsafe.Slice((*byte)(unsafe.Pointer(view)), pageantMapSize)
	if len(data) < 4 {
		return false
	}
	length := frame.DecodeHeader(data[:4])
	if int(length) > len(data)-4 {
		return false
	}
	req := &frame.Message{Data: append([]byte(nil), data[4:4+length]...)}

	local, remote := net.Pipe()
	if err := l.delegate(remote, l, false); err != nil {
		remote.Close()
		local.Close()
		return false
	}

	local.SetDeadline(time.Now().Add(pageantExchangeTimeout))
	if err := frame.WriteMessage(local, req); err != nil {
		local.Close()
		return false
	}
	reply := &frame.Message{}
	if err := frame.ReadMessage(local, reply); err != nil {
		local.Close()
		return false
	}
	local.Close()

	hdr := frame.EncodeHeader(uint32(len(reply.Data)))
	full := append(append([]byte{}, hdr[:]...), reply.Data...)
	if len(full) > len(data) {
		return false
	}
	copy(data, full)
	return true
}
