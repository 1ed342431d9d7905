//go:build windows

package listener

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// afHyperv is the AF_HYPERV address family, not exposed by golang.org/x/sys/windows.
const afHyperv = 34

// sockaddrHv mirrors the Win32 SOCKADDR_HV layout: family, VmId, ServiceId.
type sockaddrHv struct {
	family    uint16
	vmID      windows.GUID
	serviceID windows.GUID
}

var (
	ws2_32          = syscall.NewLazyDLL("ws2_32.dll")
	procWSASocketW  = ws2_32.NewProc("WSASocketW")
	procBind        = ws2_32.NewProc("bind")
	procListen      = ws2_32.NewProc("listen")
	procAcceptEx    = ws2_32.NewProc("accept")
	procCloseSocket = ws2_32.NewProc("closesocket")
)

const (
	wsaFlagOverlapped = 0x01
	invalidSocket     = ^uintptr(0)
	socketError       = ^uintptr(0)
)

// hypervListener accepts connections on a Hyper-V socket by driving the
// Winsock API directly, since golang.org/x/sys/windows does not yet expose
// AF_HYPERV helpers the way it does AF_INET/AF_UNIX.
type hypervListener struct {
	Base
	cfg    HypervConfig
	handle windows.Handle
}

// NewHypervListener returns a Listener bound to cfg.VMID/cfg.ServiceID on
// first Run.
func NewHypervListener(cfg HypervConfig) Listener {
	return &hypervListener{Base: NewBase(), cfg: cfg}
}

func (l *hypervListener) Name() string { return l.cfg.ListenerName }

func (l *hypervListener) Run(ctx context.Context, delegate DelegateFunc) error {
	vmID, err := windows.GUIDFromString(l.cfg.VMID)
	if err != nil {
		return fmt.Errorf("listener %s: parse VmId %q: %w", l.Name(), l.cfg.VMID, err)
	}
	svcID, err := windows.GUIDFromString(l.cfg.ServiceID)
	if err != nil {
		return fmt.Errorf("listener %s: parse ServiceId %q: %w", l.Name(), l.cfg.ServiceID, err)
	}

	r, _, callErr := procWSASocketW.Call(
		uintptr(afHyperv), uintptr(windows.SOCK_STREAM), 0,
		0, 0, uintptr(wsaFlagOverlapped),
	)
	if r == invalidSocket {
		return fmt.Errorf("listener %s: WSASocketW: %v", l.Name(), callErr)
	}
	handle := windows.Handle(r)
	l.handle = handle

	addr := sockaddrHv{family: afHyperv, vmID: vmID, serviceID: svcID}
	ret, _, callErr := procBind.Call(uintptr(handle), uintptr(unsafe.Pointer(&addr)), unsafe.Sizeof(addr))
	if ret == socketError {
		windows.CloseHandle(handle)
		return fmt.Errorf("listener %s: bind: %v", l.Name(), callErr)
	}

	ret, _, callErr = procListen.Call(uintptr(handle), 16)
	if ret == socketError {
		windows.CloseHandle(handle)
		return fmt.Errorf("listener %s: listen: %v", l.Name(), callErr)
	}

	go func() {
		select {
		case <-ctx.Done():
			l.Cancel()
		case <-l.Done():
		}
		procCloseSocket.Call(uintptr(handle))
	}()

	for {
		var peer sockaddrHv
		size := int32(unsafe.Sizeof(peer))
		r, _, callErr := procAcceptEx.Call(uintptr(handle), uintptr(unsafe.Pointer(&peer)), uintptr(unsafe.Pointer(&size)))
		if r == invalidSocket {
			if l.Cancelled() {
				return nil
			}
			return fmt.Errorf("listener %s: accept: %v", l.Name(), callErr)
		}
		conn := &hypervConn{handle: windows.Handle(r)}
		if err := delegate(conn, l, true); err != nil {
			conn.Close()
		}
	}
}

// hypervConn adapts a raw Hyper-V socket handle to net.Conn via the
// underlying file-descriptor read/write syscalls.
type hypervConn struct {
	handle windows.Handle
}

func (c *hypervConn) Read(b []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *hypervConn) Write(b []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *hypervConn) Close() error                       { return windows.CloseHandle(c.handle) }
func (c *hypervConn) LocalAddr() net.Addr                { return hypervAddr{} }
func (c *hypervConn) RemoteAddr() net.Addr               { return hypervAddr{} }
func (c *hypervConn) SetDeadline(_ time.Time) error      { return nil }
func (c *hypervConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *hypervConn) SetWriteDeadline(_ time.Time) error { return nil }

type hypervAddr struct{}

func (hypervAddr) Network() string { return "hvsocket" }
func (hypervAddr) String() string  { return "hvsocket" }
