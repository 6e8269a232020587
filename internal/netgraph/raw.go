//go:build freebsd

package netgraph

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FreeBSD netgraph socket family and node path limits, per
// <sys/socket.h> and <netgraph.h>.  golang.org/x/sys/unix does not
// carry AF_NETGRAPH or SOCK_RAW netgraph framing, and unix.Sockaddr
// cannot be implemented for a custom address family from outside the
// unix package (its interface method is unexported), so bind/connect
// go through a raw syscall with a hand-built sockaddr_ng buffer
// instead of the typed unix.Bind/unix.Connect helpers.
const (
	afNetgraph  = 32 // AF_NETGRAPH
	ngPathSize  = 32
	sockAddrLen = 2 + ngPathSize // sg_len+sg_family fields folded into header byte pair
)

// sockaddrNG mirrors struct sockaddr_ng: a length byte, a family byte,
// and a NUL-padded node path.
func sockaddrNG(path string) ([]byte, error) {
	if len(path) >= ngPathSize {
		return nil, fmt.Errorf("netgraph path %q exceeds %d bytes", path, ngPathSize-1)
	}
	buf := make([]byte, sockAddrLen)
	buf[0] = byte(sockAddrLen)
	buf[1] = afNetgraph
	copy(buf[2:], path)
	return buf, nil
}

func rawBind(fd int, path string) error {
	sa, err := sockaddrNG(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&sa[0])), uintptr(len(sa)))
	if errno != 0 {
		return fmt.Errorf("bind(%q): %v", path, errno)
	}
	return nil
}

func rawConnect(fd int, path string) error {
	sa, err := sockaddrNG(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd),
		uintptr(unsafe.Pointer(&sa[0])), uintptr(len(sa)))
	if errno != 0 {
		return fmt.Errorf("connect(%q): %v", path, errno)
	}
	return nil
}

func newNetgraphSocket() (fd int, err error) {
	fd, err = unix.Socket(afNetgraph, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %v", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set socket nonblocking: %v", err)
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_GETFD): %v", err)
	}
	if _, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("fcntl(F_SETFD, FD_CLOEXEC): %v", err)
	}
	return fd, nil
}

// rawTransport is the production Transport backed by real netgraph
// control/data sockets.
type rawTransport struct{}

// NewRawTransport returns a Transport that talks to the kernel's
// netgraph subsystem over real sockets.  It is only usable on FreeBSD.
func NewRawTransport() Transport {
	return rawTransport{}
}

func (rawTransport) SetInterfaceUp(iface string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("socket: %v", err)
	}
	defer unix.Close(fd)

	var ifr [32]byte
	copy(ifr[:16], iface)
	const flagsUp = 0x1 // IFF_UP
	binary.LittleEndian.PutUint16(ifr[16:18], flagsUp)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&ifr[0])))
	if errno != 0 {
		return fmt.Errorf("SIOCSIFFLAGS(%q): %v", iface, errno)
	}
	return nil
}

func (rawTransport) LoadModule(name string) error {
	_, _, errno := unix.Syscall(unix.SYS_KLDLOAD, uintptr(unsafe.Pointer(&[]byte(name + "\x00")[0])), 0, 0)
	if errno != 0 {
		return fmt.Errorf("kldload(%q): %v", name, errno)
	}
	return nil
}

func (rawTransport) NewSocketPair(path string) (Session, error) {
	ctrlFD, err := newNetgraphSocket()
	if err != nil {
		return nil, fmt.Errorf("control socket: %v", err)
	}
	if err := rawBind(ctrlFD, ""); err != nil {
		unix.Close(ctrlFD)
		return nil, fmt.Errorf("bind control socket: %v", err)
	}
	if err := rawConnect(ctrlFD, path); err != nil {
		unix.Close(ctrlFD)
		return nil, fmt.Errorf("connect control socket to %q: %v", path, err)
	}

	dataFD, err := newNetgraphSocket()
	if err != nil {
		unix.Close(ctrlFD)
		return nil, fmt.Errorf("data socket: %v", err)
	}
	if err := rawBind(dataFD, ""); err != nil {
		unix.Close(ctrlFD)
		unix.Close(dataFD)
		return nil, fmt.Errorf("bind data socket: %v", err)
	}

	ctrlFile := os.NewFile(uintptr(ctrlFD), "ng-ctrl")
	ctrlRC, err := ctrlFile.SyscallConn()
	if err != nil {
		ctrlFile.Close()
		unix.Close(dataFD)
		return nil, err
	}
	dataFile := os.NewFile(uintptr(dataFD), "ng-data")
	dataRC, err := dataFile.SyscallConn()
	if err != nil {
		ctrlFile.Close()
		dataFile.Close()
		return nil, err
	}

	return &rawSession{
		path:     path,
		ctrlFile: ctrlFile,
		ctrlRC:   ctrlRC,
		dataFile: dataFile,
		dataRC:   dataRC,
	}, nil
}

type rawSession struct {
	path     string
	ctrlFile *os.File
	ctrlRC   syscall.RawConn
	dataFile *os.File
	dataRC   syscall.RawConn
}

func (s *rawSession) ControlFD() int { return int(s.ctrlFile.Fd()) }
func (s *rawSession) DataFD() int    { return int(s.dataFile.Fd()) }

func (s *rawSession) Close() error {
	err1 := s.ctrlFile.Close()
	err2 := s.dataFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SendMessage encodes a fixed Header followed by the raw body and
// writes it to the control socket.  The kernel addresses the message
// using the path the control socket was connected to; path is carried
// for symmetry with RecvMessage and is informational only on send.
func (s *rawSession) SendMessage(path string, cookie uint32, cmd uint32, body []byte) error {
	buf := make([]byte, 9+len(body))
	binary.BigEndian.PutUint32(buf[0:4], cookie)
	binary.BigEndian.PutUint32(buf[4:8], cmd)
	buf[8] = 1 // version
	copy(buf[9:], body)
	_, err := s.ctrlFile.Write(buf)
	return err
}

func (s *rawSession) RecvMessage() (Message, error) {
	buf := make([]byte, 4096)
	n, err := s.ctrlFile.Read(buf)
	if err != nil {
		return Message{}, err
	}
	if n < 9 {
		return Message{}, fmt.Errorf("short control message: %d bytes", n)
	}
	return Message{
		Header: Header{
			Cookie:  binary.BigEndian.Uint32(buf[0:4]),
			Cmd:     binary.BigEndian.Uint32(buf[4:8]),
			Version: buf[8],
		},
		Path: s.path,
		Body: buf[9:n],
	}, nil
}

func (s *rawSession) SendData(hook string, data []byte) error {
	_, err := s.dataFile.Write(data)
	return err
}

func (s *rawSession) RecvData() (hook string, data []byte, err error) {
	buf := make([]byte, 65536)
	n, err := s.dataFile.Read(buf)
	if err != nil {
		return "", nil, err
	}
	return s.path, buf[:n], nil
}

func (s *rawSession) MakePeer(nodeType, ourHook, peerHook string) (uint32, error) {
	body := []byte(nodeType + "\x00" + ourHook + "\x00" + peerHook)
	if err := s.SendMessage(s.path, GenericCookie, CmdMkPeer, body); err != nil {
		return 0, err
	}
	return s.NodeID(s.path + "." + ourHook)
}

func (s *rawSession) Connect(fromPath, fromHook, toPath, toHook string) error {
	body := []byte(fromHook + "\x00" + toPath + "\x00" + toHook)
	return s.SendMessage(fromPath, GenericCookie, CmdConnect, body)
}

func (s *rawSession) Disconnect(hook string) error {
	return s.SendMessage(s.path, GenericCookie, CmdRmHook, []byte(hook))
}

func (s *rawSession) Shutdown(path string) error {
	return s.SendMessage(path, GenericCookie, CmdShutdown, nil)
}

func (s *rawSession) ListNodeTypes() (map[string]bool, error) {
	if err := s.SendMessage(s.path, GenericCookie, CmdListTypes, nil); err != nil {
		return nil, err
	}
	msg, err := s.RecvMessage()
	if err != nil {
		return nil, err
	}
	types := map[string]bool{}
	for _, name := range splitNulString(msg.Body) {
		types[name] = true
	}
	return types, nil
}

// ListHooks decodes a NUL-separated response body: the node's own
// type, followed by a (hook name, peer node type) pair per hook
// currently connected to it. This lets acquire's orphan-hook adoption
// check (parent.go) tell a PPPoE peer already on the attach hook from
// some other node type without a second round trip.
func (s *rawSession) ListHooks(path string) (NodeInfo, error) {
	if err := s.SendMessage(path, GenericCookie, CmdListHooks, nil); err != nil {
		return NodeInfo{}, err
	}
	msg, err := s.RecvMessage()
	if err != nil {
		return NodeInfo{}, err
	}
	fields := splitNulString(msg.Body)
	if len(fields) == 0 {
		return NodeInfo{}, fmt.Errorf("empty list-hooks response for %q", path)
	}
	info := NodeInfo{NodeType: fields[0], PeerType: map[string]string{}}
	pairs := fields[1:]
	if len(pairs)%2 != 0 {
		return NodeInfo{}, fmt.Errorf("malformed list-hooks response for %q: odd hook/peer-type field count", path)
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		hook, peerType := pairs[i], pairs[i+1]
		info.Hooks = append(info.Hooks, hook)
		info.PeerType[hook] = peerType
	}
	return info, nil
}

func (s *rawSession) NodeID(path string) (uint32, error) {
	if err := s.SendMessage(path, GenericCookie, CmdNodeInfo, nil); err != nil {
		return 0, err
	}
	msg, err := s.RecvMessage()
	if err != nil {
		return 0, err
	}
	if len(msg.Body) < 4 {
		return 0, fmt.Errorf("short node-info response for %q", path)
	}
	return binary.BigEndian.Uint32(msg.Body[0:4]), nil
}

func splitNulString(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}
