// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// Listener is a non-blocking listening TCP socket.
// Register it with Reactor.Listen before starting the loop.
type Listener struct {
	fd   int
	addr net.Addr
}

// Listen opens a non-blocking TCP listener on host:port with
// SO_REUSEADDR set. Port 0 picks an ephemeral port; see Addr.
func Listen(host string, port int) (*Listener, error) {
	sa, family, err := resolve(host, port)
	if err != nil {
		return nil, err
	}
	fd, err := socket(family)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("getsockname", err)
	}
	return &Listener{fd: fd, addr: sockaddrToTCP(local)}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.addr }

// Close closes the listening socket. Closing twice is a no-op.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	return closeFD(fd)
}

// accept takes one pending connection.
// Returns iox.ErrWouldBlock when none is pending.
func (l *Listener) accept() (int, net.Addr, error) {
	for {
		fd, sa, err := unix.Accept(l.fd)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return -1, nil, iox.ErrWouldBlock
		default:
			return -1, nil, os.NewSyscallError("accept", err)
		}
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			return -1, nil, os.NewSyscallError("setnonblock", err)
		}
		return fd, sockaddrToTCP(sa), nil
	}
}

// dial starts a non-blocking connect to host:port.
// connected reports whether the connect finished immediately.
func dial(host string, port int) (fd int, connected bool, err error) {
	sa, family, err := resolve(host, port)
	if err != nil {
		return -1, false, err
	}
	fd, err = socket(family)
	if err != nil {
		return -1, false, err
	}
	switch err := unix.Connect(fd, sa); err {
	case nil:
		return fd, true, nil
	case unix.EINPROGRESS, unix.EINTR:
		return fd, false, nil
	default:
		unix.Close(fd)
		return -1, false, os.NewSyscallError("connect", err)
	}
}

// connectResult reports the outcome of a non-blocking connect once the
// socket became writable, and the peer address on success.
func connectResult(fd int) (net.Addr, error) {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return nil, os.NewSyscallError("getsockopt", err)
	}
	if soerr != 0 {
		return nil, os.NewSyscallError("connect", unix.Errno(soerr))
	}
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, os.NewSyscallError("getpeername", err)
	}
	return sockaddrToTCP(sa), nil
}

// readFD reads from a non-blocking socket.
// Maps EAGAIN to iox.ErrWouldBlock, a zero read to io.EOF and a reset
// connection to ErrPeerClosed.
func readFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, iox.ErrWouldBlock
		case unix.ECONNRESET:
			return 0, ErrPeerClosed
		default:
			return 0, os.NewSyscallError("read", err)
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// writeFD writes to a non-blocking socket.
// Maps EAGAIN to iox.ErrWouldBlock and a broken pipe to ErrPeerClosed.
func writeFD(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, iox.ErrWouldBlock
		case unix.EPIPE, unix.ECONNRESET:
			return 0, ErrPeerClosed
		default:
			return 0, os.NewSyscallError("write", err)
		}
	}
}

func closeFD(fd int) error {
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func socket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return fd, nil
}

// resolve turns host:port into a socket address.
// Name resolution goes through the net package and may block; pass an
// IP literal from tasks that must not stall the loop.
func resolve(host string, port int) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, 0, fmt.Errorf("reactor: resolve %s:%d: %w", host, port, err)
	}
	if addr.IP == nil {
		return &unix.SockaddrInet4{Port: addr.Port}, unix.AF_INET, nil
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return sa, unix.AF_INET6, nil
}

func sockaddrToTCP(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]), Port: sa.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, sa.Addr[:])
		return &net.TCPAddr{IP: ip, Port: sa.Port}
	default:
		return nil
	}
}
