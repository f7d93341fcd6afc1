package qmp

import "fmt"

// SocketDir is where Proxmox places per-VM QMP sockets
const SocketDir = "/var/run/qemu-server"

// AbsAxisMax is the upper bound of QEMU's absolute pointer axes
const AbsAxisMax = 0x7fff

// DefaultSocketPath returns the QMP socket for a VM id
func DefaultSocketPath(vmid string) string {
	return fmt.Sprintf("%s/%s.qmp", SocketDir, vmid)
}

// ScaleAbs converts a pixel position on an axis of the given size to an absolute axis value
func ScaleAbs(pos, size int) int {
	if size <= 1 || pos <= 0 {
		return 0
	}
	if pos >= size-1 {
		return AbsAxisMax
	}
	return pos * AbsAxisMax / (size - 1)
}
