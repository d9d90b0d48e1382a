// Copyright (c) 2026 The ratunnel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tdxguest is a narrow client for the TDX guest kernel
// driver's ioctl interface. It exposes only the two operations this
// module's attestation flow needs — VP.INFO and iterative SYS.RD — and
// treats everything else about the driver's ABI as an opaque external
// interface owned by the kernel module, not by this package.
package tdxguest

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// device is the slice of *os.File this package depends on, letting
// callers substitute a fake for tests without opening a real device
// node.
type device interface {
	Fd() uintptr
}

// ioctl request codes for /dev/tdx-guest-aux, computed the same way
// the kernel's own uapi header (TDXGA_IOC_BASE 0xF5) derives them:
// IOCTL_TDX_VP_INFO is _IOR(0xF5, 0x01, ...), IOCTL_TDX_SYS_RD is
// _IOWR(0xF5, 0x02, ...). Bit layout matches linux/ioctl.h's generic
// _IOC encoding (nr/type/size/dir shifts), not a custom scheme.
const (
	tdxGuestAuxIOCBase = 0xF5

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocDirRead  = 2
	iocDirWrite = 1
)

func ioc(dir, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (tdxGuestAuxIOCBase << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func ior(nr, size uintptr) uintptr  { return ioc(iocDirRead, nr, size) }
func iowr(nr, size uintptr) uintptr { return ioc(iocDirRead|iocDirWrite, nr, size) }

var (
	ioctlVPInfo = ior(0x01, unsafe.Sizeof(VPInfo{}))
	ioctlSysRD  = iowr(0x02, unsafe.Sizeof(sysRDRequest{}))
)

// VPInfo is the result of a VP.INFO TDCALL, matching struct
// tdx_vp_info_out: the guest TD's attributes, extended features mask,
// physical address width and the TDCALL's own status code.
type VPInfo struct {
	Attributes   uint64
	Xfam         uint64
	GpaWidth     uint64
	TdcallStatus int32
	_            int32 // padding to the driver struct's natural alignment
}

type sysRDRequest struct {
	FieldID uint64
	Value   uint64
	NextID  int64
}

// Client talks to the TDX guest kernel driver through a device node
// (normally /dev/tdx-guest-aux).
type Client struct {
	dev device
}

// Open opens the TDX guest device node.
func Open(path string) (*Client, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open TDX guest device %s: %w", path, err)
	}
	return &Client{dev: f}, nil
}

// NewWithDevice constructs a Client over an already-open device,
// primarily for tests.
func NewWithDevice(dev device) *Client {
	return &Client{dev: dev}
}

// VPInfo issues the VP.INFO TDCALL and returns the guest TD's
// attributes, XFAM and GPA width.
func (c *Client) VPInfo() (VPInfo, error) {
	var info VPInfo
	if err := ioctl(c.dev.Fd(), ioctlVPInfo, unsafe.Pointer(&info)); err != nil {
		return info, fmt.Errorf("VP.INFO ioctl failed: %w", err)
	}
	return info, nil
}

// SysRD reads TD metadata field startID and every subsequent field the
// driver chains to it, stopping when the driver reports no further
// field (nextID == -1). This mirrors SYS.RD's iterative read-all
// semantics without hardcoding the full metadata field enumeration,
// which belongs to the kernel module's ABI.
func (c *Client) SysRD(startID uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)
	req := sysRDRequest{FieldID: startID}
	for {
		if err := ioctl(c.dev.Fd(), ioctlSysRD, unsafe.Pointer(&req)); err != nil {
			return out, fmt.Errorf("SYS.RD ioctl failed for field %d: %w", req.FieldID, err)
		}
		out[req.FieldID] = req.Value
		if req.NextID < 0 {
			break
		}
		req.FieldID = uint64(req.NextID)
	}
	return out, nil
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
