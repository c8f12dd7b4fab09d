// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package reactor

// Serial is a monotonically increasing session identifier.
// Each reactor numbers its sessions from 1.
type Serial = uint32

// nextSerial returns the next monotonically increasing serial.
func (r *Reactor) nextSerial() Serial {
	return r.serial.Add(1)
}
