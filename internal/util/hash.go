// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
	"net"
)

// ConnID computes a 4-byte hash from a TCP connection's 4-tuple
// (local IP, local port, remote IP, remote port). It tags log lines so the
// lines of one connection attempt can be told apart from the next.
func ConnID(conn net.Conn) uint32 {
	h := fnv.New32a()
	h.Write([]byte(conn.LocalAddr().String()))
	h.Write([]byte(conn.RemoteAddr().String()))
	return h.Sum32()
}
