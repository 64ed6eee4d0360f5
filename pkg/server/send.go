package server

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// sendDialTimeout bounds how long the server waits to establish the
// outbound TCP connection SEND opens back to the client (§4.7, §6).
const sendDialTimeout = 10 * time.Second

// sendFile pushes rec to (clientIP, port) as SEND's wire format: a 4-byte
// little-endian length prefix followed by exactly that many payload bytes,
// then connection close (§4.7). It runs on its own goroutine so the
// dispatcher is never blocked by a slow or wedged client. Each call is
// tagged with a short session id so concurrent downloads are distinguishable
// in logs.
func sendFile(clientIP net.IP, port int, rec FileRecord, logger *log.Entry) {
	session := xid.New().String()
	logger = logger.WithField("download", session)

	addr := net.JoinHostPort(clientIP.String(), fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, sendDialTimeout)
	if err != nil {
		logger.WithFields(log.Fields{"addr": addr, "error": err}).Warn("send: dial failed")
		return
	}
	defer conn.Close()

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(rec.Payload)))
	if _, err := conn.Write(header[:]); err != nil {
		logger.WithFields(log.Fields{"addr": addr, "error": err}).Warn("send: length prefix write failed")
		return
	}
	if _, err := conn.Write(rec.Payload); err != nil {
		logger.WithFields(log.Fields{"addr": addr, "error": err}).Warn("send: payload write failed")
		return
	}
	logger.WithFields(log.Fields{"addr": addr, "bytes": len(rec.Payload)}).Debug("send: transfer complete")
}
