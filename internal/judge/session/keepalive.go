package session

import (
	"context"
	"net"
	"time"

	"judgeworker/pkg/utils/logger"

	"go.uber.org/zap"
)

// runKeepalive probes the connection every CheckAliveTime by attempting a
// zero-byte, deadline-bound read peek. A dead connection fails that read;
// the session is then told to reconnect immediately. The probe never
// consumes a real packet: Read with a zero-length buffer returns (0, nil)
// on a healthy connection without blocking on data.
func (s *Session) runKeepalive(ctx context.Context, conn net.Conn) {
	interval := s.cfg.CheckAliveTime
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := probeAlive(conn); err != nil {
				logger.Warn(ctx, "keepalive probe failed, requesting reconnect", zap.Error(err))
				s.enqueue(actionReconnect{after: 0})
				return
			}
		}
	}
}

func probeAlive(conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	_, err := conn.Read(nil)
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return nil
	}
	return err
}
