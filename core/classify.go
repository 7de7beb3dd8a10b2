package core

import (
	"errors"
	"net"
	"net/textproto"
	"strings"

	"ftpmanager/protocols"
)

// Messages that mean the server silently dropped the session. Transports that
// return structured errors never need these; they cover wrapped libraries that
// only report text.
var sessionLostMessages = []string{
	"client is closed",
	"connection already closed",
	"none of the available transfer strategies",
	"no viable transfer strategy",
	"use of closed network connection",
}

// IsTransient reports whether err means the session died and a fresh connect
// followed by one retry is likely to succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUserCancelled) {
		return false
	}
	if errors.Is(err, ErrTransientTransport) ||
		errors.Is(err, protocols.ErrClosed) ||
		errors.Is(err, protocols.ErrNoTransferStrategy) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		// 421 service not available, 425 can't open data connection
		return tpErr.Code == 421 || tpErr.Code == 425
	}

	msg := strings.ToLower(err.Error())
	for _, m := range sessionLostMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
