package mtproto

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"

	"telegram-sync/internal/domain"

	"github.com/gotd/td/rpc"
	"github.com/gotd/td/tgerr"
)

// floodWaitRe matches the FLOOD_WAIT_<N> type string gotd/td surfaces on the
// wrapped *tgerr.Error when the structured Argument field is unavailable.
var floodWaitRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// classify turns a raw error returned by a *tg.Client call into the domain
// error taxonomy, mirroring the teacher's isNetworkError but widened to also
// recognize flood waits and auth failures, since this adapter has no global
// connection.Manager to pre-filter errors for it.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if seconds, ok := extractFloodWait(err); ok {
		return &domain.RateLimitedError{Method: method, WaitSeconds: seconds}
	}

	if isNetworkError(err) {
		return domain.Wrap(domain.KindNetworkError, "mtproto call "+method, err)
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Type {
		case "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED", "AUTH_KEY_INVALID":
			return domain.Wrap(domain.KindAuthRequired, "mtproto call "+method, err)
		}
		return domain.Wrap(domain.KindTelegramError, "mtproto call "+method, err)
	}

	return domain.Wrap(domain.KindTelegramError, "mtproto call "+method, err)
}

// extractFloodWait reads tgerr's structured Argument when present and falls
// back to the FLOOD_WAIT_<N> substring used throughout MTProto error
// strings, same two-tier strategy as internal/ratelimit.ExtractFloodWait.
func extractFloodWait(err error) (int, bool) {
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Type == "FLOOD_WAIT" && rpcErr.Argument > 0 {
		return rpcErr.Argument, true
	}
	m := floodWaitRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}
	return n, true
}

// isNetworkError reports whether err indicates a transport-level failure
// rather than a well-formed MTProto rejection, grounded on the teacher's
// internal/infra/telegram/connection.isNetworkError.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, rpc.ErrEngineClosed) {
		return true
	}
	var retryErr *rpc.RetryLimitReachedErr
	if errors.As(err, &retryErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
