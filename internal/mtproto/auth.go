package mtproto

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// phoneOnlyAuthenticator implements auth.UserAuthenticator for the daemon's
// non-interactive context: it can answer Phone() with a known number but has
// no terminal to read a login code, 2FA password or ToS acceptance from, so
// every other callback fails closed. It exists only for the not-yet-wired
// interactive `account login` path; Start(ctx, true) never constructs an
// auth.Flow and so never reaches this type. Grounded on the teacher's
// TerminalAuthenticator, stripped of its readline/term dependencies.
type phoneOnlyAuthenticator struct {
	phone string
}

var _ auth.UserAuthenticator = phoneOnlyAuthenticator{}

func (a phoneOnlyAuthenticator) Phone(context.Context) (string, error) {
	return a.phone, nil
}

func (a phoneOnlyAuthenticator) Code(context.Context, *tg.AuthSentCode) (string, error) {
	return "", fmt.Errorf("mtproto: login code requested but no interactive session is attached")
}

func (a phoneOnlyAuthenticator) Password(context.Context) (string, error) {
	return "", fmt.Errorf("mtproto: 2FA password requested but no interactive session is attached")
}

func (a phoneOnlyAuthenticator) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return fmt.Errorf("mtproto: terms of service acceptance requires an interactive session")
}

func (a phoneOnlyAuthenticator) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("mtproto: sign-up requires an interactive session")
}
