package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	shared "github.com/charadev96/ledgerchat/internal/shared/domain"
)

// TerminalConfirm asks for approval on the controlling terminal.
func TerminalConfirm(_ context.Context, req Request) (bool, error) {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Sign %s as %s: %s", req.Kind, shared.ShortIdentity(req.Account), req.Summary),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AutoConfirm approves every request.
func AutoConfirm(context.Context, Request) (bool, error) {
	return true, nil
}
