package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v3"

	shareddomain "github.com/charadev96/ledgerchat/internal/shared/domain"
)

func TestReport(t *testing.T) {
	assert.NoError(t, report(nil))
	assert.NoError(t, report(fmt.Errorf("sign: %w", shareddomain.ErrUserRejected)))

	err := report(fmt.Errorf("send: %w", shareddomain.ErrNotGroupMember))
	var exit cli.ExitCoder
	assert.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.ExitCode())
	assert.Equal(t, "NotGroupMember", err.Error())

	plain := errors.New("dial tcp: refused")
	assert.Same(t, plain, report(plain))
}
