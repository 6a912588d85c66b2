package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type codedError struct{ code int }

func (e codedError) Error() string  { return "rpc failure" }
func (e codedError) ErrorCode() int { return e.code }

func TestBalanceReadError(t *testing.T) {
	cause := errors.New("503 service unavailable")
	contract := common.HexToAddress("0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790")
	err := NewBalanceReadError(42161, contract, fnUsersData, 100, cause)

	require.ErrorIs(t, err, ErrBalanceRead)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "usersData on 0x47176B2Af9885dC6C4575d4eFd63895f7Aaa4790 at block 100 (chain 42161)")

	var target *BalanceReadError
	wrapped := errors.Join(errors.New("projecting deposit"), err)
	require.ErrorAs(t, wrapped, &target)
	require.Equal(t, uint64(100), target.Block)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "timeout", err: context.DeadlineExceeded, want: "timeout"},
		{name: "cancelled", err: context.Canceled, want: "cancelled"},
		{name: "json-rpc code", err: codedError{code: -32000}, want: "rpc_-32000"},
		{name: "transient", err: errors.New("429 too many requests"), want: "transient"},
		{name: "other", err: errors.New("boom"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errorType(tt.err))
		})
	}
}
