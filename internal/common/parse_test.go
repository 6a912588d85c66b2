package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{input: "42161", want: 42161},
		{input: "0xa4b1", want: 42161},
		{input: "0XA4B1", want: 42161},
		{input: " 8453 ", want: 8453},
		{input: "0", want: 0},
		{input: "0x0", want: 0},
		{input: "18446744073709551615", want: 1<<64 - 1},
		{input: "", wantErr: true},
		{input: "0x", wantErr: true},
		{input: "0x01", wantErr: true},
		{input: "0xzz", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "12abc", wantErr: true},
		{input: "18446744073709551616", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBytesToMB(t *testing.T) {
	require.Equal(t, uint64(0), BytesToMB(1024*1024-1))
	require.Equal(t, uint64(3), BytesToMB(3*1024*1024+5))
}
