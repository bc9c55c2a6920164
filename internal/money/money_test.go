package money

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "1", want: 1_000_000},
		{in: "1.0", want: 1_000_000},
		{in: "2.4", want: 2_400_000},
		{in: "0.600000", want: 600_000},
		{in: "0", want: 0},
		{in: "0.0000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestStringRoundTrip(t *testing.T) {
	require.Equal(t, "2.400000", MustParse("2.4").String())
	require.Equal(t, "0.000000", Amount(0).String())
	require.Equal(t, "1.000001", Amount(1_000_001).String())
}

func TestNetPayout(t *testing.T) {
	pot, err := Pot(MustParse("1"), MustParse("1"), MustParse("1"))
	require.NoError(t, err)

	payout, err := NetPayout(pot, MustParse("0.6"))
	require.NoError(t, err)
	require.Equal(t, MustParse("2.4"), payout)

	_, err = NetPayout(MustParse("0.5"), MustParse("0.6"))
	require.Error(t, err)
}

func TestApplyFeePercentTruncates(t *testing.T) {
	// 2000 bps of 1.000001 is 200000.2 minor units; the fee truncates, so the
	// payout keeps the spare fraction.
	got, err := ApplyFeePercent(Amount(1_000_001), 2000)
	require.NoError(t, err)
	require.Equal(t, Amount(800_001), got)
}

func TestFromBigInt(t *testing.T) {
	got, err := FromBigInt(big.NewInt(2_400_000))
	require.NoError(t, err)
	require.Equal(t, MustParse("2.4"), got)

	_, err = FromBigInt(new(big.Int).Lsh(big.NewInt(1), 70))
	require.Error(t, err)
	_, err = FromBigInt(big.NewInt(-5))
	require.Error(t, err)
}
