package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"sojoswap/internal/amm"
	"sojoswap/internal/config"
)

func TestQuoteHopsRoundTrip(t *testing.T) {
	hops, err := config.ParseHops([]string{"1000000:2000000", "5000000:1000000"})
	require.NoError(t, err)

	forward, err := quoteHops(config.QuoteConfig{Hops: hops, AmountIn: amm.N(10_000)})
	require.NoError(t, err)
	require.Len(t, forward, 3)
	require.Equal(t, "19743", amm.Dec(forward[1]))

	backward, err := quoteHops(config.QuoteConfig{Hops: hops, AmountOut: forward[2]})
	require.NoError(t, err)
	again, err := quoteHops(config.QuoteConfig{Hops: hops, AmountIn: backward[0]})
	require.NoError(t, err)
	require.False(t, again[2].Lt(forward[2]), "the quoted input buys at least the requested output")
}

func TestQuoteHopsRejectsEmptyPool(t *testing.T) {
	hops, err := config.ParseHops([]string{"0:100"})
	require.NoError(t, err)
	_, err = quoteHops(config.QuoteConfig{Hops: hops, AmountIn: amm.N(1)})
	require.ErrorIs(t, err, amm.ErrInsufficientLiquidity)
}

func TestRunQuotePrintsPath(t *testing.T) {
	cmd := &cobra.Command{RunE: runQuote}
	cmd.Flags().String("config", "", "")
	cmd.Flags().StringSlice("reserves", nil, "")
	cmd.Flags().String("amount-in", "", "")
	cmd.Flags().String("amount-out", "", "")
	cmd.Flags().String("log-level", "info", "")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--reserves", "100:200", "--amount-in", "10"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, "10 -> 18", strings.TrimSpace(out.String()))
}
