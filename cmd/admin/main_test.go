package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/bikerhub/internal/analytics"
	"github.com/MikeMC777/bikerhub/internal/order"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer

	assert.ErrorIs(t, run(context.Background(), nil, &out), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"launch"}, &out), errUsage)

	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "create-admin")
}

func TestParseAdminFlags(t *testing.T) {
	f, err := parseAdminFlags([]string{"-password", "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, "admin@bikerhub.com", f.email)
	assert.Equal(t, "admin", f.username)

	f, err = parseAdminFlags([]string{"-email", "boss@bikerhub.com", "-username", "boss", "-password", "longenough"})
	require.NoError(t, err)
	assert.Equal(t, "boss@bikerhub.com", f.email)
	assert.Equal(t, "boss", f.username)

	_, err = parseAdminFlags(nil)
	assert.ErrorIs(t, err, errUsage)

	_, err = parseAdminFlags([]string{"-nope"})
	assert.ErrorIs(t, err, errUsage)
}

func TestPrintStats(t *testing.T) {
	var out bytes.Buffer
	st := order.Stats{
		TotalOrders:       4,
		TotalRevenue:      decimal.RequireFromString("1250.5"),
		AverageOrderValue: decimal.RequireFromString("312.625"),
		DeliveredOrders:   2,
	}
	ov := analytics.Overview{
		TotalUsers:   9,
		TotalRevenue: decimal.NewFromInt(900),
		TopProducts: []analytics.TopProduct{
			{Name: "Trail Blazer 29", SoldCount: 3, Price: decimal.NewFromInt(400)},
		},
	}

	require.NoError(t, printStats(&out, st, ov))
	s := out.String()
	assert.Contains(t, s, "1250.50")
	assert.Contains(t, s, "312.63")
	assert.Contains(t, s, "Trail Blazer 29")
	assert.Contains(t, s, "400.00")
}

func TestPrintStats_NoSales(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printStats(&out, order.Stats{}, analytics.Overview{}))
	assert.Contains(t, out.String(), "No products sold yet")
}
