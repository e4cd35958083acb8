package vkr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDestroyWithoutDeviceIsNoOp(t *testing.T) {
	// A device that never finished creation has no handle to wait on or
	// destroy. Destroy must skip every backend call.
	d := &Device{}
	d.Destroy()
}

func TestSubmitFailurePoisonsDevice(t *testing.T) {
	d := &Device{}
	require.NoError(t, d.checkAlive())

	cause := errors.New("out of host memory")
	err := d.frameSubmitFailed(cause)
	require.ErrorIs(t, err, cause)

	// The slot fence cannot be signaled from the host, so the device
	// must stay retired for every later frame.
	require.ErrorIs(t, d.checkAlive(), ErrDeviceLost)
}

func TestPoisonOnLossIgnoresOtherErrors(t *testing.T) {
	d := &Device{}
	err := errors.New("transient")
	require.Equal(t, err, d.poisonOnLoss(err))
	require.NoError(t, d.checkAlive())

	require.ErrorIs(t, d.poisonOnLoss(ErrDeviceLost), ErrDeviceLost)
	require.ErrorIs(t, d.checkAlive(), ErrDeviceLost)
}
