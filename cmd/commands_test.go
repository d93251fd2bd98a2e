package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/browser"
)

func TestCampaignFlags(t *testing.T) {
	var flags campaignFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--accounts", "a,b",
		"--materials", "m1",
		"--distribution", "split",
		"--mode", "anti_duplicate",
		"--delay-min", "10s",
		"--hide-from-friends",
	}))

	c := flags.campaign()
	assert.Equal(t, []string{"a", "b"}, c.AccountIDs)
	assert.Equal(t, []string{"m1"}, c.MaterialIDs)
	assert.Equal(t, domain.DistributeSplit, c.Distribution.Kind)
	assert.Equal(t, domain.ModeAntiDuplicate, c.Mode)
	assert.Equal(t, 10*time.Second, c.DelayMin)
	assert.Zero(t, c.DelayMax)
	assert.True(t, c.HideFromFriends)
}

func TestCampaignFlagDefaults(t *testing.T) {
	var flags campaignFlags
	flags.register(&cobra.Command{Use: "test"})
	c := flags.campaign()
	assert.Equal(t, domain.DistributeAll, c.Distribution.Kind)
	assert.Equal(t, domain.ModeStandard, c.Mode)
	assert.False(t, c.HideFromFriends)
	assert.Empty(t, c.Destination)
}

func TestCampaignFlagsGroups(t *testing.T) {
	var flags campaignFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--accounts", "a", "--materials", "m1", "--groups", "g1,g2"}))

	c := flags.campaign()
	assert.Equal(t, domain.DestinationGroups, c.Destination)
	assert.Equal(t, []string{"g1", "g2"}, c.GroupIDs)
	assert.NoError(t, c.Validate())
}

func TestDriverFor(t *testing.T) {
	d, err := driverFor(&config.Config{BrowserDriver: "Rod"}, true)
	require.NoError(t, err)
	assert.IsType(t, &browser.RodDriver{}, d)

	d, err = driverFor(&config.Config{}, false)
	require.NoError(t, err)
	assert.IsType(t, &browser.ChromeDriver{}, d)

	_, err = driverFor(&config.Config{BrowserDriver: "firefox"}, true)
	assert.Error(t, err)
}
