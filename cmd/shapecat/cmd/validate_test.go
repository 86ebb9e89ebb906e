package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCommandStructure(t *testing.T) {
	assert.NotNil(t, validateCmd)
	assert.Equal(t, "validate", validateCmd.Use)
	assert.NotEmpty(t, validateCmd.Short)
	assert.NotEmpty(t, validateCmd.Long)
	assert.NotNil(t, validateCmd.RunE)
}

func TestValidateIsAddedToRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "validate" {
			found = true
			break
		}
	}
	assert.True(t, found, "validate command should be added to root command")
}

func TestValidateCommandExample(t *testing.T) {
	assert.Contains(t, validateCmd.Long, "Example:")
	assert.Contains(t, validateCmd.Long, "shapecat validate")
}

func TestValidateCommandChecks(t *testing.T) {
	doc := validateCmd.Long
	assert.Contains(t, doc, "Checks performed")
	assert.Contains(t, doc, "Configuration")
	assert.Contains(t, doc, "Dataset store connectivity")
	assert.Contains(t, doc, "Store table existence")
	assert.Contains(t, doc, "Exposure presence")
	assert.Contains(t, doc, "preflight checks")
}

func TestValidateCommandNoDatasetsFlag(t *testing.T) {
	// Validate checks the configured datasets only
	assert.Nil(t, validateCmd.Flags().Lookup("datasets"))
}
