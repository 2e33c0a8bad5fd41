package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookStatusHint(t *testing.T) {
	// Signed deliveries keep their normalized status.
	assert.Equal(t, "SUCCESS", webhookStatusHint("paid", true))
	assert.Equal(t, "FAILED", webhookStatusHint("cancelled", true))
	assert.Equal(t, "ACTIVE", webhookStatusHint("ACTIVE", true))

	// An unsigned body claiming a terminal outcome carries no authority;
	// the demoted hint forces a gateway re-check during reconciliation.
	assert.Equal(t, "", webhookStatusHint("paid", false))
	assert.Equal(t, "", webhookStatusHint("success", false))
	assert.Equal(t, "", webhookStatusHint("failed", false))

	// Non-terminal hints stay: they never settle a payment on their own.
	assert.Equal(t, "ACTIVE", webhookStatusHint("ACTIVE", false))
	assert.Equal(t, "", webhookStatusHint("", false))
}
