package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageNode_IsAssigned(t *testing.T) {
	stage := &StageNode{AssignedOffices: []string{"office-a", "office-b"}}

	assert.True(t, stage.IsAssigned("office-a"))
	assert.False(t, stage.IsAssigned("office-c"))
	assert.False(t, (&StageNode{}).IsAssigned("office-a"))
}

func TestDecisionType_Valid(t *testing.T) {
	assert.True(t, DecisionComplete.Valid())
	assert.True(t, DecisionReturn.Valid())
	assert.True(t, DecisionReject.Valid())
	assert.False(t, DecisionType("escalate").Valid())
	assert.False(t, DecisionType("").Valid())
}

func TestSignatureType_Valid(t *testing.T) {
	assert.True(t, SignatureTypeApprove.Valid())
	assert.True(t, SignatureTypeConcur.Valid())
	assert.False(t, SignatureType("NOTARIZE").Valid())
}

func TestSignatureMethod_Valid(t *testing.T) {
	assert.True(t, SignatureMethodX509.Valid())
	assert.True(t, SignatureMethodPGP.Valid())
	assert.False(t, SignatureMethod("dsa").Valid())
}
