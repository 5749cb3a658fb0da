package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTurn(t *testing.T) {
	tests := []struct {
		name     string
		turn     Turn
		expected error
	}{
		{"valid user turn", Turn{ThreadID: "alice_t1", Role: RoleUser, Text: "hello"}, nil},
		{"valid assistant turn", Turn{ThreadID: "alice_t1", Role: RoleAssistant, Text: "hi"}, nil},
		{"missing thread", Turn{Role: RoleUser, Text: "hello"}, ErrMissingRequiredField},
		{"blank text", Turn{ThreadID: "alice_t1", Role: RoleUser, Text: "   "}, ErrMissingRequiredField},
		{"system role rejected", Turn{ThreadID: "alice_t1", Role: RoleSystem, Text: "hello"}, ErrInvalidTurnRole},
		{"unknown role", Turn{ThreadID: "alice_t1", Role: Role("bot"), Text: "hello"}, ErrInvalidTurnRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTurn(&tt.turn)
			assert.Equal(t, tt.expected, err)
		})
	}
}

func TestThreadOwner(t *testing.T) {
	tests := []struct {
		name     string
		threadID string
		expected string
	}{
		{"well formed", "alice_550e8400-e29b-41d4-a716-446655440000", "alice"},
		{"underscore in user id", "alice_smith_550e8400-e29b-41d4-a716-446655440000", "alice_smith"},
		{"multiple underscores in user id", "team_a_bot_550e8400-e29b-41d4-a716-446655440000", "team_a_bot"},
		{"no underscore", "alice", ""},
		{"leading underscore", "_t1", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ThreadOwner(tt.threadID))
		})
	}
}

func TestThreadOwnedBy(t *testing.T) {
	assert.True(t, ThreadOwnedBy("alice_t1", "alice"))
	assert.False(t, ThreadOwnedBy("alice_t1", "bob"))
	assert.False(t, ThreadOwnedBy("alice_t1", ""))
	assert.False(t, ThreadOwnedBy("", "alice"))
}

func TestThreadOwnedBy_UnderscoreUserID(t *testing.T) {
	// The owner keeps access to their own thread even when their user ID
	// contains underscores, and a user matching only a prefix does not.
	assert.True(t, ThreadOwnedBy("alice_smith_3f1c2d", "alice_smith"))
	assert.False(t, ThreadOwnedBy("alice_smith_3f1c2d", "alice"))
	assert.False(t, ThreadOwnedBy("alice_smith_3f1c2d", "alice_smith_3f1c2d"))
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleSystem))
	assert.True(t, IsValidRole(RoleUser))
	assert.True(t, IsValidRole(RoleAssistant))
	assert.True(t, IsValidRole(RoleTool))
	assert.False(t, IsValidRole(Role("bot")))
}
