package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMembershipType(t *testing.T) {
	cases := map[string]MembershipType{
		"annual":     MembershipAnnual,
		" Lifetime ": MembershipLifetime,
		"SUPPORTER":  MembershipSupporter,
	}
	for in, want := range cases {
		got, err := ParseMembershipType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "monthly", "gold"} {
		_, err := ParseMembershipType(in)
		assert.ErrorIs(t, err, ErrUnknownMembershipType, in)
	}
}

func TestMembershipTypeRecurring(t *testing.T) {
	assert.True(t, MembershipAnnual.Recurring())
	assert.False(t, MembershipLifetime.Recurring())
	assert.False(t, MembershipSupporter.Recurring())
}

func TestParseMembershipStatus(t *testing.T) {
	st, err := ParseMembershipStatus("Expired")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, st)

	_, err = ParseMembershipStatus("banned")
	assert.ErrorIs(t, err, ErrUnknownMembershipStatus)
}

func TestUserRefs(t *testing.T) {
	u := &User{}
	assert.Equal(t, "", u.CustomerRef())
	assert.Equal(t, "", u.SubscriptionRef())
	assert.False(t, u.IsActiveMember())

	cus, sub := "cus_1", "sub_1"
	u.StripeCustomerID, u.StripeSubscriptionID = &cus, &sub
	u.MembershipStatus = StatusActive
	assert.Equal(t, "cus_1", u.CustomerRef())
	assert.Equal(t, "sub_1", u.SubscriptionRef())
	assert.True(t, u.IsActiveMember())
}
